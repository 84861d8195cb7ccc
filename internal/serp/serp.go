// Package serp reads organic results from a search engine results page.
package serp

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/FranksOps/seoforge/internal/metrics"
	"github.com/FranksOps/seoforge/internal/scraper"
	"github.com/PuerkitoBio/goquery"
)

const DuckDuckGoHTMLEndpoint = "https://html.duckduckgo.com/html/"

// Result is one organic search result.
type Result struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

// Provider returns organic results for a query. limit caps the number of
// results; zero means all on the first page.
type Provider interface {
	Search(ctx context.Context, query string, limit int) ([]Result, error)
}

// PageFetcher retrieves a page. *scraper.Fetcher satisfies it.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (*scraper.Page, error)
}

// DuckDuckGo scrapes the JavaScript-free DuckDuckGo results page.
type DuckDuckGo struct {
	Endpoint string
	fetcher  PageFetcher
}

// ensure DuckDuckGo implements Provider
var _ Provider = (*DuckDuckGo)(nil)

// NewDuckDuckGo returns a provider fetching through f.
func NewDuckDuckGo(f PageFetcher) *DuckDuckGo {
	return &DuckDuckGo{Endpoint: DuckDuckGoHTMLEndpoint, fetcher: f}
}

// Search implements Provider.
func (d *DuckDuckGo) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	if limit < 0 {
		return nil, fmt.Errorf("limit cannot be negative: %d", limit)
	}

	page, err := d.fetcher.Fetch(ctx, d.Endpoint+"?q="+url.QueryEscape(query))
	metrics.CollaboratorCalls.WithLabelValues("serp", metrics.Outcome(err)).Inc()
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}

	results, err := ParseDuckDuckGo(page.Body)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// ParseDuckDuckGo extracts results from a DuckDuckGo HTML page. Result links
// are redirects carrying the target in the uddg parameter.
func ParseDuckDuckGo(html []byte) ([]Result, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse results page: %w", err)
	}

	var results []Result
	doc.Find("a.result__a").Each(func(_ int, a *goquery.Selection) {
		target := resolveLink(a.AttrOr("href", ""))
		if target == "" {
			return
		}
		r := Result{URL: target, Title: strings.Join(strings.Fields(a.Text()), " ")}
		if snippet := a.Closest(".result").Find(".result__snippet").First(); snippet.Length() > 0 {
			r.Snippet = strings.Join(strings.Fields(snippet.Text()), " ")
		}
		results = append(results, r)
	})
	return results, nil
}

func resolveLink(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	if u.Scheme == "http" || u.Scheme == "https" {
		return href
	}
	return ""
}

// WordCount totals the words in result titles and snippets.
func WordCount(results []Result) int {
	n := 0
	for _, r := range results {
		n += len(strings.Fields(r.Title)) + len(strings.Fields(r.Snippet))
	}
	return n
}
