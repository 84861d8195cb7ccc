package competitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/FranksOps/seoforge/internal/analyzer"
	"github.com/FranksOps/seoforge/internal/apperr"
	"github.com/FranksOps/seoforge/internal/llm"
	"github.com/FranksOps/seoforge/internal/scraper"
)

// ExtractKeywords returns up to limit keywords for the page at pageURL. When a
// completer is configured the statistical candidates are reordered by
// business relevance. Failures at any step return what was computed so far,
// so an unreachable page yields an empty list.
func (a *Analyzer) ExtractKeywords(ctx context.Context, pageURL string, limit int) []string {
	if limit <= 0 {
		limit = DefaultMaxKeywords
	}

	page, err := a.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		a.logger.Warn("keyword extraction fetch failed", "url", pageURL, "err", err)
		return []string{}
	}
	snap, err := scraper.ParseSnapshot(pageURL, page.Body, 0)
	if err != nil {
		a.logger.Warn("keyword extraction parse failed", "url", pageURL, "err", err)
		return []string{}
	}

	keywords := analyzer.ExtractKeywords(snap.Text(), limit)
	if keywords == nil {
		keywords = []string{}
	}
	if a.llm == nil || len(keywords) < 2 {
		return keywords
	}
	return a.rerank(ctx, snap, keywords)
}

func (a *Analyzer) rerank(ctx context.Context, snap scraper.Snapshot, keywords []string) []string {
	list, _ := json.Marshal(keywords)
	prompt := fmt.Sprintf("Reorder these keywords from the page %q (title %q) by how relevant they are "+
		"to the business behind the page, most relevant first. Return only a JSON array of the same "+
		"keyword strings.\n\n%s", snap.URL, snap.Title, list)

	text, err := a.llm.Complete(ctx, prompt)
	if err != nil {
		a.logger.Warn("keyword rerank failed", "url", snap.URL, "err", err)
		return keywords
	}
	var raw []any
	if err := llm.DecodeArray(text, &raw); err != nil {
		a.logger.Warn("keyword rerank unparsable", "url", snap.URL, "err", err)
		return keywords
	}
	return reorder(keywords, strs(raw))
}

// reorder moves the keywords named in order to the front, in that order.
// Names outside keywords are ignored and unnamed keywords keep their
// relative order at the end.
func reorder(keywords, order []string) []string {
	index := make(map[string]int, len(keywords))
	for i, k := range keywords {
		index[strings.ToLower(k)] = i
	}
	used := make([]bool, len(keywords))
	out := make([]string, 0, len(keywords))
	for _, name := range order {
		i, ok := index[strings.ToLower(name)]
		if !ok || used[i] {
			continue
		}
		used[i] = true
		out = append(out, keywords[i])
	}
	for i, k := range keywords {
		if !used[i] {
			out = append(out, k)
		}
	}
	return out
}

// ExtractAll extracts keywords from every URL concurrently. Each URL maps to
// its own list, empty when extraction failed. progress counts finished URLs.
func (a *Analyzer) ExtractAll(ctx context.Context, urls []string, limit int, progress ProgressFunc) map[string][]string {
	if progress == nil {
		progress = func(int, string) {}
	}
	out := make(map[string][]string, len(urls))
	progress(0, fmt.Sprintf("Extracting keywords from %d pages", len(urls)))

	var mu sync.Mutex
	done := 0
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.Concurrency)
	for _, u := range urls {
		g.Go(func() error {
			kws := a.ExtractKeywords(gctx, u, limit)
			mu.Lock()
			defer mu.Unlock()
			out[u] = kws
			done++
			progress(done, "Extracted "+u)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// Discover finds competitor URLs by searching each keyword and taking the
// first two organic links, stopping once ten are collected. Duplicate links
// are skipped. It fails only when every search failed.
func (a *Analyzer) Discover(ctx context.Context, keywords []string) ([]string, error) {
	if a.search == nil {
		return nil, fmt.Errorf("%w: no search provider configured", apperr.ErrConfiguration)
	}
	if len(keywords) == 0 {
		return nil, fmt.Errorf("%w: keywords are required", apperr.ErrValidation)
	}

	links := []string{}
	seen := make(map[string]bool)
	var errs []error
	for _, kw := range keywords {
		if len(links) >= discoverMax {
			break
		}
		results, err := a.search.Search(ctx, kw, 0)
		if err != nil {
			a.logger.Warn("competitor discovery search failed", "keyword", kw, "err", err)
			errs = append(errs, err)
			continue
		}
		taken := 0
		for _, r := range results {
			if taken == discoverPerKeyword || len(links) == discoverMax {
				break
			}
			if seen[r.URL] {
				continue
			}
			seen[r.URL] = true
			links = append(links, r.URL)
			taken++
		}
	}

	if len(errs) == len(keywords) {
		return nil, fmt.Errorf("%w: competitor discovery: %w", apperr.ErrUnavailable, errors.Join(errs...))
	}
	return links, nil
}
