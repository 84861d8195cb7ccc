// Package autocomplete queries public suggestion endpoints, both to count
// suggestions for a keyword and to grow a seed into long-tail variants.
package autocomplete

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/FranksOps/seoforge/internal/metrics"
	"github.com/FranksOps/seoforge/pkg/httpclient"
	"golang.org/x/sync/errgroup"
)

const (
	GoogleEndpoint     = "https://suggestqueries.google.com/complete/search"
	DuckDuckGoEndpoint = "https://duckduckgo.com/ac/"

	DefaultTimeout = 8 * time.Second
)

// Source returns suggestions for a query.
type Source interface {
	Name() string
	Suggest(ctx context.Context, query string) ([]string, error)
}

// HTTPSource reads the OpenSearch suggestion format: ["query", ["s1", "s2", ...]].
type HTTPSource struct {
	SourceName string
	Endpoint   string
	Params     url.Values
	// QueryParam defaults to "q".
	QueryParam string

	client *httpclient.Client
}

// ensure HTTPSource implements Source
var _ Source = (*HTTPSource)(nil)

// NewGoogle returns the web search suggestion source.
func NewGoogle(client *httpclient.Client, lang, country string) *HTTPSource {
	return &HTTPSource{
		SourceName: "google",
		Endpoint:   GoogleEndpoint,
		Params:     url.Values{"client": {"firefox"}, "hl": {lang}, "gl": {country}},
		client:     client,
	}
}

// NewYouTube returns the video platform suggestion source.
func NewYouTube(client *httpclient.Client, lang, country string) *HTTPSource {
	return &HTTPSource{
		SourceName: "youtube",
		Endpoint:   GoogleEndpoint,
		Params:     url.Values{"client": {"firefox"}, "ds": {"yt"}, "hl": {lang}, "gl": {country}},
		client:     client,
	}
}

// NewDuckDuckGo returns the DuckDuckGo suggestion source.
func NewDuckDuckGo(client *httpclient.Client) *HTTPSource {
	return &HTTPSource{
		SourceName: "duckduckgo",
		Endpoint:   DuckDuckGoEndpoint,
		Params:     url.Values{"type": {"list"}},
		client:     client,
	}
}

// DefaultSources returns the web, video and DuckDuckGo sources.
func DefaultSources(client *httpclient.Client, lang, country string) []Source {
	return []Source{
		NewGoogle(client, lang, country),
		NewYouTube(client, lang, country),
		NewDuckDuckGo(client),
	}
}

// Name implements Source.
func (s *HTTPSource) Name() string { return s.SourceName }

// Suggest implements Source.
func (s *HTTPSource) Suggest(ctx context.Context, query string) ([]string, error) {
	q := url.Values{}
	for k, v := range s.Params {
		q[k] = append([]string(nil), v...)
	}
	param := s.QueryParam
	if param == "" {
		param = "q"
	}
	q.Set(param, query)

	var raw []json.RawMessage
	if err := s.client.GetJSON(ctx, s.Endpoint+"?"+q.Encode(), &raw); err != nil {
		return nil, fmt.Errorf("%s suggestions: %w", s.SourceName, err)
	}
	if len(raw) < 2 {
		return nil, fmt.Errorf("%s suggestions: unexpected response shape", s.SourceName)
	}
	var suggestions []string
	if err := json.Unmarshal(raw[1], &suggestions); err != nil {
		return nil, fmt.Errorf("%s suggestions: %w", s.SourceName, err)
	}
	return suggestions, nil
}

// Client fans a probe out to every source.
type Client struct {
	sources []Source
	timeout time.Duration
	logger  *slog.Logger
}

// NewClient returns a Client. A zero timeout uses DefaultTimeout.
func NewClient(sources []Source, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{sources: sources, timeout: timeout, logger: logger}
}

// Probe queries all sources concurrently and returns the total number of
// suggestions. A source that errors or times out contributes 0; sources are
// never retried.
func (c *Client) Probe(ctx context.Context, keyword string) int {
	var total atomic.Int64
	var g errgroup.Group

	for _, src := range c.sources {
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(ctx, c.timeout)
			defer cancel()

			suggestions, err := src.Suggest(callCtx, keyword)
			metrics.ProbeRequests.WithLabelValues(src.Name(), metrics.Outcome(err)).Inc()
			if err != nil {
				c.logger.Debug("autocomplete source failed", "source", src.Name(), "keyword", keyword, "err", err)
				return nil
			}
			total.Add(int64(len(suggestions)))
			return nil
		})
	}
	_ = g.Wait()

	return int(total.Load())
}
