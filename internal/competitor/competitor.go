// Package competitor analyzes competitor pages: discovery through search
// results, keyword extraction and content-gap analysis against the user's
// own keywords.
package competitor

import (
	"context"
	"log/slog"

	"github.com/FranksOps/seoforge/internal/llm"
	"github.com/FranksOps/seoforge/internal/scraper"
	"github.com/FranksOps/seoforge/internal/serp"
)

const (
	DefaultMaxKeywords = 5

	discoverPerKeyword = 2
	discoverMax        = 10
)

// PageFetcher retrieves a page. *scraper.Fetcher satisfies it.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (*scraper.Page, error)
}

// ProgressFunc receives progress against a job-specific total.
type ProgressFunc func(current int, status string)

// Config tunes an Analyzer.
type Config struct {
	// Concurrency bounds page fetches. Default 8.
	Concurrency int
	// SnapshotLimit caps snapshot body text sent to the model.
	SnapshotLimit int
}

// Analyzer runs competitor workflows. The completer is optional for keyword
// extraction and required for gap analysis; search is only needed by
// Discover.
type Analyzer struct {
	fetcher PageFetcher
	llm     llm.Completer
	search  serp.Provider
	cfg     Config
	logger  *slog.Logger
}

// New returns an Analyzer.
func New(fetcher PageFetcher, completer llm.Completer, search serp.Provider, cfg Config, logger *slog.Logger) *Analyzer {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	if cfg.SnapshotLimit <= 0 {
		cfg.SnapshotLimit = scraper.SnapshotBodyLimit
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{
		fetcher: fetcher,
		llm:     completer,
		search:  search,
		cfg:     cfg,
		logger:  logger,
	}
}

// CanAnalyzeGap reports whether a completer is configured.
func (a *Analyzer) CanAnalyzeGap() bool {
	return a.llm != nil
}

// snapshot fetches and parses pageURL. Any failure yields an empty snapshot
// carrying only the URL.
func (a *Analyzer) snapshot(ctx context.Context, pageURL string, bodyLimit int) scraper.Snapshot {
	page, err := a.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		a.logger.Warn("competitor fetch failed", "url", pageURL, "err", err)
		return scraper.Snapshot{URL: pageURL}
	}
	snap, err := scraper.ParseSnapshot(pageURL, page.Body, bodyLimit)
	if err != nil {
		a.logger.Warn("competitor page unparsable", "url", pageURL, "err", err)
		return scraper.Snapshot{URL: pageURL}
	}
	return snap
}
