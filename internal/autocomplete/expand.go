package autocomplete

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	DefaultMaxDepth = 3
	DefaultMaxNodes = 500
)

// ExpandConfig bounds a long-tail expansion.
type ExpandConfig struct {
	MaxDepth    int
	MaxNodes    int
	Concurrency int
	Timeout     time.Duration
}

// Expander grows a seed into long-tail keywords by following suggestions
// level by level.
type Expander struct {
	source Source
	cfg    ExpandConfig
	logger *slog.Logger
}

// NewExpander returns an Expander over source.
func NewExpander(source Source, cfg ExpandConfig, logger *slog.Logger) *Expander {
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = DefaultMaxDepth
	}
	if cfg.MaxNodes <= 0 {
		cfg.MaxNodes = DefaultMaxNodes
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Expander{source: source, cfg: cfg, logger: logger}
}

// foldKey identifies suggestions that differ only in case or padding.
func foldKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Expand returns every distinct suggestion reachable from seed within
// MaxDepth suggestion calls, stopping once MaxNodes keywords are collected.
// Suggestions differing only in case count once; the first spelling wins.
// The seen set lives for one call only. Source failures count as no
// suggestions. The result is sorted.
func (e *Expander) Expand(ctx context.Context, seed string) ([]string, error) {
	visited := map[string]bool{foldKey(seed): true}
	var found []string
	frontier := []string{seed}

	for depth := 1; depth <= e.cfg.MaxDepth && len(frontier) > 0; depth++ {
		if err := ctx.Err(); err != nil {
			sort.Strings(found)
			return found, err
		}

		results := make([][]string, len(frontier))
		g := new(errgroup.Group)
		g.SetLimit(e.cfg.Concurrency)
		for i, kw := range frontier {
			g.Go(func() error {
				callCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
				defer cancel()
				suggestions, err := e.source.Suggest(callCtx, kw)
				if err != nil {
					e.logger.Debug("expansion suggest failed", "keyword", kw, "depth", depth, "err", err)
					return nil
				}
				results[i] = suggestions
				return nil
			})
		}
		_ = g.Wait()

		var next []string
		for _, suggestions := range results {
			for _, s := range suggestions {
				key := foldKey(s)
				if key == "" || visited[key] {
					continue
				}
				if len(found) >= e.cfg.MaxNodes {
					e.logger.Debug("expansion node budget reached", "seed", seed, "nodes", len(found))
					sort.Strings(found)
					return found, nil
				}
				visited[key] = true
				found = append(found, s)
				next = append(next, s)
			}
		}
		frontier = next
	}

	sort.Strings(found)
	return found, nil
}
