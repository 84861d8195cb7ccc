// Package estimate produces keyword metrics, either from the generative
// collaborator or from a local heuristic.
package estimate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
)

// Intent classifies what a searcher wants.
type Intent string

const (
	Informational Intent = "informational"
	Commercial    Intent = "commercial"
	Navigational  Intent = "navigational"
)

// ParseIntent normalizes s. Unknown values report false.
func ParseIntent(s string) (Intent, bool) {
	switch Intent(normalizeLabel(s)) {
	case Informational:
		return Informational, true
	case Commercial:
		return Commercial, true
	case Navigational:
		return Navigational, true
	}
	return "", false
}

// Source values recorded on Metrics.
const (
	SourceLLM       = "llm"
	SourceHeuristic = "heuristic"
)

// Metrics are the estimated search metrics for one keyword.
type Metrics struct {
	SearchVolume       int      `json:"search_volume"`
	KeywordDifficulty  int      `json:"keyword_difficulty"`
	CPCUSD             float64  `json:"cpc_usd"`
	CompetitiveDensity float64  `json:"competitive_density"`
	Intent             Intent   `json:"intent"`
	Features           []string `json:"features,omitempty"`
	Source             string   `json:"source,omitempty"`
}

// Clamp forces every field into its valid range. Out-of-range values are
// clamped, never rejected.
func (m Metrics) Clamp() Metrics {
	m.SearchVolume = max(m.SearchVolume, 0)
	m.KeywordDifficulty = min(max(m.KeywordDifficulty, 0), 100)
	if m.CPCUSD < 0 || math.IsNaN(m.CPCUSD) {
		m.CPCUSD = 0
	}
	if math.IsNaN(m.CompetitiveDensity) {
		m.CompetitiveDensity = 0
	}
	m.CompetitiveDensity = math.Min(math.Max(m.CompetitiveDensity, 0), 1)
	if _, ok := ParseIntent(string(m.Intent)); !ok {
		m.Intent = Informational
	}
	return m
}

// Signals are the probe observations for a keyword.
type Signals struct {
	SuggestionCount int `json:"suggestion_count"`
	SERPWordCount   int `json:"serp_word_count"`
}

// Estimator estimates metrics for a batch of keywords. Keywords absent from
// the returned map could not be estimated.
type Estimator interface {
	Estimate(ctx context.Context, keywords []string, signals map[string]Signals) (map[string]Metrics, error)
}

// ErrIncomplete is returned by Chain when no estimator covered a keyword.
var ErrIncomplete = errors.New("keywords left without metrics")

// Chain tries each estimator in order, passing only the keywords still
// missing to the next one.
type Chain struct {
	estimators []Estimator
	logger     *slog.Logger
}

// ensure Chain implements Estimator
var _ Estimator = (*Chain)(nil)

// NewChain composes estimators. Nil entries are skipped, so an optional
// collaborator-backed estimator can be passed unconditionally.
func NewChain(logger *slog.Logger, estimators ...Estimator) *Chain {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Chain{logger: logger}
	for _, e := range estimators {
		if e != nil {
			c.estimators = append(c.estimators, e)
		}
	}
	return c
}

// Estimate implements Estimator.
func (c *Chain) Estimate(ctx context.Context, keywords []string, signals map[string]Signals) (map[string]Metrics, error) {
	out := make(map[string]Metrics, len(keywords))
	remaining := keywords

	for i, e := range c.estimators {
		if len(remaining) == 0 {
			break
		}
		got, err := e.Estimate(ctx, remaining, signals)
		if err != nil {
			c.logger.Warn("estimator failed, falling back", "estimator", fmt.Sprintf("%T", e), "keywords", len(remaining), "err", err)
			continue
		}

		var missing []string
		for _, kw := range remaining {
			if m, ok := got[kw]; ok {
				out[kw] = m.Clamp()
			} else {
				missing = append(missing, kw)
			}
		}
		if len(missing) > 0 && i < len(c.estimators)-1 {
			c.logger.Debug("estimator left keywords uncovered", "estimator", fmt.Sprintf("%T", e), "missing", len(missing))
		}
		remaining = missing
	}

	if len(remaining) > 0 {
		return out, fmt.Errorf("%w: %d", ErrIncomplete, len(remaining))
	}
	return out, nil
}
