// Package pipeline implements the staged keyword generation workflow: seed
// analysis, expansion, metric estimation, ranking, clustering and a final
// quality pass.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/FranksOps/seoforge/internal/apperr"
	"github.com/FranksOps/seoforge/internal/estimate"
	"github.com/FranksOps/seoforge/internal/llm"
	"github.com/FranksOps/seoforge/internal/metrics"
	"github.com/FranksOps/seoforge/internal/serp"
)

// TotalStages is the progress total of a generation run.
const TotalStages = 6

// Stage names, used in progress messages and the fallbacks list.
const (
	StageSeedAnalysis = "seed_analysis"
	StageExpansion    = "expansion"
	StageEstimation   = "metric_estimation"
	StageFilterRank   = "filter_rank"
	StageCluster      = "cluster_dedup"
	StageFinalQA      = "final_qa"
)

const (
	maxCandidates  = 50
	rankedLimit    = 20
	minFinalists   = 10
	maxFinalists   = 20
	minPerIntent   = 3
	minKeywordLen  = 3
	maxSubtopics   = 3
	serpProbeLimit = 10
)

// Request is the immutable input of a run.
type Request struct {
	Seed    string `json:"seed"`
	Lang    string `json:"lang"`
	Country string `json:"country"`
	TopN    int    `json:"top_n"`
}

// Normalize applies defaults and validates the seed.
func (r Request) Normalize() (Request, error) {
	r.Seed = strings.TrimSpace(r.Seed)
	if r.Seed == "" {
		return r, fmt.Errorf("%w: seed is required", apperr.ErrValidation)
	}
	if r.Lang == "" {
		r.Lang = "en"
	}
	if r.Country == "" {
		r.Country = "us"
	}
	if r.TopN <= 0 {
		r.TopN = maxFinalists
	}
	return r, nil
}

// Keyword is a candidate with its metrics.
type Keyword struct {
	Keyword string `json:"keyword"`
	estimate.Metrics
}

// RankedKeyword is a keyword with its composite score,
// search_volume / (1 + keyword_difficulty).
type RankedKeyword struct {
	Keyword string  `json:"keyword"`
	Score   float64 `json:"score"`
}

// Metadata describes a run.
type Metadata struct {
	Query        string    `json:"query"`
	Country      string    `json:"country"`
	Language     string    `json:"language"`
	Timestamp    time.Time `json:"timestamp"`
	TotalResults int       `json:"total_results"`
}

// Response is the output of a run. Fallbacks names the stages that used
// their offline fallback instead of collaborator output.
type Response struct {
	Keywords  []Keyword       `json:"keywords"`
	Ranking   []RankedKeyword `json:"ranking"`
	Metadata  Metadata        `json:"metadata"`
	Fallbacks []string        `json:"fallbacks"`
}

// ProgressFunc receives progress out of TotalStages.
type ProgressFunc func(current int, status string)

// Prober counts autocomplete suggestions for a keyword.
type Prober interface {
	Probe(ctx context.Context, keyword string) int
}

// Config tunes a Generator.
type Config struct {
	// Concurrency bounds signal probes. Default 8.
	Concurrency int
	// Heuristic backs every keyword the estimator leaves uncovered. Nil
	// uses a randomly seeded one.
	Heuristic *estimate.Heuristic
	Now       func() time.Time
}

// Generator runs keyword generation.
type Generator struct {
	llm       llm.Completer
	estimator estimate.Estimator
	prober    Prober
	search    serp.Provider
	cfg       Config
	logger    *slog.Logger
}

// New returns a Generator. completer is required: without it no stage can
// run and the error wraps apperr.ErrConfiguration. est may be nil, in which
// case the collaborator is asked first and the heuristic covers the rest.
// prober and search are optional signal sources.
func New(completer llm.Completer, est estimate.Estimator, prober Prober, search serp.Provider, cfg Config, logger *slog.Logger) (*Generator, error) {
	if completer == nil {
		return nil, fmt.Errorf("%w: keyword generation needs GOOGLE_API_KEY", apperr.ErrConfiguration)
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	if cfg.Heuristic == nil {
		cfg.Heuristic = estimate.NewRandomHeuristic()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	if est == nil {
		est = estimate.NewLLM(completer, logger)
	}

	return &Generator{
		llm:       completer,
		estimator: estimate.NewChain(logger, est, cfg.Heuristic),
		prober:    prober,
		search:    search,
		cfg:       cfg,
		logger:    logger,
	}, nil
}

type run struct {
	g         *Generator
	req       Request
	fallbacks []string
}

func (r *run) fallback(stage string, reason any) {
	r.fallbacks = append(r.fallbacks, stage)
	metrics.StageFallbacks.WithLabelValues("keyword_generation", stage).Inc()
	r.g.logger.Warn("stage fell back", "stage", stage, "seed", r.req.Seed, "reason", reason)
}

// Run executes all six stages. Collaborator failures inside a stage degrade
// to that stage's fallback; the only errors returned are validation errors
// and context cancellation.
func (g *Generator) Run(ctx context.Context, req Request, progress ProgressFunc) (*Response, error) {
	req, err := req.Normalize()
	if err != nil {
		return nil, err
	}
	if progress == nil {
		progress = func(int, string) {}
	}

	r := &run{g: g, req: req}
	start := g.cfg.Now()

	progress(0, "Analyzing seed keyword")
	seed := r.analyzeSeed(ctx)

	progress(1, "Expanding keyword ideas")
	candidates := r.expand(ctx, seed)

	progress(2, "Estimating keyword metrics")
	estimated, err := r.estimate(ctx, candidates)
	if err != nil {
		return nil, err
	}

	progress(3, "Filtering and ranking")
	ranked := r.filterRank(ctx, estimated)

	progress(4, "Clustering and deduplicating")
	finalists := r.cluster(ctx, ranked)

	progress(5, "Final quality checks")
	final := finalQA(finalists, ranked, estimated, finalLimit(req.TopN))

	progress(6, "Keyword generation complete")
	g.logger.Info("keyword generation complete",
		"seed", req.Seed, "candidates", len(candidates), "keywords", len(final),
		"fallbacks", r.fallbacks, "elapsed", g.cfg.Now().Sub(start))

	if r.fallbacks == nil {
		r.fallbacks = []string{}
	}
	return &Response{
		Keywords: final,
		Ranking:  Rank(final),
		Metadata: Metadata{
			Query:        req.Seed,
			Country:      req.Country,
			Language:     req.Lang,
			Timestamp:    g.cfg.Now().UTC(),
			TotalResults: len(final),
		},
		Fallbacks: r.fallbacks,
	}, nil
}

// Rank orders keywords by composite score, descending. Ties keep input order.
func Rank(keywords []Keyword) []RankedKeyword {
	out := make([]RankedKeyword, len(keywords))
	for i, k := range keywords {
		out[i] = RankedKeyword{
			Keyword: k.Keyword,
			Score:   float64(k.SearchVolume) / float64(1+k.KeywordDifficulty),
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

func finalLimit(topN int) int {
	return min(max(topN, minFinalists), maxFinalists)
}
