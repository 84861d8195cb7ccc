package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/FranksOps/seoforge/internal/analyzer"
	"github.com/FranksOps/seoforge/internal/estimate"
	"github.com/FranksOps/seoforge/internal/llm"
	"github.com/FranksOps/seoforge/internal/serp"
)

// SeedAnalysis is the stage 1 output.
type SeedAnalysis struct {
	Intent    estimate.Intent `json:"intent"`
	Subtopics []string        `json:"subtopics"`
	Modifiers []string        `json:"modifiers"`
}

func (r *run) analyzeSeed(ctx context.Context) SeedAnalysis {
	fallback := SeedAnalysis{Intent: estimate.Informational}

	prompt := fmt.Sprintf("Analyze the seed keyword %q for a %s-language audience in %s. "+
		"Identify its search intent (informational, commercial or navigational), up to three subtopics "+
		"and common modifiers searchers add to it.\n"+
		`Return only a JSON object: {"intent": "...", "subtopics": ["..."], "modifiers": ["..."]}`,
		r.req.Seed, r.req.Lang, strings.ToUpper(r.req.Country))

	text, err := r.g.llm.Complete(ctx, prompt)
	if err != nil {
		r.fallback(StageSeedAnalysis, err)
		return fallback
	}

	var raw struct {
		Intent    string `json:"intent"`
		Subtopics []any  `json:"subtopics"`
		Modifiers []any  `json:"modifiers"`
	}
	if err := llm.DecodeObject(text, &raw); err != nil {
		r.fallback(StageSeedAnalysis, err)
		return fallback
	}

	out := fallback
	if intent, ok := estimate.ParseIntent(raw.Intent); ok {
		out.Intent = intent
	}
	out.Subtopics = stringsOf(raw.Subtopics, maxSubtopics)
	out.Modifiers = stringsOf(raw.Modifiers, 0)
	return out
}

func (r *run) expand(ctx context.Context, seed SeedAnalysis) []string {
	analysis, _ := json.Marshal(seed)
	prompt := fmt.Sprintf("Generate keyword ideas related to %q for a %s-language audience in %s. "+
		"Use this analysis of the seed: %s. Mix informational, commercial and long-tail phrasings. "+
		"Return only a JSON array of at most %d keyword strings.",
		r.req.Seed, r.req.Lang, strings.ToUpper(r.req.Country), analysis, maxCandidates)

	text, err := r.g.llm.Complete(ctx, prompt)
	if err != nil {
		r.fallback(StageExpansion, err)
		return nil
	}

	var raw []any
	if err := llm.DecodeArray(text, &raw); err != nil {
		r.fallback(StageExpansion, err)
		return nil
	}
	return stringsOf(raw, maxCandidates)
}

func (r *run) estimate(ctx context.Context, candidates []string) ([]Keyword, error) {
	keywords := filterCandidates(candidates)
	if len(keywords) == 0 {
		return nil, nil
	}

	signals, err := r.probe(ctx, keywords)
	if err != nil {
		return nil, err
	}

	est, err := r.g.estimator.Estimate(ctx, keywords, signals)
	if err != nil {
		r.g.logger.Warn("metric estimation incomplete", "seed", r.req.Seed, "err", err)
	}

	out := make([]Keyword, 0, len(keywords))
	heuristic := 0
	for _, kw := range keywords {
		m, ok := est[kw]
		if !ok {
			m = r.g.cfg.Heuristic.EstimateOne(kw, signals[kw])
		}
		if m.Source == estimate.SourceHeuristic {
			heuristic++
		}
		out = append(out, Keyword{Keyword: kw, Metrics: m.Clamp()})
	}
	if heuristic > 0 {
		r.fallback(StageEstimation, fmt.Sprintf("%d of %d keywords estimated heuristically", heuristic, len(out)))
	}
	return out, nil
}

// probe gathers signals for every keyword with bounded concurrency. Probe
// failures degrade to zero signals; only cancellation is returned.
func (r *run) probe(ctx context.Context, keywords []string) (map[string]estimate.Signals, error) {
	signals := make(map[string]estimate.Signals, len(keywords))
	if r.g.prober == nil && r.g.search == nil {
		return signals, nil
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.g.cfg.Concurrency)

	for _, kw := range keywords {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			var s estimate.Signals
			if r.g.prober != nil {
				s.SuggestionCount = r.g.prober.Probe(gctx, kw)
			}
			if r.g.search != nil {
				results, err := r.g.search.Search(gctx, kw, serpProbeLimit)
				if err != nil {
					r.g.logger.Debug("serp probe failed", "keyword", kw, "err", err)
				}
				s.SERPWordCount = serp.WordCount(results)
			}
			mu.Lock()
			signals[kw] = s
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("probe signals: %w", err)
	}
	return signals, nil
}

func (r *run) filterRank(ctx context.Context, keywords []Keyword) []Keyword {
	passThrough := keywords[:min(len(keywords), rankedLimit)]
	if len(keywords) == 0 {
		return passThrough
	}

	payload, err := json.Marshal(keywords)
	if err != nil {
		r.fallback(StageFilterRank, err)
		return passThrough
	}
	prompt := fmt.Sprintf("Select the best keywords to target for the seed %q. Prefer relevance to the seed, "+
		"then high search volume with low difficulty, and keep a mix of intents. "+
		"Return only a JSON array of at most %d keyword strings from the list below, best first.\n\n%s",
		r.req.Seed, rankedLimit, payload)

	text, err := r.g.llm.Complete(ctx, prompt)
	if err != nil {
		r.fallback(StageFilterRank, err)
		return passThrough
	}

	var raw []any
	if err := llm.DecodeArray(text, &raw); err != nil {
		r.fallback(StageFilterRank, err)
		return passThrough
	}

	ranked := pick(keywords, stringsOf(raw, 0), rankedLimit)
	if len(ranked) == 0 {
		r.fallback(StageFilterRank, "no known keywords selected")
		return passThrough
	}
	return ranked
}

func (r *run) cluster(ctx context.Context, ranked []Keyword) []Keyword {
	if len(ranked) == 0 {
		return ranked
	}

	payload, _ := json.Marshal(names(ranked))
	prompt := "Group these keywords into clusters of near-duplicates that a single page could target. " +
		"Put the strongest keyword of each cluster first. Return only a JSON array of arrays of " +
		"keyword strings, using only keywords from the list.\n\n" + string(payload)

	var reps []Keyword
	var reason any = "no usable clusters"
	text, err := r.g.llm.Complete(ctx, prompt)
	if err == nil {
		var raw []any
		if err = llm.DecodeArray(text, &raw); err == nil {
			for _, c := range clustersOf(raw) {
				reps = append(reps, pick(ranked, c, 1)...)
			}
		}
	}
	if err != nil {
		reason = err
	}
	// a keyword may head more than one returned cluster
	reps = pick(reps, names(reps), 0)
	if len(reps) == 0 {
		r.fallback(StageCluster, reason)
		reps = ClusterByOverlap(ranked, overlapThreshold)
	}

	return backfill(inRankOrder(reps, ranked), ranked, min(minFinalists, len(ranked)))
}

// filterCandidates trims, drops short and stopword-only candidates and
// removes case-insensitive duplicates, keeping first-seen order.
func filterCandidates(candidates []string) []string {
	seen := make(map[string]bool, len(candidates))
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		c = strings.Join(strings.Fields(c), " ")
		key := strings.ToLower(c)
		if utf8.RuneCountInString(c) < minKeywordLen || analyzer.IsStopword(key) || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, c)
	}
	return out
}

func names(keywords []Keyword) []string {
	out := make([]string, len(keywords))
	for i, k := range keywords {
		out[i] = k.Keyword
	}
	return out
}

// pick returns the keywords named by names, in names order, matched
// case-insensitively. Unknown names and repeats are skipped. limit <= 0 is
// unlimited.
func pick(keywords []Keyword, names []string, limit int) []Keyword {
	byLower := make(map[string]Keyword, len(keywords))
	for _, k := range keywords {
		byLower[strings.ToLower(k.Keyword)] = k
	}

	var out []Keyword
	used := make(map[string]bool)
	for _, n := range names {
		key := strings.ToLower(strings.TrimSpace(n))
		k, ok := byLower[key]
		if !ok || used[key] {
			continue
		}
		used[key] = true
		out = append(out, k)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// stringsOf collects non-empty strings from decoded JSON. Objects contribute
// their "keyword" field. limit <= 0 is unlimited.
func stringsOf(raw []any, limit int) []string {
	var out []string
	for _, v := range raw {
		var s string
		switch x := v.(type) {
		case string:
			s = x
		case map[string]any:
			s, _ = x["keyword"].(string)
		}
		if s = strings.TrimSpace(s); s == "" {
			continue
		}
		out = append(out, s)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// clustersOf accepts an array of string arrays, or of objects with a
// "keywords" list.
func clustersOf(raw []any) [][]string {
	var out [][]string
	for _, v := range raw {
		var members []any
		switch x := v.(type) {
		case []any:
			members = x
		case map[string]any:
			members, _ = x["keywords"].([]any)
		}
		if c := stringsOf(members, 0); len(c) > 0 {
			out = append(out, c)
		}
	}
	return out
}
