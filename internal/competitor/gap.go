package competitor

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/FranksOps/seoforge/internal/analyzer"
	"github.com/FranksOps/seoforge/internal/apperr"
	"github.com/FranksOps/seoforge/internal/llm"
	"github.com/FranksOps/seoforge/internal/metrics"
	"github.com/FranksOps/seoforge/internal/scraper"
)

// GapTotal is the progress total of AnalyzeGap.
const GapTotal = 3

// ParseFailureRecommendation is returned when the model output holds no
// usable object.
const ParseFailureRecommendation = "Could not parse LLM output"

// GapRequest is the input of a content-gap analysis.
type GapRequest struct {
	UserKeywords            []string            `json:"user_keywords"`
	CompetitorKeywordsByURL map[string][]string `json:"competitor_keywords_by_url"`
	UserURL                 string              `json:"user_url,omitempty"`
	CompetitorURLs          []string            `json:"competitor_urls,omitempty"`
}

// Validate rejects requests with nothing to compare.
func (r GapRequest) Validate() error {
	if len(r.UserKeywords) == 0 && r.UserURL == "" {
		return fmt.Errorf("%w: user_keywords or user_url is required", apperr.ErrValidation)
	}
	if len(r.CompetitorKeywordsByURL) == 0 && len(r.CompetitorURLs) == 0 {
		return fmt.Errorf("%w: competitor_keywords_by_url or competitor_urls is required", apperr.ErrValidation)
	}
	return nil
}

// GapResult is the outcome of a content-gap analysis. Evidence lists where
// competitor pages mention each gap. MissingOnUserPage holds competitor
// keywords absent from the user's fetched page.
type GapResult struct {
	ContentGaps       []string             `json:"content_gaps"`
	Recommendations   []string             `json:"recommendations"`
	Evidence          []analyzer.TermMatch `json:"evidence,omitempty"`
	MissingOnUserPage []string             `json:"missing_on_user_page,omitempty"`
}

// AnalyzeGap compares the user's keywords and page against competitors with
// one model call. Unreachable pages become empty snapshots and unusable
// model output becomes an empty gap list; the only error is a missing
// completer or an invalid request.
func (a *Analyzer) AnalyzeGap(ctx context.Context, req GapRequest, progress ProgressFunc) (*GapResult, error) {
	if a.llm == nil {
		return nil, fmt.Errorf("%w: content gap analysis needs GOOGLE_API_KEY", apperr.ErrConfiguration)
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if progress == nil {
		progress = func(int, string) {}
	}

	progress(0, "Fetching pages")
	user, competitors := a.fetchSnapshots(ctx, req)
	competitorKeywords := FlattenKeywords(req.CompetitorKeywordsByURL)

	progress(1, "Analyzing content gaps")
	result := a.askGaps(ctx, req.UserKeywords, user, competitors, competitorKeywords)

	if !user.Empty() {
		result.MissingOnUserPage = analyzer.MissingTerms(user.Text(), competitorKeywords)
	}
	for _, snap := range competitors {
		if snap.Empty() {
			continue
		}
		result.Evidence = append(result.Evidence, analyzer.FindTermMatches(snap.Text(), snap.URL, result.ContentGaps)...)
	}

	progress(2, "Content gap analysis complete")
	a.logger.Info("content gap analysis complete",
		"competitors", len(competitors), "competitor_keywords", len(competitorKeywords),
		"gaps", len(result.ContentGaps))
	return result, nil
}

// fetchSnapshots fetches the user page and every competitor page
// concurrently. The returned competitor snapshots follow request order.
func (a *Analyzer) fetchSnapshots(ctx context.Context, req GapRequest) (scraper.Snapshot, []scraper.Snapshot) {
	var user scraper.Snapshot
	competitors := make([]scraper.Snapshot, len(req.CompetitorURLs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.Concurrency)

	if req.UserURL != "" {
		g.Go(func() error {
			user = a.snapshot(gctx, req.UserURL, a.cfg.SnapshotLimit)
			return nil
		})
	}
	for i, u := range req.CompetitorURLs {
		g.Go(func() error {
			competitors[i] = a.snapshot(gctx, u, a.cfg.SnapshotLimit)
			return nil
		})
	}
	_ = g.Wait()
	return user, competitors
}

func (a *Analyzer) askGaps(ctx context.Context, userKeywords []string, user scraper.Snapshot, competitors []scraper.Snapshot, competitorKeywords []string) *GapResult {
	payload, _ := json.Marshal(struct {
		UserPage           *scraper.Snapshot  `json:"user_page,omitempty"`
		UserKeywords       []string           `json:"user_keywords"`
		CompetitorPages    []scraper.Snapshot `json:"competitor_pages,omitempty"`
		CompetitorKeywords []string           `json:"competitor_keywords"`
	}{
		UserPage:           snapshotOrNil(user),
		UserKeywords:       userKeywords,
		CompetitorPages:    competitors,
		CompetitorKeywords: competitorKeywords,
	})

	prompt := "You are an expert SEO strategist and content gap analyst. Given the user's page and " +
		"keywords and the competitor pages and keywords below, identify the most important content gaps " +
		"(keywords or topics competitors cover that the user is missing), then give actionable " +
		"recommendations to improve the user's content and SEO.\n" +
		`Return only a JSON object: {"content_gaps": ["..."], "recommendations": ["..."]}` +
		"\n\n" + string(payload)

	text, err := a.llm.Complete(ctx, prompt)
	if err != nil {
		metrics.StageFallbacks.WithLabelValues("content_gap", "collaborator").Inc()
		a.logger.Warn("content gap call failed", "err", err)
		return &GapResult{ContentGaps: []string{}, Recommendations: []string{"Content gap analysis is temporarily unavailable"}}
	}

	var raw struct {
		ContentGaps     []any `json:"content_gaps"`
		Recommendations []any `json:"recommendations"`
	}
	if err := llm.DecodeObject(text, &raw); err != nil {
		metrics.StageFallbacks.WithLabelValues("content_gap", "parse").Inc()
		a.logger.Warn("content gap output unparsable", "err", err, "output_len", len(text))
		return &GapResult{ContentGaps: []string{}, Recommendations: []string{ParseFailureRecommendation}}
	}
	return &GapResult{
		ContentGaps:     strs(raw.ContentGaps),
		Recommendations: strs(raw.Recommendations),
	}
}

func snapshotOrNil(s scraper.Snapshot) *scraper.Snapshot {
	if s.URL == "" {
		return nil
	}
	return &s
}

// FlattenKeywords merges per-URL keyword lists into one list without
// case-insensitive duplicates. URLs are visited in sorted order.
func FlattenKeywords(byURL map[string][]string) []string {
	urls := make([]string, 0, len(byURL))
	for u := range byURL {
		urls = append(urls, u)
	}
	sort.Strings(urls)

	seen := make(map[string]bool)
	out := []string{}
	for _, u := range urls {
		for _, kw := range byURL[u] {
			kw = strings.TrimSpace(kw)
			key := strings.ToLower(kw)
			if kw == "" || seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, kw)
		}
	}
	return out
}

// strs keeps the non-empty strings of a decoded JSON list.
func strs(raw []any) []string {
	out := []string{}
	for _, v := range raw {
		if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, strings.TrimSpace(s))
		}
	}
	return out
}
