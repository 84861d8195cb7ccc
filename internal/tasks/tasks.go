// Package tasks turns user requests into job invocations. Each builder
// validates its input and checks that the collaborators it needs are
// configured before anything is queued.
package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/FranksOps/seoforge/internal/apperr"
	"github.com/FranksOps/seoforge/internal/audit"
	"github.com/FranksOps/seoforge/internal/autocomplete"
	"github.com/FranksOps/seoforge/internal/competitor"
	"github.com/FranksOps/seoforge/internal/jobs"
	"github.com/FranksOps/seoforge/internal/pipeline"
)

// Job kinds.
const (
	KindKeywordGeneration  = "keyword_generation"
	KindLongTail           = "long_tail"
	KindAudit              = "audit"
	KindCompetitorKeywords = "competitor_keywords"
	KindContentGap         = "content_gap"
)

// Kinds lists every job kind in display order.
var Kinds = []string{KindKeywordGeneration, KindLongTail, KindAudit, KindCompetitorKeywords, KindContentGap}

// SourceFunc builds the suggestion source used for long-tail expansion.
type SourceFunc func(lang, country string) autocomplete.Source

// Builder holds the services jobs run against. A nil Keywords or Audits
// means the matching credential is missing.
type Builder struct {
	Keywords    *pipeline.Generator
	Audits      *audit.Service
	Competitors *competitor.Analyzer
	Suggest     SourceFunc
	Expand      autocomplete.ExpandConfig
	Logger      *slog.Logger
}

func (b *Builder) logger() *slog.Logger {
	if b.Logger == nil {
		return slog.Default()
	}
	return b.Logger
}

// KeywordGeneration runs the six-stage keyword pipeline.
func (b *Builder) KeywordGeneration(req pipeline.Request) (jobs.Invocation, error) {
	if b.Keywords == nil {
		return jobs.Invocation{}, fmt.Errorf("%w: GOOGLE_API_KEY is not set", apperr.ErrConfiguration)
	}
	req, err := req.Normalize()
	if err != nil {
		return jobs.Invocation{}, err
	}
	return jobs.Invocation{
		Kind:  KindKeywordGeneration,
		Total: pipeline.TotalStages,
		Run: func(ctx context.Context, progress jobs.ProgressFunc) (any, error) {
			return b.Keywords.Run(ctx, req, pipeline.ProgressFunc(progress))
		},
	}, nil
}

// LongTailRequest asks for autocomplete expansion of a seed.
type LongTailRequest struct {
	Seed    string `json:"seed"`
	Lang    string `json:"lang"`
	Country string `json:"country"`
}

// LongTailResult is the sorted expansion.
type LongTailResult struct {
	Keywords []string `json:"keywords"`
}

// LongTail expands a seed through autocomplete suggestions.
func (b *Builder) LongTail(req LongTailRequest) (jobs.Invocation, error) {
	if b.Suggest == nil {
		return jobs.Invocation{}, fmt.Errorf("%w: no suggestion source configured", apperr.ErrConfiguration)
	}
	seed := strings.TrimSpace(req.Seed)
	if seed == "" {
		return jobs.Invocation{}, fmt.Errorf("%w: seed is required", apperr.ErrValidation)
	}
	lang, country := orDefault(req.Lang, "en"), orDefault(req.Country, "us")

	return jobs.Invocation{
		Kind:  KindLongTail,
		Total: 1,
		Run: func(ctx context.Context, progress jobs.ProgressFunc) (any, error) {
			progress(0, "Expanding "+seed)
			exp := autocomplete.NewExpander(b.Suggest(lang, country), b.Expand, b.logger())
			keywords, err := exp.Expand(ctx, seed)
			if err != nil {
				return nil, fmt.Errorf("expand %q: %w", seed, err)
			}
			if keywords == nil {
				keywords = []string{}
			}
			return LongTailResult{Keywords: keywords}, nil
		},
	}, nil
}

// AuditRequest names the page to audit.
type AuditRequest struct {
	URL string `json:"url"`
}

// Audit runs mobile and desktop page-speed audits.
func (b *Builder) Audit(req AuditRequest) (jobs.Invocation, error) {
	if b.Audits == nil {
		return jobs.Invocation{}, fmt.Errorf("%w: PAGESPEED_API_KEY is not set", apperr.ErrConfiguration)
	}
	pageURL, err := ValidateURL(req.URL)
	if err != nil {
		return jobs.Invocation{}, err
	}
	return jobs.Invocation{
		Kind:  KindAudit,
		Total: audit.ProgressTotal,
		Run: func(ctx context.Context, progress jobs.ProgressFunc) (any, error) {
			return b.Audits.Run(ctx, pageURL, audit.ProgressFunc(progress))
		},
	}, nil
}

// CompetitorKeywordsRequest lists pages to extract keywords from.
type CompetitorKeywordsRequest struct {
	URLs        []string `json:"urls"`
	MaxKeywords int      `json:"max_keywords"`
}

// CompetitorKeywords extracts keywords from every URL. The result maps
// each URL to its keywords.
func (b *Builder) CompetitorKeywords(req CompetitorKeywordsRequest) (jobs.Invocation, error) {
	if b.Competitors == nil {
		return jobs.Invocation{}, fmt.Errorf("%w: competitor analysis is not configured", apperr.ErrConfiguration)
	}
	if len(req.URLs) == 0 {
		return jobs.Invocation{}, fmt.Errorf("%w: urls are required", apperr.ErrValidation)
	}
	urls := make([]string, 0, len(req.URLs))
	for _, raw := range req.URLs {
		u, err := ValidateURL(raw)
		if err != nil {
			return jobs.Invocation{}, err
		}
		urls = append(urls, u)
	}
	total := len(urls)
	return jobs.Invocation{
		Kind:  KindCompetitorKeywords,
		Total: total,
		Run: func(ctx context.Context, progress jobs.ProgressFunc) (any, error) {
			return b.Competitors.ExtractAll(ctx, urls, req.MaxKeywords, competitor.ProgressFunc(progress)), nil
		},
	}, nil
}

// ContentGap compares the user's keywords and page with competitors'.
func (b *Builder) ContentGap(req competitor.GapRequest) (jobs.Invocation, error) {
	if b.Competitors == nil || !b.Competitors.CanAnalyzeGap() {
		return jobs.Invocation{}, fmt.Errorf("%w: GOOGLE_API_KEY is not set", apperr.ErrConfiguration)
	}
	if err := req.Validate(); err != nil {
		return jobs.Invocation{}, err
	}
	return jobs.Invocation{
		Kind:  KindContentGap,
		Total: competitor.GapTotal,
		Run: func(ctx context.Context, progress jobs.ProgressFunc) (any, error) {
			return b.Competitors.AnalyzeGap(ctx, req, competitor.ProgressFunc(progress))
		},
	}, nil
}

// ValidateURL accepts absolute http and https URLs. A bare host gets https.
func ValidateURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: url is required", apperr.ErrValidation)
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "", fmt.Errorf("%w: invalid url %q", apperr.ErrValidation, raw)
	}
	return u.String(), nil
}

func orDefault(s, def string) string {
	if s = strings.TrimSpace(s); s != "" {
		return s
	}
	return def
}
