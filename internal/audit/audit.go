// Package audit turns mobile and desktop page-speed reports into an overall
// score and a prioritized recommendation list.
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/FranksOps/seoforge/internal/pagespeed"
)

const (
	mobileWeight  = 0.6
	desktopWeight = 0.4

	maxRecommendations = 10
)

// Opportunity is a Lighthouse audit with measurable savings.
type Opportunity struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	SavingsMS   float64 `json:"savings_ms"`
}

// Diagnostic is an informative Lighthouse audit.
type Diagnostic struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Score       float64 `json:"score"`
}

// Summary holds the metrics taken from one device report. Timings are in
// seconds except FID and TTFB, which stay in milliseconds.
type Summary struct {
	PerformanceScore int           `json:"performance_score"`
	FCP              float64       `json:"fcp"`
	LCP              float64       `json:"lcp"`
	CLS              float64       `json:"cls"`
	FID              float64       `json:"fid"`
	TTFB             float64       `json:"ttfb"`
	Opportunities    []Opportunity `json:"opportunities"`
	Diagnostics      []Diagnostic  `json:"diagnostics"`
}

// Summarize extracts a Summary from a raw lighthouseResult. Missing or
// mistyped fields become zero values.
func Summarize(report map[string]any) Summary {
	audits := asMap(report["audits"])
	categories := asMap(report["categories"])

	s := Summary{
		PerformanceScore: int(math.Round(asFloat(asMap(categories["performance"])["score"]) * 100)),
		FCP:              round(numericValue(audits, "first-contentful-paint")/1000, 2),
		LCP:              round(numericValue(audits, "largest-contentful-paint")/1000, 2),
		CLS:              round(numericValue(audits, "cumulative-layout-shift"), 3),
		FID:              round(numericValue(audits, "max-potential-fid"), 1),
		TTFB:             round(numericValue(audits, "server-response-time"), 1),
		Opportunities:    []Opportunity{},
		Diagnostics:      []Diagnostic{},
	}

	ids := make([]string, 0, len(audits))
	for id := range audits {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		a := asMap(audits[id])
		title, _ := a["title"].(string)
		desc, _ := a["description"].(string)

		if savings := asFloat(asMap(a["details"])["overallSavingsMs"]); savings > 100 {
			s.Opportunities = append(s.Opportunities, Opportunity{Title: title, Description: desc, SavingsMS: savings})
		}
		if mode, _ := a["scoreDisplayMode"].(string); mode == "informative" && a["score"] != nil {
			s.Diagnostics = append(s.Diagnostics, Diagnostic{Title: title, Description: desc, Score: asFloat(a["score"])})
		}
	}
	return s
}

// Score combines the two device summaries. overall is the rounded weighted
// mean of the performance scores; recommendations are checked mobile first
// and capped at ten.
func Score(mobile, desktop Summary) (int, []string) {
	overall := int(math.Round(float64(mobile.PerformanceScore)*mobileWeight + float64(desktop.PerformanceScore)*desktopWeight))

	var recs []string
	if mobile.PerformanceScore < 50 {
		recs = append(recs, "Critical: Mobile performance needs immediate attention")
	}
	if mobile.LCP > 4.0 {
		recs = append(recs, "Optimize Largest Contentful Paint (LCP) - currently too slow")
	}
	if mobile.CLS > 0.25 {
		recs = append(recs, "Fix Cumulative Layout Shift (CLS) issues for better user experience")
	}
	if mobile.FCP > 3.0 {
		recs = append(recs, "Improve First Contentful Paint (FCP) loading time")
	}
	if desktop.PerformanceScore < 50 {
		recs = append(recs, "Critical: Desktop performance needs immediate attention")
	}
	if desktop.LCP > 4.0 {
		recs = append(recs, "Optimize Desktop Largest Contentful Paint (LCP) - currently too slow")
	}
	if desktop.CLS > 0.25 {
		recs = append(recs, "Fix Desktop Cumulative Layout Shift (CLS) issues for better user experience")
	}
	if desktop.FCP > 3.0 {
		recs = append(recs, "Improve Desktop First Contentful Paint (FCP) loading time")
	}
	if len(recs) > maxRecommendations {
		recs = recs[:maxRecommendations]
	}
	if recs == nil {
		recs = []string{}
	}
	return overall, recs
}

// Result is the outcome of a full audit.
type Result struct {
	URL             string    `json:"url"`
	Timestamp       time.Time `json:"timestamp"`
	Mobile          Summary   `json:"pagespeed_mobile"`
	Desktop         Summary   `json:"pagespeed_desktop"`
	OverallScore    int       `json:"overall_score"`
	Recommendations []string  `json:"recommendations"`
}

// ProgressFunc receives progress out of ProgressTotal.
type ProgressFunc func(current int, status string)

// ProgressTotal is the progress scale reported by Service.Run.
const ProgressTotal = 100

// Service runs audits against a page-speed analyzer.
type Service struct {
	analyzer pagespeed.Analyzer
	logger   *slog.Logger
	now      func() time.Time
}

// NewService returns a Service. A nil analyzer means the page-speed
// credential was never configured.
func NewService(a pagespeed.Analyzer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{analyzer: a, logger: logger, now: time.Now}
}

// Run audits pageURL on mobile then desktop.
func (s *Service) Run(ctx context.Context, pageURL string, progress ProgressFunc) (*Result, error) {
	if progress == nil {
		progress = func(int, string) {}
	}

	progress(0, "Starting audit...")
	progress(10, "Preparing audit...")

	progress(20, "Running mobile audit...")
	mobileReport, err := s.analyzer.Analyze(ctx, pageURL, pagespeed.Mobile, pagespeed.DefaultCategories)
	if err != nil {
		return nil, fmt.Errorf("mobile audit: %w", err)
	}

	progress(50, "Running desktop audit...")
	desktopReport, err := s.analyzer.Analyze(ctx, pageURL, pagespeed.Desktop, pagespeed.DefaultCategories)
	if err != nil {
		return nil, fmt.Errorf("desktop audit: %w", err)
	}

	progress(70, "Processing results...")
	mobile, desktop := Summarize(mobileReport), Summarize(desktopReport)
	overall, recs := Score(mobile, desktop)

	s.logger.Info("audit complete", "url", pageURL, "overall", overall, "recommendations", len(recs))
	progress(100, "Audit complete.")

	return &Result{
		URL:             pageURL,
		Timestamp:       s.now().UTC(),
		Mobile:          mobile,
		Desktop:         desktop,
		OverallScore:    overall,
		Recommendations: recs,
	}, nil
}

func numericValue(audits map[string]any, id string) float64 {
	return asFloat(asMap(audits[id])["numericValue"])
}

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

// asFloat coerces JSON numbers and numeric strings. Anything else is 0.
func asFloat(v any) float64 {
	switch x := v.(type) {
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return 0
		}
		return x
	case int:
		return float64(x)
	case string:
		f, err := strconv.ParseFloat(x, 64)
		if err != nil {
			return 0
		}
		return f
	case bool:
		if x {
			return 1
		}
	}
	return 0
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
