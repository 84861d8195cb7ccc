package estimate

import (
	"context"
	"math"
	"math/rand/v2"
	"slices"
	"strings"
	"sync"
	"time"
)

var (
	commercialWords = []string{
		"buy", "price", "pricing", "cost", "cheap", "deal", "deals", "discount", "coupon",
		"best", "top", "review", "reviews", "vs", "compare", "comparison", "affordable",
		"software", "tool", "tools", "service", "services", "hire", "agency", "order", "shop",
	}
	guideStarts = []string{
		"how", "what", "why", "when", "where", "who", "which", "guide", "tutorial",
		"tips", "ways", "learn", "can", "does", "is", "are",
	}
	platformNames = []string{
		"google", "youtube", "facebook", "instagram", "linkedin", "twitter", "tiktok",
		"pinterest", "reddit", "amazon", "wikipedia", "hubspot", "semrush", "ahrefs",
		"shopify", "wordpress", "login", "sign in", "website", "official",
	}
	questionWords = []string{"how", "what", "why", "when", "where", "who", "which", "can", "does", "is"}
	reviewWords   = []string{"best", "top", "review", "reviews", "vs", "compare", "comparison", "latest"}
	videoWords    = []string{"video", "videos", "tutorial", "youtube", "watch", "course"}

	// FeatureCatalog lists the SERP features the heuristic can assign.
	FeatureCatalog = []string{
		"Featured Snippet",
		"People Also Ask",
		"Review Snippet",
		"Top Stories",
		"Video Carousel",
		"Image Pack",
		"Local Pack",
		"Shopping Results",
	}
)

// Heuristic estimates metrics from keyword shape and probe signals. The
// numbers are illustrative, not calibrated against real search data.
type Heuristic struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// ensure Heuristic implements Estimator
var _ Estimator = (*Heuristic)(nil)

// NewHeuristic returns a Heuristic whose output is fully determined by seed.
func NewHeuristic(seed uint64) *Heuristic {
	return &Heuristic{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// NewRandomHeuristic seeds from the wall clock.
func NewRandomHeuristic() *Heuristic {
	return NewHeuristic(uint64(time.Now().UnixNano()))
}

// Estimate implements Estimator. It covers every keyword and never fails.
func (h *Heuristic) Estimate(_ context.Context, keywords []string, signals map[string]Signals) (map[string]Metrics, error) {
	out := make(map[string]Metrics, len(keywords))
	for _, kw := range keywords {
		out[kw] = h.EstimateOne(kw, signals[kw])
	}
	return out, nil
}

// EstimateOne computes metrics for a single keyword.
func (h *Heuristic) EstimateOne(keyword string, s Signals) Metrics {
	h.mu.Lock()
	defer h.mu.Unlock()

	lower := strings.ToLower(strings.TrimSpace(keyword))
	words := strings.Fields(lower)

	volume := s.SuggestionCount * h.intRange(100, 300)
	if len(words) > 3 {
		volume = int(float64(volume) * h.floatRange(0.4, 0.7))
	}
	volume = min(max(volume, 50), 50000)

	intent := classifyIntent(lower, words)

	features := shapeFeatures(words)
	if len(features) == 0 {
		features = []string{FeatureCatalog[h.rng.IntN(len(FeatureCatalog))]}
	}

	difficulty := 0
	switch {
	case volume > 10000:
		difficulty += 30
	case volume > 1000:
		difficulty += 20
	case volume > 100:
		difficulty += 10
	}
	if len(words) <= 2 {
		difficulty += 15
	}
	if len(features) > 0 {
		difficulty += 10
	}
	if intent == Commercial {
		difficulty += 10
	}
	if s.SuggestionCount > 10 {
		difficulty += 10
	}
	difficulty += h.intRange(-5, 5)
	difficulty = min(max(difficulty, 10), 95)

	var cpc, density float64
	switch intent {
	case Commercial:
		cpc = h.floatRange(2, 10)
		density = 0.5
	case Navigational:
		cpc = h.floatRange(1, 5)
		density = 0.3
	default:
		cpc = h.floatRange(0.5, 3)
		density = 0.2
	}
	cpc += float64(volume)/50000*4 + float64(difficulty)/100*3
	cpc = round(math.Min(math.Max(cpc, 0.5), 20), 2)

	density += float64(difficulty)/100*0.4 + h.floatRange(-0.05, 0.05)
	density = round(math.Min(math.Max(density, 0.1), 0.95), 2)

	return Metrics{
		SearchVolume:       volume,
		KeywordDifficulty:  difficulty,
		CPCUSD:             cpc,
		CompetitiveDensity: density,
		Intent:             intent,
		Features:           features,
		Source:             SourceHeuristic,
	}
}

// ClassifyIntent applies the intent rules without any randomness.
func ClassifyIntent(keyword string) Intent {
	lower := strings.ToLower(strings.TrimSpace(keyword))
	return classifyIntent(lower, strings.Fields(lower))
}

func classifyIntent(lower string, words []string) Intent {
	for _, w := range words {
		if slices.Contains(commercialWords, w) {
			return Commercial
		}
	}
	if len(words) > 0 && slices.Contains(guideStarts, words[0]) {
		return Informational
	}
	for _, p := range platformNames {
		if strings.Contains(p, " ") {
			if strings.Contains(lower, p) {
				return Navigational
			}
		} else if slices.Contains(words, p) {
			return Navigational
		}
	}
	return Informational
}

func shapeFeatures(words []string) []string {
	var features []string
	if containsAny(words, questionWords) {
		features = append(features, "People Also Ask", "Featured Snippet")
	}
	if containsAny(words, reviewWords) {
		features = append(features, "Review Snippet", "Top Stories")
	}
	if containsAny(words, videoWords) {
		features = append(features, "Video Carousel")
	}
	return features
}

func containsAny(words, set []string) bool {
	for _, w := range words {
		if slices.Contains(set, w) {
			return true
		}
	}
	return false
}

// intRange returns a uniform int in [lo, hi].
func (h *Heuristic) intRange(lo, hi int) int {
	return lo + h.rng.IntN(hi-lo+1)
}

// floatRange returns a uniform float in [lo, hi).
func (h *Heuristic) floatRange(lo, hi float64) float64 {
	return lo + h.rng.Float64()*(hi-lo)
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
