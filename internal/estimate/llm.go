package estimate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/FranksOps/seoforge/internal/llm"
)

// Qualitative labels the model may answer with instead of numbers.
var (
	volumeLabels     = map[string]float64{"very low": 100, "low": 500, "medium": 2000, "high": 10000, "very high": 40000}
	difficultyLabels = map[string]float64{"very low": 10, "low": 25, "medium": 50, "high": 70, "very high": 90}
	densityLabels    = map[string]float64{"very low": 0.1, "low": 0.25, "medium": 0.5, "high": 0.7, "very high": 0.9}
	cpcLabels        = map[string]float64{"very low": 0.5, "low": 1, "medium": 2.5, "high": 5, "very high": 10}
)

// LLM estimates a whole batch with one collaborator call. Entries that are
// missing or malformed are left out of the result.
type LLM struct {
	completer llm.Completer
	logger    *slog.Logger
}

// ensure LLM implements Estimator
var _ Estimator = (*LLM)(nil)

// NewLLM returns an LLM estimator backed by c.
func NewLLM(c llm.Completer, logger *slog.Logger) *LLM {
	if logger == nil {
		logger = slog.Default()
	}
	return &LLM{completer: c, logger: logger}
}

type promptEntry struct {
	Keyword string `json:"keyword"`
	Signals
}

// Estimate implements Estimator.
func (e *LLM) Estimate(ctx context.Context, keywords []string, signals map[string]Signals) (map[string]Metrics, error) {
	out := make(map[string]Metrics, len(keywords))
	if len(keywords) == 0 {
		return out, nil
	}

	entries := make([]promptEntry, len(keywords))
	for i, kw := range keywords {
		entries[i] = promptEntry{Keyword: kw, Signals: signals[kw]}
	}
	payload, err := json.Marshal(entries)
	if err != nil {
		return nil, fmt.Errorf("encode estimate batch: %w", err)
	}

	text, err := e.completer.Complete(ctx, batchPrompt(string(payload)))
	if err != nil {
		return nil, err
	}

	var raw []map[string]any
	if err := llm.DecodeArray(text, &raw); err != nil {
		return nil, fmt.Errorf("estimate batch: %w", err)
	}

	byLower := make(map[string]string, len(keywords))
	for _, kw := range keywords {
		byLower[strings.ToLower(strings.TrimSpace(kw))] = kw
	}

	dropped := 0
	for _, entry := range raw {
		kwText, _ := entry["keyword"].(string)
		kw, ok := byLower[strings.ToLower(strings.TrimSpace(kwText))]
		if !ok {
			dropped++
			continue
		}
		m, ok := parseEntry(entry)
		if !ok {
			dropped++
			continue
		}
		out[kw] = m
	}
	if dropped > 0 {
		e.logger.Debug("dropped malformed estimate entries", "dropped", dropped, "accepted", len(out))
	}
	return out, nil
}

func batchPrompt(payload string) string {
	return "You are an SEO metrics analyst. For each keyword in the JSON array below, estimate " +
		"search_volume (monthly searches), keyword_difficulty (0-100), cpc_usd, competitive_density (0-1) " +
		"and intent (informational, commercial or navigational). suggestion_count and serp_word_count are " +
		"observed signals you may use. Qualitative values 'very low', 'low', 'medium', 'high', 'very high' " +
		"are accepted for the numeric fields. Optionally include features as a list of SERP feature names.\n" +
		"Return only a JSON array of objects with the fields keyword, search_volume, keyword_difficulty, " +
		"cpc_usd, competitive_density, intent, features.\n\n" + payload
}

func parseEntry(entry map[string]any) (Metrics, bool) {
	volume, ok := numeric(entry["search_volume"], volumeLabels)
	if !ok {
		return Metrics{}, false
	}
	difficulty, ok := numeric(entry["keyword_difficulty"], difficultyLabels)
	if !ok {
		return Metrics{}, false
	}
	cpc, ok := numeric(entry["cpc_usd"], cpcLabels)
	if !ok {
		return Metrics{}, false
	}
	density, ok := numeric(entry["competitive_density"], densityLabels)
	if !ok {
		return Metrics{}, false
	}
	intentText, _ := entry["intent"].(string)
	intent, ok := ParseIntent(intentText)
	if !ok {
		return Metrics{}, false
	}

	var features []string
	if list, ok := entry["features"].([]any); ok {
		for _, f := range list {
			if s, ok := f.(string); ok && strings.TrimSpace(s) != "" {
				features = append(features, strings.TrimSpace(s))
			}
		}
	}

	return Metrics{
		SearchVolume:       int(math.Min(math.Max(volume, 0), maxSearchVolume)),
		KeywordDifficulty:  int(math.Min(math.Max(difficulty, 0), 100)),
		CPCUSD:             cpc,
		CompetitiveDensity: density,
		Intent:             intent,
		Features:           features,
		Source:             SourceLLM,
	}.Clamp(), true
}

// maxSearchVolume caps volumes before integer conversion.
const maxSearchVolume = 1e9

// numeric accepts a JSON number, a numeric string, or a qualitative label.
// NaN and infinities are malformed.
func numeric(v any, labels map[string]float64) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, finite(x)
	case string:
		s := strings.TrimPrefix(strings.TrimSpace(x), "$")
		if f, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64); err == nil {
			return f, finite(f)
		}
		f, ok := labels[normalizeLabel(s)]
		return f, ok
	}
	return 0, false
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func normalizeLabel(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "_", " ")
	return strings.Join(strings.Fields(s), " ")
}
