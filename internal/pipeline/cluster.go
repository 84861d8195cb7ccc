package pipeline

import (
	"strings"

	"github.com/FranksOps/seoforge/internal/analyzer"
	"github.com/FranksOps/seoforge/internal/estimate"
)

const overlapThreshold = 0.5

// ClusterByOverlap groups keywords greedily by Jaccard overlap of their
// non-stopword tokens and returns one representative per cluster. Input
// order decides representatives, so pass keywords best first.
func ClusterByOverlap(keywords []Keyword, threshold float64) []Keyword {
	var reps []Keyword
	var repTokens []map[string]bool

	for _, k := range keywords {
		tokens := tokenSet(k.Keyword)
		joined := false
		for _, rt := range repTokens {
			if jaccard(tokens, rt) >= threshold {
				joined = true
				break
			}
		}
		if !joined {
			reps = append(reps, k)
			repTokens = append(repTokens, tokens)
		}
	}
	return reps
}

func tokenSet(s string) map[string]bool {
	out := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(s)) {
		if !analyzer.IsStopword(w) {
			out[w] = true
		}
	}
	return out
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	inter := 0
	for w := range a {
		if b[w] {
			inter++
		}
	}
	return float64(inter) / float64(len(a)+len(b)-inter)
}

// inRankOrder reorders subset to follow ranked.
func inRankOrder(subset, ranked []Keyword) []Keyword {
	in := make(map[string]bool, len(subset))
	for _, k := range subset {
		in[strings.ToLower(k.Keyword)] = true
	}
	out := make([]Keyword, 0, len(subset))
	for _, k := range ranked {
		if in[strings.ToLower(k.Keyword)] {
			out = append(out, k)
		}
	}
	return out
}

// backfill appends the best unused keywords from pool until chosen holds at
// least want entries or pool is exhausted.
func backfill(chosen, pool []Keyword, want int) []Keyword {
	used := make(map[string]bool, len(chosen))
	for _, k := range chosen {
		used[strings.ToLower(k.Keyword)] = true
	}
	for _, k := range pool {
		if len(chosen) >= want {
			break
		}
		key := strings.ToLower(k.Keyword)
		if used[key] {
			continue
		}
		used[key] = true
		chosen = append(chosen, k)
	}
	return chosen
}

// finalQA deduplicates finalists, tops up informational and commercial
// keywords to minPerIntent from ranked and then all, and caps the list at
// limit without breaking the per-intent minimums it established.
func finalQA(finalists, ranked, all []Keyword, limit int) []Keyword {
	out := make([]Keyword, 0, limit)
	used := make(map[string]bool)
	add := func(k Keyword) bool {
		key := strings.ToLower(strings.TrimSpace(k.Keyword))
		if used[key] {
			return false
		}
		used[key] = true
		out = append(out, k)
		return true
	}
	for _, k := range finalists {
		add(k)
	}

	for _, intent := range []estimate.Intent{estimate.Informational, estimate.Commercial} {
		have := countIntent(out, intent)
		for _, pool := range [][]Keyword{ranked, all} {
			for _, k := range pool {
				if have >= minPerIntent {
					break
				}
				if k.Intent == intent && add(k) {
					have++
				}
			}
		}
	}

	for i := len(out) - 1; i >= 0 && len(out) > limit; i-- {
		if intent := out[i].Intent; intent != estimate.Navigational && countIntent(out, intent) <= minPerIntent {
			continue
		}
		out = append(out[:i], out[i+1:]...)
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func countIntent(keywords []Keyword, intent estimate.Intent) int {
	n := 0
	for _, k := range keywords {
		if k.Intent == intent {
			n++
		}
	}
	return n
}
