// Package analyzer extracts and matches keywords in page text.
package analyzer

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Candidate is a scored phrase. Lower scores are more relevant.
type Candidate struct {
	Phrase string  `json:"phrase"`
	Score  float64 `json:"score"`
}

type termStats struct {
	tf        int
	upper     int
	sentences []int
	left      map[string]int
	right     map[string]int
}

// ScorePhrases ranks phrases of up to n words using statistical features of
// the text alone: term frequency, casing, position, sentence spread and
// context diversity. Phrases never start or end with a stopword. At most top
// candidates are returned, best first.
func ScorePhrases(text string, n, top int) []Candidate {
	if n < 1 {
		n = 1
	}
	sentences := tokenize(text)
	if len(sentences) == 0 {
		return nil
	}

	stats := make(map[string]*termStats)
	for si, words := range sentences {
		for wi, w := range words {
			key := strings.ToLower(w)
			st, ok := stats[key]
			if !ok {
				st = &termStats{left: map[string]int{}, right: map[string]int{}}
				stats[key] = st
			}
			st.tf++
			if wi > 0 && isUpperStart(w) {
				st.upper++
			}
			if len(st.sentences) == 0 || st.sentences[len(st.sentences)-1] != si {
				st.sentences = append(st.sentences, si)
			}
			if wi > 0 {
				st.left[strings.ToLower(words[wi-1])]++
			}
			if wi < len(words)-1 {
				st.right[strings.ToLower(words[wi+1])]++
			}
		}
	}

	weights := termWeights(stats, len(sentences))

	phraseTF := make(map[string]int)
	var order []string
	for _, words := range sentences {
		for size := 1; size <= n; size++ {
			for i := 0; i+size <= len(words); i++ {
				gram := words[i : i+size]
				if IsStopword(gram[0]) || IsStopword(gram[size-1]) {
					continue
				}
				key := strings.ToLower(strings.Join(gram, " "))
				if phraseTF[key] == 0 {
					order = append(order, key)
				}
				phraseTF[key]++
			}
		}
	}

	candidates := make([]Candidate, 0, len(order))
	for _, phrase := range order {
		prod, sum := 1.0, 0.0
		for _, w := range strings.Fields(phrase) {
			if IsStopword(w) {
				continue
			}
			prod *= weights[w]
			sum += weights[w]
		}
		tf := float64(phraseTF[phrase])
		candidates = append(candidates, Candidate{Phrase: phrase, Score: prod / (tf * (1 + sum))})
	}

	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].Score < candidates[j].Score })
	if top > 0 && len(candidates) > top {
		candidates = candidates[:top]
	}
	return candidates
}

func termWeights(stats map[string]*termStats, sentenceCount int) map[string]float64 {
	var tfs []float64
	maxTF := 0.0
	for w, st := range stats {
		if IsStopword(w) {
			continue
		}
		tf := float64(st.tf)
		tfs = append(tfs, tf)
		maxTF = math.Max(maxTF, tf)
	}
	mean, std := meanStd(tfs)

	weights := make(map[string]float64, len(stats))
	for w, st := range stats {
		tf := float64(st.tf)
		casing := float64(st.upper) / (1 + math.Log(tf))
		position := math.Log(math.Log(3 + median(st.sentences)))
		freq := tf / math.Max(mean+std, 1)
		rel := 1.0
		if maxTF > 0 {
			rel = 1 + (diversity(st.left)+diversity(st.right))*tf/maxTF
		}
		spread := float64(len(st.sentences)) / float64(sentenceCount)
		weights[w] = rel * position / (casing + freq/rel + spread/rel)
	}
	return weights
}

// diversity is distinct neighbours over total neighbour occurrences.
func diversity(neighbours map[string]int) float64 {
	total := 0
	for _, c := range neighbours {
		total += c
	}
	if total == 0 {
		return 0
	}
	return float64(len(neighbours)) / float64(total)
}

func meanStd(xs []float64) (float64, float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))
	var sq float64
	for _, x := range xs {
		sq += (x - mean) * (x - mean)
	}
	return mean, math.Sqrt(sq / float64(len(xs)))
}

func median(idx []int) float64 {
	if len(idx) == 0 {
		return 0
	}
	s := append([]int(nil), idx...)
	sort.Ints(s)
	mid := len(s) / 2
	if len(s)%2 == 1 {
		return float64(s[mid])
	}
	return float64(s[mid-1]+s[mid]) / 2
}

func isUpperStart(w string) bool {
	r, _ := utf8.DecodeRuneInString(w)
	return unicode.IsUpper(r)
}

// tokenize splits text into sentences of words. Words keep letters, digits,
// hyphens and apostrophes.
func tokenize(text string) [][]string {
	var out [][]string
	for _, s := range splitIntoSentences(text) {
		words := strings.FieldsFunc(s.original, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-' && r != '\''
		})
		var kept []string
		for _, w := range words {
			if w = strings.Trim(w, "-'"); w != "" {
				kept = append(kept, w)
			}
		}
		if len(kept) > 0 {
			out = append(out, kept)
		}
	}
	return out
}

var nonKeywordChars = regexp.MustCompile(`[^a-zA-Z0-9\- ]`)

// CleanKeyword strips everything but ASCII letters, digits, hyphens and
// spaces, then lowercases.
func CleanKeyword(s string) string {
	return strings.ToLower(strings.TrimSpace(nonKeywordChars.ReplaceAllString(s, "")))
}

// ExtractKeywords returns up to maxKeywords keywords for text. Unigram and
// bigram candidates are cleaned, stopwords and words of two characters or
// fewer are dropped, and the rest are ranked by how often they were
// proposed. Ties keep first-seen order.
func ExtractKeywords(text string, maxKeywords int) []string {
	if maxKeywords <= 0 {
		maxKeywords = 5
	}

	var proposed []string
	for _, c := range ScorePhrases(text, 1, maxKeywords*2) {
		proposed = append(proposed, c.Phrase)
	}
	for _, c := range ScorePhrases(text, 2, maxKeywords*2) {
		proposed = append(proposed, c.Phrase)
	}

	freq := make(map[string]int)
	var order []string
	for _, p := range proposed {
		kw := CleanKeyword(p)
		if len(kw) <= 2 || IsStopword(kw) {
			continue
		}
		if freq[kw] == 0 {
			order = append(order, kw)
		}
		freq[kw]++
	}

	sort.SliceStable(order, func(i, j int) bool { return freq[order[i]] > freq[order[j]] })
	if len(order) > maxKeywords {
		order = order[:maxKeywords]
	}
	return order
}
