package analyzer

import (
	"strings"
	"unicode"
)

// TermMatch represents occurrences of a term within a page.
type TermMatch struct {
	Term      string   `json:"term"`
	URL       string   `json:"url"`
	Count     int      `json:"count"`
	Sentences []string `json:"sentences"`
}

// FindTermMatches scans content for each term (case-insensitive) and returns
// one TermMatch per term that occurs, with the sentences containing it.
func FindTermMatches(content, url string, terms []string) []TermMatch {
	if len(content) == 0 || len(terms) == 0 {
		return nil
	}

	results := make([]TermMatch, 0, len(terms))
	lowerContent := strings.ToLower(content)
	sentences := splitIntoSentences(content)

	for _, term := range terms {
		lowerTerm := strings.ToLower(strings.TrimSpace(term))
		if lowerTerm == "" {
			continue
		}
		count := strings.Count(lowerContent, lowerTerm)
		if count == 0 {
			continue
		}

		var matched []string
		for _, s := range sentences {
			if strings.Contains(s.lower, lowerTerm) {
				matched = append(matched, s.original)
			}
		}

		results = append(results, TermMatch{
			Term:      term,
			URL:       url,
			Count:     count,
			Sentences: matched,
		})
	}
	return results
}

// MissingTerms returns the terms that never occur in content, in input order.
func MissingTerms(content string, terms []string) []string {
	found := make(map[string]bool)
	for _, m := range FindTermMatches(content, "", terms) {
		found[m.Term] = true
	}
	var missing []string
	for _, t := range terms {
		if strings.TrimSpace(t) != "" && !found[t] {
			missing = append(missing, t)
		}
	}
	return missing
}

// sentence holds original and lowercase versions together
type sentence struct {
	original string
	lower    string
}

// splitIntoSentences splits text on '.', '!' or '?', keeping the delimiter
// at the end of each sentence.
func splitIntoSentences(text string) []sentence {
	if len(text) == 0 {
		return nil
	}

	// roughly 1 sentence per 50 chars
	sentences := make([]sentence, 0, max(len(text)/50, 1))
	start := 0

	add := func(s string) {
		s = strings.TrimSpace(s)
		if s != "" {
			sentences = append(sentences, sentence{original: s, lower: strings.ToLower(s)})
		}
	}

	for i, r := range text {
		if r == '.' || r == '!' || r == '?' {
			end := i + 1
			for end < len(text) && unicode.IsSpace(rune(text[end])) {
				end++
			}
			add(text[start:end])
			start = end
		}
	}
	if start < len(text) {
		add(text[start:])
	}
	return sentences
}
