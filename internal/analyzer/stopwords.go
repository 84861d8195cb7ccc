package analyzer

import "strings"

var stopwords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(`
		the and for with that this from are was but not you your all can has have will
		more one about who out get use how why when where which their they our its it's
		on in at to of by as an or is be if it a`) {
		stopwords[w] = struct{}{}
	}
}

// IsStopword reports whether s, case-insensitively, is a stopword.
func IsStopword(s string) bool {
	_, ok := stopwords[strings.ToLower(s)]
	return ok
}
