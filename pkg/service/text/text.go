package text

import (
	"strings"
	"unicode"
)

var stopwords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(`a about above after again against all am an and any are as at be because been
before being below between both but by can could did do does doing down during each few for from further had
has have having he her here hers herself him himself his how i if in into is it its itself just me more most my
myself no nor not now of off on once only or other our ours ourselves out over own same she should so some such
than that the their theirs them themselves then there these they this those through to too under until up very
was we were what when where which while who whom why will with would you your yours yourself yourselves`) {
		stopwords[w] = struct{}{}
	}
}

// IsStopword reports whether the lower-cased word is a common English function word
func IsStopword(word string) bool {
	_, ok := stopwords[strings.ToLower(word)]
	return ok
}

// Tokenize splits text into lower-cased runs of letters and digits
func Tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Keywords returns the distinct non-stopword tokens of at least three runes, in order of first appearance
func Keywords(s string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, tok := range Tokenize(s) {
		if len([]rune(tok)) < 3 || IsStopword(tok) {
			continue
		}
		if _, ok := seen[tok]; ok {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	return out
}

// CountMatches returns how many of keywords occur in s, case-insensitively
func CountMatches(s string, keywords []string) int {
	lower := strings.ToLower(s)
	n := 0
	for _, kw := range keywords {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			n++
		}
	}
	return n
}
