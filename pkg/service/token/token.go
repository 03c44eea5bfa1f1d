package token

import (
	"strings"
	"unicode"
)

// Count estimates the number of model tokens in s. Words of up to four letters count one
// token, longer words one token per four letters, so common short words stay at one and a
// word never costs less than any of its prefixes. Every punctuation or symbol rune and every
// newline adds one.
func Count(s string) int {
	if s == "" {
		return 0
	}

	n := strings.Count(s, "\n")
	for _, field := range strings.Fields(s) {
		n += countWord(field)
	}
	return n
}

func countWord(field string) int {
	var letters, punct int
	for _, r := range field {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			letters++
		} else {
			punct++
		}
	}

	if letters == 0 {
		return punct
	}
	return max(1, (letters+3)/4) + punct
}

// Ellipsis is appended to word-boundary truncations when requested
const Ellipsis = "..."

// TruncateToFit shortens s so that Count of the result does not exceed budget.
// It cuts at the last sentence boundary when that keeps at least half of the fitting
// prefix, otherwise at the last word boundary, otherwise mid-word.
// addEllipsis appends Ellipsis to word and character cuts when it still fits.
func TruncateToFit(s string, budget int, addEllipsis bool) string {
	if Count(s) <= budget {
		return s
	}
	if budget <= 0 {
		return ""
	}

	runes := []rune(s)
	n := longestPrefix(runes, budget)
	if n == 0 {
		return ""
	}
	prefix := runes[:n]

	if cut := sentenceCut(prefix); cut > 0 && cut*2 >= n {
		return strings.TrimRightFunc(string(prefix[:cut]), unicode.IsSpace)
	}

	result := string(prefix)
	if n < len(runes) && !unicode.IsSpace(runes[n]) {
		if cut := wordCut(prefix); cut > 0 {
			result = string(prefix[:cut])
		}
	}
	result = strings.TrimRightFunc(result, unicode.IsSpace)

	if addEllipsis && Count(result+Ellipsis) <= budget {
		result += Ellipsis
	}
	if Count(result) > budget {
		return string(prefix)
	}
	return result
}

// longestPrefix returns the largest n where Count(runes[:n]) <= budget
func longestPrefix(runes []rune, budget int) int {
	lo, hi := 0, len(runes)
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if Count(string(runes[:mid])) <= budget {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo
}

func sentenceCut(prefix []rune) int {
	for i := len(prefix) - 1; i >= 0; i-- {
		switch prefix[i] {
		case '.', '!', '?', '。', '\n':
			if i == len(prefix)-1 || unicode.IsSpace(prefix[i+1]) {
				return i + 1
			}
		}
	}
	return 0
}

func wordCut(prefix []rune) int {
	for i := len(prefix) - 1; i > 0; i-- {
		if unicode.IsSpace(prefix[i]) {
			return i
		}
	}
	return 0
}
