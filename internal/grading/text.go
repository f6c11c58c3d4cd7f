package grading

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// lower lower-cases s. A Caser is stateful, so each call gets its own.
func lower(s string) string {
	return cases.Lower(language.Und).String(s)
}

// normalizeExact trims surrounding whitespace and lower-cases s.
func normalizeExact(s string) string {
	return lower(strings.TrimSpace(s))
}

// wordCount counts whitespace-separated words.
func wordCount(s string) int {
	return len(strings.Fields(s))
}

// tokenize splits lower-cased text into runs of letters, digits and
// underscores, keeping runs of at least two characters.
func tokenize(s string) []string {
	fields := strings.FieldsFunc(lower(s), func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r) || r == '_')
	})
	out := fields[:0]
	for _, f := range fields {
		if len([]rune(f)) >= 2 {
			out = append(out, f)
		}
	}
	return out
}

// wordSet returns the set of lower-cased whitespace-separated words.
func wordSet(s string) map[string]struct{} {
	words := strings.Fields(lower(s))
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}
