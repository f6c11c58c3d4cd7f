package grading

import "strings"

// KeywordCoverage returns the fraction of keywords found as case-insensitive
// substrings of text, along with the keywords that matched. Blank keywords
// are ignored; with no usable keywords the score is 0.
func KeywordCoverage(text string, keywords []string) (float64, []string) {
	usable := usableKeywords(keywords)
	if len(usable) == 0 {
		return 0, nil
	}
	low := lower(text)
	found := make([]string, 0, len(usable))
	for _, k := range usable {
		if strings.Contains(low, lower(k)) {
			found = append(found, k)
		}
	}
	return float64(len(found)) / float64(len(usable)), found
}

func usableKeywords(keywords []string) []string {
	out := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if strings.TrimSpace(k) != "" {
			out = append(out, k)
		}
	}
	return out
}
