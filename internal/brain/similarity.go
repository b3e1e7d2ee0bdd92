package brain

import "strings"

// normalize lowercases and trims text for ring storage and comparison.
func normalize(text string) string {
	return strings.TrimSpace(strings.ToLower(text))
}

// wordJaccard computes the Jaccard similarity of the whitespace-tokenized
// word sets of a and b: |A∩B| / |A∪B|. Equal strings short-circuit to 1.0.
// An empty side yields 0.0.
//
// This exact algorithm is pinned by the duplicate-suppression testable
// property at threshold 0.8 — a richer similarity measure (edit distance,
// phonetic matching) must still satisfy that property, so none is
// substituted here.
func wordJaccard(a, b string) float64 {
	if a == b {
		return 1.0
	}

	wordsA := splitWords(a)
	wordsB := splitWords(b)
	if len(wordsA) == 0 || len(wordsB) == 0 {
		return 0.0
	}

	union := make(map[string]struct{}, len(wordsA)+len(wordsB))
	for w := range wordsA {
		union[w] = struct{}{}
	}
	intersection := 0
	for w := range wordsB {
		if _, ok := wordsA[w]; ok {
			intersection++
		}
		union[w] = struct{}{}
	}

	if len(union) == 0 {
		return 0.0
	}
	return float64(intersection) / float64(len(union))
}

func splitWords(s string) map[string]struct{} {
	fields := strings.Fields(s)
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}
