package resolver

import (
	"unicode/utf8"

	"github.com/dishgraph/dishgraph/model"
)

// Similarity returns the Sørensen-Dice coefficient over character
// bigrams of the normalized inputs, in [0, 1]. Identical strings score
// 1; strings without shared bigrams score 0. Single-character inputs
// fall back to exact comparison.
func Similarity(a, b string) float64 {
	a = model.NormalizeName(a)
	b = model.NormalizeName(b)

	if a == b {
		if a == "" {
			return 0
		}
		return 1
	}

	// Bigrams are counted over runes, so the totals must be rune counts
	// or multi-byte names would score too low.
	runesA := utf8.RuneCountInString(a)
	runesB := utf8.RuneCountInString(b)
	if runesA < 2 || runesB < 2 {
		return 0
	}

	bigramsA := bigrams(a)
	bigramsB := bigrams(b)

	var shared int
	for bigram, countA := range bigramsA {
		countB := bigramsB[bigram]
		if countB < countA {
			shared += countB
		} else {
			shared += countA
		}
	}

	return 2 * float64(shared) / float64(runesA-1+runesB-1)
}

// bigrams returns the multiset of character bigrams of s.
func bigrams(s string) map[string]int {
	counts := make(map[string]int, len(s))
	runes := []rune(s)
	for i := 0; i+1 < len(runes); i++ {
		counts[string(runes[i:i+2])]++
	}
	return counts
}
