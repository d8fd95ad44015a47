package challenge

import (
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// AcceptThreshold is the lowest similarity accepted as a correct spoken answer.
const AcceptThreshold = 0.70

// Similarity scores two normalized strings in [0,1]: 1 minus the rune edit distance over the longer
// length. Equal strings score 1. When one non-empty string contains the other the score is at least 0.9.
func Similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	longest := max(la, lb)
	if longest == 0 {
		return 1
	}
	ratio := 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
	if la > 0 && lb > 0 && (strings.Contains(a, b) || strings.Contains(b, a)) {
		return max(0.9, ratio)
	}
	return ratio
}

