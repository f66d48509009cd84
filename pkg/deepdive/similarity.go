package deepdive

import (
	"strings"

	"github.com/agnivade/levenshtein"
)

// duplicateThreshold is the similarity above which a proposed question
// counts as a repeat of one already asked.
const duplicateThreshold = 0.80

// similarity returns a [0,1] ratio from edit distance over the longer
// string, after case and whitespace normalization.
func similarity(a, b string) float64 {
	a = normalizeQuestion(a)
	b = normalizeQuestion(b)
	if a == b {
		return 1.0
	}
	longest := max(len(a), len(b))
	if longest == 0 {
		return 1.0
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1.0 - float64(dist)/float64(longest)
}

func normalizeQuestion(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// isDuplicate reports whether proposed repeats any previously asked
// question.
func isDuplicate(proposed string, asked []string) bool {
	for _, q := range asked {
		if similarity(proposed, q) >= duplicateThreshold {
			return true
		}
	}
	return false
}
