package vendormatch

import (
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
)

// fuzzyScore returns a similarity in [0, 100] between two vendor-name
// candidates: both strings are folded and split into de-duplicated, sorted
// token lists, and the two space-joined lists are compared by a levenshtein
// ratio (100 - distance*100/longer length). Sorting makes the score ignore
// word order ("Acme Consulting Group" vs "Acme Group Consulting" scores
// 100). Shared tokens are not separated out before comparing, so a name
// that is a token subset of the other still loses points for the extra
// tokens.
func fuzzyScore(a, b string) int {
	a, b = fuzzyFold(a), fuzzyFold(b)
	if a == b {
		return 100
	}
	if a == "" || b == "" {
		return 0
	}

	setA, setB := tokenSet(a), tokenSet(b)
	sortedA := strings.Join(setA, " ")
	sortedB := strings.Join(setB, " ")

	dist := levenshtein.ComputeDistance(sortedA, sortedB)
	maxLen := len(sortedA)
	if len(sortedB) > maxLen {
		maxLen = len(sortedB)
	}
	if maxLen == 0 {
		return 100
	}
	ratio := 100 - (dist*100)/maxLen
	if ratio < 0 {
		ratio = 0
	}
	return ratio
}

func tokenSet(s string) []string {
	fields := strings.Fields(s)
	seen := make(map[string]bool, len(fields))
	var out []string
	for _, f := range fields {
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	sort.Strings(out)
	return out
}
