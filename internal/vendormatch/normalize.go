package vendormatch

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var diacriticFold = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

var commonSuffixes = []string{" inc", " llc", " ltd", " corp", " co", " llp", " gmbh", " plc"}

// Normalize produces the canonical vendor key: lowercase,
// diacritic-folded, non-alphanumeric runs collapsed to a single "_", with
// leading/trailing "_" trimmed.
func Normalize(name string) string {
	folded, _, err := transform.String(diacriticFold, name)
	if err != nil {
		folded = name
	}
	folded = strings.ToLower(folded)

	var b strings.Builder
	lastUnderscore := false
	for _, r := range folded {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	return strings.Trim(b.String(), "_")
}

// stripCommonSuffix removes a single trailing corporate-entity suffix
// (inc/llc/ltd/...) from a lowercased, un-normalized name before fuzzy
// comparison, so "Acme Inc" and "Acme LLC" score closer to "Acme".
func stripCommonSuffix(lowered string) string {
	for _, suf := range commonSuffixes {
		if strings.HasSuffix(lowered, suf) {
			return strings.TrimSpace(strings.TrimSuffix(lowered, suf))
		}
		if strings.HasSuffix(lowered, suf+".") {
			return strings.TrimSpace(strings.TrimSuffix(lowered, suf+"."))
		}
	}
	return lowered
}

// fuzzyFold lowercases, diacritic-folds, and strips a common corporate
// suffix, the normalization fuzzy comparison uses ahead of levenshtein
// scoring (kept distinct from Normalize because Normalize's underscore
// collapsing would erase the word boundaries levenshtein needs).
func fuzzyFold(name string) string {
	folded, _, err := transform.String(diacriticFold, name)
	if err != nil {
		folded = name
	}
	folded = strings.ToLower(strings.Join(strings.Fields(folded), " "))
	return stripCommonSuffix(folded)
}
