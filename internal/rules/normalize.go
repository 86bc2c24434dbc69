// Package rules implements the deterministic layer consulted before semantic
// matching: the dictionary bypass, forced-classification rules, and functional
// family classifiers.
package rules

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize lower-cases s, strips accents, turns every run of non-alphanumeric
// characters into a single space and trims the result.
// "  Mozo/a de SALÓN " -> "mozo a de salon".
func Normalize(s string) string {
	// transformers and casers carry state; build them per call
	fold := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(fold, s)
	if err != nil {
		folded = s
	}
	folded = cases.Lower(language.Spanish).String(folded)

	var b strings.Builder
	b.Grow(len(folded))
	pendingSpace := false
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingSpace && b.Len() > 0 {
				b.WriteByte(' ')
			}
			pendingSpace = false
			b.WriteRune(r)
			continue
		}
		pendingSpace = true
	}
	return b.String()
}

// containsPhrase reports whether phrase occurs in text on word boundaries.
// Both arguments must already be normalized.
func containsPhrase(text, phrase string) bool {
	if phrase == "" || text == "" {
		return false
	}
	return strings.Contains(" "+text+" ", " "+phrase+" ")
}

// containsTerm is a plain substring test on normalized text, so stems such as
// "vended" match "vendedor" and "vendedora".
func containsTerm(text, term string) bool {
	return term != "" && strings.Contains(text, term)
}

func normalizeAll(terms []string) []string {
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		if n := Normalize(t); n != "" {
			out = append(out, n)
		}
	}
	return out
}
