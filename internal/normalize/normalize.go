// Package normalize folds free-text listing titles into a canonical form.
package normalize

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var nonWord = regexp.MustCompile(`[^\p{L}\p{N}]+`)

// Fold applies NFKC normalisation and Unicode case folding. Full-width
// digits, ligatures and mixed-case Cyrillic all compare equal afterwards.
func Fold(s string) string {
	// A Caser is stateful, so one is created per call.
	return cases.Fold().String(norm.NFKC.String(s))
}

// Words folds s and replaces every run of non letter/digit runes with a
// single space.
func Words(s string) string {
	return strings.TrimSpace(nonWord.ReplaceAllString(Fold(s), " "))
}

// ContainsPhrase reports whether phrase occurs in words at word boundaries.
// Both arguments must already be in Words form.
func ContainsPhrase(words, phrase string) bool {
	if phrase == "" {
		return false
	}
	return strings.Contains(" "+words+" ", " "+phrase+" ")
}
