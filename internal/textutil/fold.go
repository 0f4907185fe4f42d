package textutil

import (
	"strings"

	"golang.org/x/text/cases"
)

// Fold returns a case-folded form of value suitable for case-insensitive
// comparison keys. Folding is the Unicode notion of caseless matching, which
// handles characters that simple lowercasing does not (for example ß and ẞ).
func Fold(value string) string {
	return cases.Fold().String(value)
}

// FoldTrim folds value after trimming surrounding whitespace.
func FoldTrim(value string) string {
	return Fold(strings.TrimSpace(value))
}
