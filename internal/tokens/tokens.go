// Package tokens normalises the case-insensitive tokens clients send for
// closed enumerations (appointment types, statuses, payment methods).
package tokens

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var separators = strings.NewReplacer("_", "", "-", "", " ", "", ".", "")

// Normalize lower-cases s, strips accents and separators.
func Normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))

	// Chains keep state, so build one per call.
	fold := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if folded, _, err := transform.String(fold, s); err == nil {
		s = folded
	}
	return separators.Replace(s)
}

// Lookup resolves raw against a table keyed by normalised aliases.
func Lookup[T any](raw string, table map[string]T) (T, bool) {
	v, ok := table[Normalize(raw)]
	return v, ok
}
