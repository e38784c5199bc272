// Package pep503 normalizes Python package names per PEP 503.
package pep503

import "strings"

// Normalize lowercases name and collapses runs of [-_.] into a single hyphen.
func Normalize(name string) string {
	name = strings.ToLower(name)

	var b strings.Builder

	prevHyphen := false

	for i := range len(name) {
		switch name[i] {
		case '-', '_', '.':
			if !prevHyphen {
				b.WriteByte('-')
				prevHyphen = true
			}
		default:
			b.WriteByte(name[i])
			prevHyphen = false
		}
	}

	return b.String()
}

// Equal reports whether two package names are equal under normalization.
func Equal(a, b string) bool {
	return Normalize(a) == Normalize(b)
}
