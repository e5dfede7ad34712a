// Package pypiname normalizes Python package names per PEP 503, lifted
// out of the resolver so the cache, finder, and resolver can all
// normalize names independently without importing each other.
package pypiname

import "strings"

// Normalize lowercases name and collapses runs of "-", "_", "." into a
// single "-". Equality and cache-key derivation both use this form; the
// original spelling should be kept separately for display.
func Normalize(name string) string {
	name = strings.ToLower(name)

	var b strings.Builder

	prevHyphen := false

	for i := 0; i < len(name); i++ {
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

// Equal reports whether two names are the same package under
// normalization.
func Equal(a, b string) bool {
	return Normalize(a) == Normalize(b)
}
