package transport

import "unicode/utf8"

// Truncate cuts s to at most n runes, marking the cut with an ellipsis.
// It never splits a multi-byte character.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-1]) + "…"
}
