package infer

import (
	"strings"
	"unicode/utf16"
)

// copySuffix is appended to a key until it no longer collides.
const copySuffix = "_copy"

// SanitizeKey replaces every character outside [A-Za-z0-9_] with an
// underscore. Characters outside the Basic Multilingual Plane count as two,
// matching how browsers index header text, so "a😀" becomes "a__".
func SanitizeKey(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if isKeyChar(r) {
			b.WriteRune(r)
			continue
		}
		n := utf16.RuneLen(r)
		if n < 1 {
			n = 1
		}
		b.WriteString(strings.Repeat("_", n))
	}
	return b.String()
}

func isKeyChar(r rune) bool {
	return r == '_' ||
		(r >= 'A' && r <= 'Z') ||
		(r >= 'a' && r <= 'z') ||
		(r >= '0' && r <= '9')
}

// SanitizeHeaders builds the column skeleton for a header record: one Column
// per header, in order, with a unique key and the untouched header text as
// alias. Keys that collide (case-sensitively) with an earlier key get "_copy"
// appended until unique. Never fails; empty headers yield empty keys.
func SanitizeHeaders(header []string) []Column {
	cols := make([]Column, len(header))
	seen := make(map[string]struct{}, len(header))

	for i, h := range header {
		key := SanitizeKey(h)
		for {
			if _, taken := seen[key]; !taken {
				break
			}
			key += copySuffix
		}
		seen[key] = struct{}{}

		cols[i] = Column{Key: key, Alias: h}
	}
	return cols
}
