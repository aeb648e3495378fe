package expr

import "strings"

// Sanitize turns an arbitrary field name into a valid expression identifier:
// every run of characters outside [A-Za-z0-9_] collapses to a single '_' and
// a leading digit gets a '_' prefix.
//
// Distinct names can sanitize to the same identifier ("first-name" and
// "first.name"); the later one in a name list shadows the earlier.
func Sanitize(name string) string {
	var b strings.Builder
	b.Grow(len(name) + 1)
	inRun := false
	for _, r := range name {
		if isIdentRune(r) {
			b.WriteRune(r)
			inRun = false
			continue
		}
		if !inRun {
			b.WriteByte('_')
			inRun = true
		}
	}
	out := b.String()
	if out == "" {
		return "_"
	}
	if out[0] >= '0' && out[0] <= '9' {
		out = "_" + out
	}
	return out
}

// SanitizeAll sanitizes every name, preserving order.
func SanitizeAll(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = Sanitize(n)
	}
	return out
}

func isIdentRune(r rune) bool {
	return r == '_' ||
		(r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9')
}
