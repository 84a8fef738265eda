package utils

import (
	"strings"
	"unicode"
)

// Slugify lowercases s and collapses every run of non-alphanumeric
// characters into a single dash, e.g. "Sprint 1" -> "sprint-1".
// It returns "none" when nothing usable is left.
func Slugify(s string) string {
	var b strings.Builder
	pendingDash := false

	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
			continue
		}
		pendingDash = true
	}

	if b.Len() == 0 {
		return "none"
	}
	return b.String()
}

// CollapseSpaces trims s and replaces internal whitespace runs with one space
func CollapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
