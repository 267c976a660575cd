package auth

import (
	"strings"
	"unicode"
)

// disallowed are markup and quoting characters that must never reach
// logs, templates, or query strings through an identifier.
const disallowed = "<>\"'`;"

// SanitizeIdentifier normalizes a username or other free-text identifier
// before any storage or lookup. Markup characters and control characters
// are dropped, surrounding whitespace is trimmed.
func SanitizeIdentifier(s string) string {
	cleaned := strings.Map(func(r rune) rune {
		if strings.ContainsRune(disallowed, r) || unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(cleaned)
}
