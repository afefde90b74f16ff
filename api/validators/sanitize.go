package validators

import "strings"

// SanitizeString collapses runs of whitespace and truncates to maxLen runes.
// A non-positive maxLen disables truncation.
func SanitizeString(input string, maxLen int) string {
	clean := strings.Join(strings.Fields(input), " ")
	if maxLen <= 0 {
		return clean
	}
	runes := []rune(clean)
	if len(runes) <= maxLen {
		return clean
	}
	return strings.TrimSpace(string(runes[:maxLen]))
}
