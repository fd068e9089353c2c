package contextutils

import (
	"strings"
)

// minCredentialLength is the shortest API key treated as configured. Shorter
// values are placeholders left in config templates.
const minCredentialLength = 10

// MaskAPIKey hides all but the first and last four characters of a key so it
// can appear in logs.
func MaskAPIKey(apiKey string) string {
	if apiKey == "" {
		return "[EMPTY]"
	}

	if len(apiKey) <= 8 {
		return strings.Repeat("*", len(apiKey))
	}

	return apiKey[:4] + strings.Repeat("*", len(apiKey)-8) + apiKey[len(apiKey)-4:]
}

// HasUsableCredential reports whether apiKey looks like a real provider key.
func HasUsableCredential(apiKey string) bool {
	return len(strings.TrimSpace(apiKey)) > minCredentialLength
}
