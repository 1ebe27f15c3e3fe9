package server

import (
	"strings"
	"unicode/utf8"
)

// validateCustomTheme re-checks what the client form enforces; client-side
// checks are UX hints only. The theme must leave room for response cards,
// so it needs at least one blank marker.
func validateCustomTheme(text string) (string, error) {
	cleaned := normalizeText(text)
	length := utf8.RuneCountInString(cleaned)
	if length <= minCustomThemeLength {
		return "", errValidation("the theme must be longer than %d characters", minCustomThemeLength)
	}
	if length >= maxCustomThemeLength {
		return "", errValidation("the theme must be shorter than %d characters", maxCustomThemeLength)
	}
	if !strings.Contains(cleaned, blankMarker) {
		return "", errValidation("the theme needs at least one blank (%s)", blankMarker)
	}
	return cleaned, nil
}

func normalizeText(text string) string {
	fields := strings.Fields(strings.TrimSpace(text))
	return strings.Join(fields, " ")
}
