package checker

import (
	"regexp"
	"strings"

	"staywatch/models"
	"staywatch/selectors"
)

// classify turns extracted page text into an availability verdict.
// Unavailable patterns are checked first: a page that says both "per
// night" and "sold out" is sold out. When no pattern gives a clear
// answer the listing is treated as unavailable, never silently
// available, and the note records why.
func classify(ex *selectors.Extraction, entry *models.PlatformSelectors) (available bool, note string) {
	text := ""
	if ex.AvailabilityText != nil {
		text = *ex.AvailabilityText
	}

	if text == "" {
		return false, "no availability text extracted"
	}

	if matchAny(text, entry.UnavailablePatterns) {
		return false, ""
	}
	if matchAny(text, entry.AvailablePatterns) {
		return true, ""
	}
	return false, "no availability pattern matched"
}

// matchAny tries each pattern as a case-insensitive regex, degrading to a
// plain substring test when the value does not compile.
func matchAny(text string, patterns []string) bool {
	for _, p := range patterns {
		if p == "" {
			continue
		}
		if re, err := regexp.Compile("(?i)" + p); err == nil {
			if re.MatchString(text) {
				return true
			}
			continue
		}
		if strings.Contains(strings.ToLower(text), strings.ToLower(p)) {
			return true
		}
	}
	return false
}
