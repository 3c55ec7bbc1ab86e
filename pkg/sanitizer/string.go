package sanitizer

import (
	"strings"
	"unicode"
)

// TrimAndNormalize collapses runs of whitespace into one space and trims the
// ends. Other control characters are dropped.
func TrimAndNormalize(s string) string {
	s = strings.TrimSpace(s)

	if s == "" {
		return ""
	}

	var result strings.Builder
	var lastWasSpace bool

	for _, r := range s {
		switch {
		case unicode.IsSpace(r):
			if !lastWasSpace {
				result.WriteRune(' ')
				lastWasSpace = true
			}
		case unicode.IsControl(r):
		default:
			result.WriteRune(r)
			lastWasSpace = false
		}
	}

	return strings.TrimSpace(result.String())
}

// NormalizeReason cleans a free-text cancellation or rejection reason.
func NormalizeReason(reason string) string {
	return TrimAndNormalize(reason)
}

func NormalizeID(id string) string {
	return strings.TrimSpace(id)
}
