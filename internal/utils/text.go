package utils

import "strings"

// Truncate cuts s to at most limit runes and marks the cut with "...".
// Unlike TruncateForLog it keeps surrounding whitespace, so section
// layout survives when text is embedded into prompts.
func Truncate(s string, limit int) string {
	if limit < 0 {
		limit = 0
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}

// Head returns the first limit runes of s without any marker.
func Head(s string, limit int) string {
	if limit < 0 {
		limit = 0
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

// TruncateForLog prepares s for a log preview: whitespace runs collapse to a
// single space, then the result is cut to limit runes. A non-positive limit
// disables the preview.
func TruncateForLog(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	return Truncate(strings.Join(strings.Fields(s), " "), limit)
}
