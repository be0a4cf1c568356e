package book

import "strings"

// Ellipsis marks a truncated snippet.
const Ellipsis = "..."

// Snippet builds a displayable preview of a description: newlines collapsed
// to spaces, surrounding whitespace trimmed, then rune-truncated to maxLen
// with an ellipsis appended when truncation occurred. Total: any input maps
// to a string of at most maxLen+3 runes, never an error.
func Snippet(description string, maxLen int) string {
	text := strings.TrimSpace(strings.ReplaceAll(description, "\n", " "))
	if maxLen <= 0 {
		return ""
	}
	runes := []rune(text)
	if len(runes) <= maxLen {
		return text
	}
	return string(runes[:maxLen]) + Ellipsis
}
