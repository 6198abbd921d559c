// Package sanitize cleans free-form text that ends up in rendered diagrams
// and audit logs: titles supplied by tool callers and error messages that
// may echo user input.
package sanitize

import (
	"regexp"
	"strings"
)

// MaxTitleLength is the maximum length of a diagram title, in runes.
const MaxTitleLength = 120

// MaxLogTextLength is the maximum length of text written to an audit entry.
const MaxLogTextLength = 500

var (
	// reTag matches XML/HTML tags, including processing instructions.
	reTag = regexp.MustCompile(`<[/?!]?[a-zA-Z][a-zA-Z0-9]*(?:\s+[^>]*)?/?>|<\?[^?]*\?>`)

	reSpaces = regexp.MustCompile(`\s+`)
)

// Title turns caller-supplied text into a single-line diagram title:
// control characters and markup tags are removed, whitespace runs collapse
// to one space and the result is cut to MaxTitleLength runes.
func Title(input string) string {
	if input == "" {
		return ""
	}
	s := stripControlChars(input)
	s = reTag.ReplaceAllString(s, "")
	s = strings.TrimSpace(reSpaces.ReplaceAllString(s, " "))
	return truncate(s, MaxTitleLength, "")
}

// LogText makes text safe to store as one audit field. Newlines and tabs
// become spaces, other control characters are dropped and long text is
// truncated with an ellipsis.
func LogText(input string) string {
	if input == "" {
		return ""
	}
	s := stripControlChars(input)
	s = strings.TrimSpace(s)
	return truncate(s, MaxLogTextLength, "...")
}

// stripControlChars removes ASCII control characters and DEL, turning
// newline, carriage return and tab into spaces.
func stripControlChars(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\n' || r == '\r' || r == '\t':
			b.WriteByte(' ')
		case r < 0x20 || r == 0x7f:
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func truncate(s string, n int, suffix string) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n])) + suffix
}
