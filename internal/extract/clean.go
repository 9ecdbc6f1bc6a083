package extract

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	blankLines = regexp.MustCompile(`\n\s*\n`)
	whitespace = regexp.MustCompile(`\s+`)
)

// CleanText normalizes answer-key text for storage: NUL bytes are removed,
// blank lines collapsed, then every whitespace run collapsed to one space.
func CleanText(s string) string {
	s = strings.ReplaceAll(s, "\x00", "")
	s = blankLines.ReplaceAllString(s, "\n")
	s = whitespace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// PageSeparator returns the header written before page n (1-based).
func PageSeparator(n int) string {
	return fmt.Sprintf("--- Page %d ---\n", n)
}
