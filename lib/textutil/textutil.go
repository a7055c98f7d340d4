package textutil

import (
	"regexp"
	"strings"
)

var whitespaceRegex = regexp.MustCompile(`\s+`)
var nonWordRegex = regexp.MustCompile(`[^a-z0-9 ]+`)

// NormalizeName lowercases and strips all whitespace, "Black + Decker" and
// "black+decker" normalize to the same string.
func NormalizeName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	return whitespaceRegex.ReplaceAllString(name, "")
}

// CollapseSpace trims and collapses runs of whitespace into single spaces.
func CollapseSpace(text string) string {
	return whitespaceRegex.ReplaceAllString(strings.TrimSpace(text), " ")
}

// Words lowercases the text, drops punctuation and splits on whitespace.
func Words(text string) []string {
	text = nonWordRegex.ReplaceAllString(strings.ToLower(text), " ")
	return strings.Fields(text)
}

// ContainsFold reports whether any of `needles` is a case-insensitive
// substring of `haystack`.
func ContainsFold(haystack string, needles []string) bool {
	haystack = strings.ToLower(haystack)
	for _, n := range needles {
		if n == "" {
			continue
		}
		if strings.Contains(haystack, strings.ToLower(n)) {
			return true
		}
	}
	return false
}

// Truncate shortens text to at most n runes, appending "..." when cut.
func Truncate(text string, n int) string {
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	if n <= 3 {
		return string(runes[:n])
	}
	return string(runes[:n-3]) + "..."
}
