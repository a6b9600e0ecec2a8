// Package htmlsanitize cleans user-authored content before it is stored or
// forwarded to the forum. Stored text is literal; clients escape it when
// they render it.
package htmlsanitize

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var strict = bluemonday.StrictPolicy()

// PlainText removes all markup and returns the remaining text with entities
// decoded, so "Q&A" is stored as typed rather than as "Q&amp;A".
func PlainText(s string) string {
	if strings.TrimSpace(s) == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(strict.Sanitize(s)))
}

// Markdown prepares post source for Discourse, which cooks and sanitizes
// markdown itself. Only line endings and surrounding blank lines change;
// leading indentation is kept because it marks code blocks.
func Markdown(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.TrimLeft(s, "\n")
	return strings.TrimRight(s, " \t\n")
}
