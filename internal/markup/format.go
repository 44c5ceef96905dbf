// Package markup turns message text markup into display markup. It is a
// pure transform with no state; everything else treats the output as an
// opaque string.
package markup

import "regexp"

var (
	boldRegex   = regexp.MustCompile(`\*\*(.*?)\*\*`)
	italicRegex = regexp.MustCompile(`\*(.*?)\*`)
	linkRegex   = regexp.MustCompile(`(https?://[^\s]+)`)
)

// Format applies the three markup passes in order: bold, italic, auto-link.
// Bold must run before italic so the delimiters of "**x**" are consumed
// before single-asterisk pairing. Raw text is not HTML-escaped; clients
// render the output as-is.
func Format(text string) string {
	text = boldRegex.ReplaceAllString(text, "<strong>${1}</strong>")
	text = italicRegex.ReplaceAllString(text, "<em>${1}</em>")
	text = linkRegex.ReplaceAllString(text, `<a href="${1}" target="_blank" rel="noopener noreferrer">${1}</a>`)
	return text
}
