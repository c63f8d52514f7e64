// Package format holds text-shaping helpers for outgoing Telegram messages.
package format

import "strings"

var htmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
)

// EscapeHTML escapes the characters Telegram's HTML parse mode treats as
// markup. User-supplied strings must pass through here before being embedded
// in an HTML-mode message.
func EscapeHTML(text string) string {
	return htmlEscaper.Replace(text)
}
