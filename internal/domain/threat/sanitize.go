package threat

import (
	"fmt"
	"net/url"
	"strings"
)

// EncodingContext selects the output context a value is being embedded into.
// Sanitization is an explicit call-site decision; the scanner never rewrites
// input on its own.
type EncodingContext string

const (
	EncodeHTML      EncodingContext = "html"
	EncodeAttribute EncodingContext = "attribute"
	EncodeScript    EncodingContext = "script"
	EncodeCSS       EncodingContext = "css"
	EncodeURL       EncodingContext = "url"
	EncodeXML       EncodingContext = "xml"
	EncodeSQL       EncodingContext = "sql"
)

// Sanitize encodes value for safe embedding in the given output context.
// Encoding is idempotent for strings that are already safe in that context.
// Unknown contexts fall back to HTML encoding, the most conservative choice
// for text output.
func Sanitize(value string, ec EncodingContext) string {
	switch ec {
	case EncodeHTML:
		return sanitizeHTML(value)
	case EncodeAttribute:
		return sanitizeAttribute(value)
	case EncodeScript:
		return sanitizeScript(value)
	case EncodeCSS:
		return sanitizeCSS(value)
	case EncodeURL:
		return url.QueryEscape(value)
	case EncodeXML:
		return sanitizeXML(value)
	case EncodeSQL:
		return strings.ReplaceAll(value, "'", "''")
	default:
		return sanitizeHTML(value)
	}
}

var htmlReplacer = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#x27;",
)

func sanitizeHTML(value string) string {
	return htmlReplacer.Replace(value)
}

// sanitizeAttribute hex-encodes everything outside [a-zA-Z0-9], the safe
// alphabet inside quoted HTML attributes.
func sanitizeAttribute(value string) string {
	var b strings.Builder
	b.Grow(len(value))
	for _, r := range value {
		if isAlnum(r) {
			b.WriteRune(r)
		} else {
			fmt.Fprintf(&b, "&#x%02X;", r)
		}
	}
	return b.String()
}

// sanitizeScript escapes for embedding inside a JavaScript string literal.
func sanitizeScript(value string) string {
	var b strings.Builder
	b.Grow(len(value))
	for _, r := range value {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '\'':
			b.WriteString(`\'`)
		case '"':
			b.WriteString(`\"`)
		case '<':
			b.WriteString(`\x3C`)
		case '>':
			b.WriteString(`\x3E`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// sanitizeCSS hex-escapes everything outside the alphanumeric alphabet, the
// conservative form for CSS string values.
func sanitizeCSS(value string) string {
	var b strings.Builder
	b.Grow(len(value))
	for _, r := range value {
		if isAlnum(r) {
			b.WriteRune(r)
		} else {
			fmt.Fprintf(&b, `\%06X`, r)
		}
	}
	return b.String()
}

var xmlReplacer = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

func sanitizeXML(value string) string {
	return xmlReplacer.Replace(value)
}

func isAlnum(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}
