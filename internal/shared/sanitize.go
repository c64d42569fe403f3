package shared

import (
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/unicode/norm"
)

var (
	plainPolicy = bluemonday.StrictPolicy()
	richPolicy  = newRichPolicy()

	inertPairRe = regexp.MustCompile(`(?is)<(script|iframe)\b[^>]*>(.*?)</(?:script|iframe)\s*>`)
	inertOpenRe = regexp.MustCompile(`(?is)<(script|iframe)\b[^>]*>`)
)

func newRichPolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements(
		"b", "i", "em", "strong", "a", "p", "br", "span", "div",
		"h1", "h2", "h3", "h4", "h5", "h6",
		"ul", "ol", "li", "blockquote", "code", "pre", "mark", "small", "sub", "sup",
	)
	p.AllowAttrs("href", "title", "target").OnElements("a")
	p.AllowAttrs("class").OnElements("span", "div", "p")
	p.AllowURLSchemes("http", "https", "mailto", "tel")
	p.RequireParseableURLs(true)
	return p
}

// PlainText strips every tag from s.
func PlainText(s string) string {
	return strings.TrimSpace(plainPolicy.Sanitize(s))
}

// RichText keeps the formatting allowlist and turns script and iframe blocks into
// escaped text inside a span.
func RichText(s string) string {
	s = inertPairRe.ReplaceAllStringFunc(s, func(m string) string {
		groups := inertPairRe.FindStringSubmatch(m)
		tag := strings.ToLower(groups[1])
		return "<span>" + html.EscapeString("<"+tag+">"+groups[2]+"</"+tag+">") + "</span>"
	})
	s = inertOpenRe.ReplaceAllStringFunc(s, func(m string) string {
		tag := strings.ToLower(inertOpenRe.FindStringSubmatch(m)[1])
		return "<span>" + html.EscapeString("<"+tag+">") + "</span>"
	})
	return strings.TrimSpace(richPolicy.Sanitize(s))
}

// NormalizeIdentifier applies NFKC and trims surrounding space.
func NormalizeIdentifier(s string) string {
	return strings.TrimSpace(norm.NFKC.String(s))
}
