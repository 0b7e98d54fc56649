package parser

import (
	"html"
	"strings"
)

// TokenKind classifies a markup token.
type TokenKind int

const (
	TextToken TokenKind = iota
	OpenToken
	CloseToken
	SelfClosingToken
)

// Token is one piece of note markup: a run of (unescaped) text or a tag.
type Token struct {
	Kind TokenKind
	Name string
	Text string
}

var escaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// Escape escapes s for use as XML character data.
func Escape(s string) string { return escaper.Replace(s) }

// Unescape resolves XML/HTML entities in s.
func Unescape(s string) string { return html.UnescapeString(s) }

// Tokenize splits note markup into text and tag tokens. It never fails: a
// '<' without a closing '>' is kept as text.
func Tokenize(markup string) []Token {
	var out []Token
	for len(markup) > 0 {
		lt := strings.IndexByte(markup, '<')
		if lt < 0 {
			out = appendText(out, markup)
			break
		}
		if lt > 0 {
			out = appendText(out, markup[:lt])
		}
		gt := strings.IndexByte(markup[lt:], '>')
		if gt < 0 {
			out = appendText(out, markup[lt:])
			break
		}
		t := parseTag(markup[lt+1 : lt+gt])
		if t.Name != "" {
			out = append(out, t)
		}
		markup = markup[lt+gt+1:]
	}
	return out
}

// StripTags returns the plain text carried by markup.
func StripTags(markup string) string {
	var sb strings.Builder
	for _, t := range Tokenize(markup) {
		if t.Kind == TextToken {
			sb.WriteString(t.Text)
		}
	}
	return sb.String()
}

func appendText(out []Token, raw string) []Token {
	return append(out, Token{Kind: TextToken, Text: Unescape(raw)})
}

// parseTag interprets the inside of <...>. Declarations, processing
// instructions and comments come back with an empty Name.
func parseTag(inner string) Token {
	inner = strings.TrimSpace(inner)
	if inner == "" || inner[0] == '?' || inner[0] == '!' {
		return Token{}
	}
	kind := OpenToken
	switch {
	case inner[0] == '/':
		kind = CloseToken
		inner = inner[1:]
	case strings.HasSuffix(inner, "/"):
		kind = SelfClosingToken
		inner = strings.TrimSuffix(inner, "/")
	}
	name := inner
	if i := strings.IndexAny(inner, " \t\r\n/"); i >= 0 {
		name = inner[:i]
	}
	return Token{Kind: kind, Name: strings.ToLower(name)}
}
