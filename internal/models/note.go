package models

import "html"

// Note is an Entity with a textual body.
type Note interface {
	Entity

	// RawContent is the backend-native body, formatting tags included.
	RawContent() string
	SetRawContent(raw string)
	// TextContent is the plain-text projection of the body.
	TextContent() string
	// Markup is a preview of the body as Pango-style markup.
	Markup() string

	Buffer() Buffer
	SetContentFromBuffer(b Buffer)

	// Extension is the file suffix new records of this format get.
	Extension() string
	// Serialize renders the complete backend record.
	Serialize() []byte
}

// FormatOf names the storage format of n.
func FormatOf(n Note) string {
	switch v := n.(type) {
	case *PlainNote:
		return "plain"
	case *XMLNote:
		if v.IsBijiben() {
			return "bijiben"
		}
		return "tomboy"
	}
	return "unknown"
}

func escapeText(s string) string { return html.EscapeString(s) }
