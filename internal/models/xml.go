package models

import (
	"strings"
	"unicode/utf8"

	"github.com/starford/quire/internal/parser"
)

// XMLNote is a note in the Tomboy XML subset, or in the legacy Bijiben
// XHTML flavour when IsBijiben is set. The flag is fixed at construction.
type XMLNote struct {
	Item
	content string // body markup, without Tomboy's leading title line
	bijiben bool
}

var _ Note = (*XMLNote)(nil)

// NewXMLNote returns an empty, unsaved Tomboy-format note.
func NewXMLNote() *XMLNote { return &XMLNote{} }

// XMLNoteFromData parses a note document. The note is always usable; a
// non-nil error (wrapping apperr.ErrParse) means parts of it were lost.
func XMLNoteFromData(data []byte) (*XMLNote, error) {
	doc, err := parser.Extract(data)
	n := &XMLNote{bijiben: doc.Bijiben}
	n.title = doc.Title
	n.content = doc.Content
	if !doc.Bijiben {
		n.content = trimTitleLine(doc.Content, doc.Title)
	}
	n.created = doc.Created
	n.modified = doc.Modified
	if doc.Color != "" {
		if c, cerr := ParseRGBA(doc.Color); cerr == nil {
			n.color, n.hasColor = c, true
		}
	}
	return n, err
}

// trimTitleLine drops the copy of the title Tomboy keeps as the first line
// of note-content.
func trimTitleLine(content, title string) string {
	for _, prefix := range []string{parser.Escape(title), title} {
		if content == prefix {
			return ""
		}
		if rest, ok := strings.CutPrefix(content, prefix+"\n"); ok {
			return rest
		}
	}
	return content
}

// IsBijiben reports whether the note uses the legacy Bijiben layout.
func (n *XMLNote) IsBijiben() bool { return n.bijiben }

func (n *XMLNote) RawContent() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.content
}

func (n *XMLNote) SetRawContent(raw string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.setContent(raw)
}

func (n *XMLNote) setContent(raw string) {
	if n.content == raw {
		return
	}
	n.content = raw
	n.dirty = true
}

func (n *XMLNote) TextContent() string {
	text, _ := n.body(n.RawContent())
	return text
}

func (n *XMLNote) Markup() string {
	text, spans := n.body(n.RawContent())
	return pangoMarkup(text, spans, escapeText)
}

// Match checks the title first, then the body text.
func (n *XMLNote) Match(needle string) bool {
	n.mu.RLock()
	title, content := n.title, n.content
	n.mu.RUnlock()
	if contains(title, needle) {
		return true
	}
	text, _ := n.body(content)
	return contains(text, needle)
}

func (n *XMLNote) Features() Features { return FeatureColor | FeatureFormatting }

func (n *XMLNote) Buffer() Buffer {
	n.mu.RLock()
	title, content := n.title, n.content
	n.mu.RUnlock()
	text, spans := n.body(content)
	return NewBuffer(title, text, spans)
}

// SetContentFromBuffer takes line 0 as the title and writes the remaining
// text back as markup, turning spans into format tags.
func (n *XMLNote) SetContentFromBuffer(b Buffer) {
	title, body, _, spans := b.Split()
	tags := tomboyWriteTags
	if n.bijiben {
		tags = htmlWriteTags
	}
	raw := renderSpans(body, spans,
		func(s Style) string {
			if name := tags[s]; name != "" {
				return "<" + name + ">"
			}
			return ""
		},
		func(s Style) string { return "</" + tags[s] + ">" },
		parser.Escape)

	n.mu.Lock()
	defer n.mu.Unlock()
	n.setTitle(title)
	n.setContent(raw)
}

func (n *XMLNote) Extension() string { return ".note" }

// Serialize renders a complete document. Tomboy keeps the title as the
// first content line.
func (n *XMLNote) Serialize() []byte {
	n.mu.RLock()
	defer n.mu.RUnlock()
	doc := parser.Document{
		Title:    n.title,
		Content:  n.content,
		Bijiben:  n.bijiben,
		Created:  n.created,
		Modified: n.modified,
	}
	if !n.bijiben {
		doc.Content = parser.Escape(n.title) + "\n" + n.content
	}
	if n.hasColor {
		doc.Color = n.color.String()
	}
	return parser.Write(doc)
}

var (
	tomboyReadTags = map[string]Style{
		"bold":          StyleBold,
		"italic":        StyleItalic,
		"strikethrough": StyleStrikethrough,
		"highlight":     StyleHighlight,
		"monospace":     StyleMonospace,
	}
	htmlReadTags = map[string]Style{
		"b":      StyleBold,
		"strong": StyleBold,
		"i":      StyleItalic,
		"em":     StyleItalic,
		"u":      StyleUnderline,
		"s":      StyleStrikethrough,
		"strike": StyleStrikethrough,
		"del":    StyleStrikethrough,
		"mark":   StyleHighlight,
		"tt":     StyleMonospace,
		"code":   StyleMonospace,
	}
	tomboyWriteTags = map[Style]string{
		StyleBold:          "bold",
		StyleItalic:        "italic",
		StyleStrikethrough: "strikethrough",
		StyleHighlight:     "highlight",
		StyleMonospace:     "monospace",
	}
	htmlWriteTags = map[Style]string{
		StyleBold:          "b",
		StyleItalic:        "i",
		StyleUnderline:     "u",
		StyleStrikethrough: "s",
		StyleHighlight:     "mark",
		StyleMonospace:     "code",
	}
)

// body flattens content markup into text plus style spans (rune offsets).
// bijiben is immutable, so it is read without the lock.
func (n *XMLNote) body(content string) (string, []Span) {
	styles := tomboyReadTags
	if n.bijiben {
		styles = htmlReadTags
	}
	var (
		sb    strings.Builder
		pos   int
		spans []Span
		open  = map[Style][]int{}
	)
	write := func(s string) {
		sb.WriteString(s)
		pos += utf8.RuneCountInString(s)
	}
	newline := func() {
		if sb.Len() > 0 && !strings.HasSuffix(sb.String(), "\n") {
			write("\n")
		}
	}

	for _, t := range parser.Tokenize(content) {
		switch t.Kind {
		case parser.TextToken:
			write(t.Text)
		case parser.OpenToken:
			if st, ok := styles[t.Name]; ok {
				open[st] = append(open[st], pos)
			} else if n.bijiben && t.Name == "br" {
				write("\n")
			}
		case parser.SelfClosingToken:
			if n.bijiben && t.Name == "br" {
				write("\n")
			}
		case parser.CloseToken:
			if st, ok := styles[t.Name]; ok {
				if starts := open[st]; len(starts) > 0 {
					start := starts[len(starts)-1]
					open[st] = starts[:len(starts)-1]
					if start < pos {
						spans = append(spans, Span{Style: st, Start: start, End: pos})
					}
				}
			} else if n.bijiben && (t.Name == "div" || t.Name == "p" || t.Name == "li") {
				newline()
			}
		}
	}
	for _, st := range styleOrder {
		for _, start := range open[st] {
			if start < pos {
				spans = append(spans, Span{Style: st, Start: start, End: pos})
			}
		}
	}
	return sb.String(), spans
}
