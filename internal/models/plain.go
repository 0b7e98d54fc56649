package models

import "strings"

// PlainNote stores "title\ncontent" as plain text.
type PlainNote struct {
	Item
	content    string
	hasContent bool
}

var _ Note = (*PlainNote)(nil)

// NewPlainNote returns an empty, unsaved plain note.
func NewPlainNote() *PlainNote { return &PlainNote{} }

// PlainNoteFromData splits data on its first newline into title and
// content. A nil slice yields an empty new note.
func PlainNoteFromData(data []byte) *PlainNote {
	n := &PlainNote{}
	if data == nil {
		return n
	}
	title, content, ok := strings.Cut(string(data), "\n")
	n.title = title
	n.content, n.hasContent = content, ok
	return n
}

func (n *PlainNote) RawContent() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.content
}

func (n *PlainNote) TextContent() string { return n.RawContent() }

// HasContent reports whether a body was ever set.
func (n *PlainNote) HasContent() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.hasContent
}

func (n *PlainNote) SetRawContent(raw string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.setContent(raw)
}

func (n *PlainNote) setContent(raw string) {
	if n.hasContent && n.content == raw {
		return
	}
	n.content, n.hasContent = raw, true
	n.dirty = true
}

func (n *PlainNote) Markup() string {
	return pangoMarkup(n.RawContent(), nil, escapeText)
}

// Match checks the title first, then the body.
func (n *PlainNote) Match(needle string) bool {
	n.mu.RLock()
	title, content := n.title, n.content
	n.mu.RUnlock()
	return contains(title, needle) || contains(content, needle)
}

func (n *PlainNote) Features() Features { return FeatureNone }

func (n *PlainNote) Buffer() Buffer {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return NewBuffer(n.title, n.content, nil)
}

// SetContentFromBuffer splits the buffer on its first newline. A buffer
// without one holds only the title, so the body is cleared.
func (n *PlainNote) SetContentFromBuffer(b Buffer) {
	title, body, hasBody, _ := b.Split()
	n.mu.Lock()
	defer n.mu.Unlock()
	n.setTitle(title)
	if hasBody {
		n.setContent(body)
		return
	}
	if n.hasContent {
		n.content, n.hasContent = "", false
		n.dirty = true
	}
}

func (n *PlainNote) Extension() string { return ".txt" }

func (n *PlainNote) Serialize() []byte {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return []byte(n.title + "\n" + n.content)
}
