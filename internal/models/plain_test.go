package models

import (
	"strings"
	"testing"
)

func TestPlainFromDataRoundTrip(t *testing.T) {
	cases := []string{
		"Title\nBody",
		"Title\n",
		"\nBody only",
		"Title\nline 1\nline 2\n",
	}
	for _, data := range cases {
		n := PlainNoteFromData([]byte(data))
		if got := string(n.Serialize()); got != data {
			t.Errorf("round trip %q = %q", data, got)
		}
	}
}

func TestPlainFromDataNoNewline(t *testing.T) {
	n := PlainNoteFromData([]byte("just a title"))
	if n.Title() != "just a title" {
		t.Errorf("title = %q", n.Title())
	}
	if n.HasContent() {
		t.Error("content should be absent")
	}
}

func TestPlainFromDataNil(t *testing.T) {
	n := PlainNoteFromData(nil)
	if !n.IsNew() {
		t.Error("want new note")
	}
	if n.Title() != "" {
		t.Errorf("title = %q", n.Title())
	}
	if _, ok := n.Color(); ok {
		t.Error("color should be unset")
	}
}

func TestPlainBuffer(t *testing.T) {
	n := NewPlainNote()
	n.SetTitle("Test")
	n.SetRawContent("Content")

	b := n.Buffer()
	if b.Text != "Test\nContent" {
		t.Fatalf("text = %q", b.Text)
	}
	spans := b.SpansFor(StyleTitle)
	if len(spans) != 1 || spans[0].Start != 0 || spans[0].End != 4 {
		t.Errorf("title spans = %+v, want [0,4)", spans)
	}
}

func TestPlainSetContentFromBuffer(t *testing.T) {
	n := NewPlainNote()
	n.SetContentFromBuffer(Buffer{Text: "New title\nfirst\nsecond"})
	if n.Title() != "New title" || n.RawContent() != "first\nsecond" {
		t.Errorf("got title %q content %q", n.Title(), n.RawContent())
	}
	if !n.Modified() {
		t.Error("expected modified")
	}
}

func TestPlainSetContentFromBufferTitleOnly(t *testing.T) {
	n := PlainNoteFromData([]byte("Title\nold body"))
	n.SetContentFromBuffer(Buffer{Text: "Title"})
	if n.RawContent() != "" || n.HasContent() {
		t.Errorf("content = %q, want cleared", n.RawContent())
	}
	if !n.Modified() {
		t.Error("clearing the body should mark the note modified")
	}
	if got := string(n.Serialize()); got != "Title\n" {
		t.Errorf("serialized = %q", got)
	}

	// A title-only note stays untouched.
	bare := PlainNoteFromData([]byte("Title"))
	bare.SetContentFromBuffer(Buffer{Text: "Title"})
	if bare.Modified() {
		t.Error("unchanged title-only note marked modified")
	}
}

func TestPlainMatchBody(t *testing.T) {
	n := PlainNoteFromData([]byte("Groceries\nMilk and EGGS"))
	for _, needle := range []string{"groceries", "eggs", "milk AND"} {
		if !n.Match(needle) {
			t.Errorf("Match(%q) = false", needle)
		}
	}
	if n.Match("bread") {
		t.Error("unexpected match")
	}
}

func TestPlainMarkupEscapesAndCaps(t *testing.T) {
	var lines []string
	for i := 0; i < 15; i++ {
		lines = append(lines, "a<b")
	}
	n := PlainNoteFromData([]byte("t\n" + strings.Join(lines, "\n")))
	m := n.Markup()
	if strings.Contains(m, "a<b") {
		t.Errorf("markup not escaped: %q", m)
	}
	if got := strings.Count(m, "\n") + 1; got != MarkupMaxLines {
		t.Errorf("markup lines = %d, want %d", got, MarkupMaxLines)
	}
}
