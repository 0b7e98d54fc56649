package parser

import (
	"errors"
	"strings"
	"testing"

	"github.com/starford/quire/internal/apperr"
)

func TestExtractTomboy(t *testing.T) {
	doc, err := Extract([]byte(`<title>Foo</title><note-content>Bar</note-content>`))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if doc.Title != "Foo" {
		t.Errorf("title = %q, want Foo", doc.Title)
	}
	if doc.Content != "Bar" {
		t.Errorf("content = %q, want Bar", doc.Content)
	}
	if doc.Bijiben {
		t.Error("tomboy document flagged as bijiben")
	}
}

func TestExtractBijiben(t *testing.T) {
	doc, err := Extract([]byte(`<title>Foo</title><html><body>Bar</body></html>`))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if doc.Title != "Foo" || !doc.Bijiben {
		t.Errorf("doc = %+v, want title Foo and bijiben", doc)
	}
	if doc.Content != "Bar" {
		t.Errorf("content = %q, want Bar", doc.Content)
	}
}

func TestExtractFullTomboyFile(t *testing.T) {
	src := `<?xml version="1.0" encoding="utf-8"?>
<note version="0.3" xmlns="http://beatniksoftware.com/tomboy">
  <title>Groceries &amp; more</title>
  <text xml:space="preserve"><note-content version="0.1">Groceries &amp; more
<bold>milk</bold> and eggs</note-content></text>
  <last-change-date>2013-04-02T10:11:12.0000000+02:00</last-change-date>
  <create-date>2013-04-01T09:00:00.0000000+02:00</create-date>
</note>`
	doc, err := Extract([]byte(src))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if doc.Title != "Groceries & more" {
		t.Errorf("title = %q", doc.Title)
	}
	want := "Groceries &amp; more\n<bold>milk</bold> and eggs"
	if doc.Content != want {
		t.Errorf("content = %q, want %q", doc.Content, want)
	}
	if doc.Modified == 0 || doc.Created == 0 || doc.Created >= doc.Modified {
		t.Errorf("dates = %d / %d", doc.Created, doc.Modified)
	}
}

func TestExtractBijibenWithHead(t *testing.T) {
	src := `<note><title>Trip</title><text xml:space="preserve"><html xmlns="http://www.w3.org/1999/xhtml"><head><link rel="stylesheet" href="x.css"/></head><body contenteditable="true">Pack <b>boots</b></body></html></text><color>rgb(252,233,79)</color></note>`
	doc, err := Extract([]byte(src))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !doc.Bijiben || doc.Content != "Pack <b>boots</b>" {
		t.Errorf("doc = %+v", doc)
	}
	if doc.Color != "rgb(252,233,79)" {
		t.Errorf("color = %q", doc.Color)
	}
}

func TestExtractMalformed(t *testing.T) {
	cases := []struct {
		name  string
		src   string
		title string
	}{
		{"empty", "", ""},
		{"no title", "<note><text>hi</text></note>", ""},
		{"unterminated title", "<note><title>Half", "Half"},
		{"no content", "<note><title>Lonely</title></note>", "Lonely"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			doc, err := Extract([]byte(tc.src))
			if !errors.Is(err, apperr.ErrParse) {
				t.Fatalf("err = %v, want ErrParse", err)
			}
			if doc.Title != tc.title {
				t.Errorf("title = %q, want %q", doc.Title, tc.title)
			}
			if doc.Content != "" {
				t.Errorf("content = %q, want empty", doc.Content)
			}
		})
	}
}

func TestExtractUnclosedContentRunsToEnd(t *testing.T) {
	doc, err := Extract([]byte(`<title>T</title><note-content>dangling`))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if doc.Content != "dangling" {
		t.Errorf("content = %q", doc.Content)
	}
}

func TestWriteExtractRoundTrip(t *testing.T) {
	docs := []Document{
		{Title: "Plain", Content: "Plain\nbody"},
		{Title: "<Odd> & title", Content: "x <bold>y</bold>", Created: 1700000000, Modified: 1700000500},
		{Title: "Legacy", Content: "<b>old</b> note", Bijiben: true, Color: "rgb(1,2,3)"},
		{Title: "", Content: ""},
	}
	for _, in := range docs {
		out, err := Extract(Write(in))
		if err != nil {
			t.Fatalf("Extract(Write(%q)): %v", in.Title, err)
		}
		if out != in {
			t.Errorf("round trip:\n got  %+v\n want %+v", out, in)
		}
	}
}

func TestTokenize(t *testing.T) {
	toks := Tokenize(`a &lt;b&gt; <bold>c</bold><br/><?pi?> <unclosed`)
	var kinds []TokenKind
	var text strings.Builder
	for _, tk := range toks {
		kinds = append(kinds, tk.Kind)
		if tk.Kind == TextToken {
			text.WriteString(tk.Text)
		}
	}
	want := []TokenKind{TextToken, OpenToken, TextToken, CloseToken, SelfClosingToken, TextToken, TextToken}
	if len(kinds) != len(want) {
		t.Fatalf("kinds = %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("kinds = %v, want %v", kinds, want)
		}
	}
	if text.String() != "a <b> c <unclosed" {
		t.Errorf("text = %q", text.String())
	}
}

func TestEscapeUnescape(t *testing.T) {
	in := `5 < 6 & "x" > 1`
	if got := Unescape(Escape(in)); got != in {
		t.Errorf("round trip = %q", got)
	}
	if strings.ContainsAny(Escape(in), "<>") {
		t.Errorf("escape left brackets: %q", Escape(in))
	}
}
