// Package parser extracts notes from the Tomboy / Bijiben XML subset and
// writes them back. It scans for the few tags the format always places in
// the same order instead of building a DOM.
package parser

import (
	"fmt"
	"strings"
	"time"

	"github.com/starford/quire/internal/apperr"
)

// TomboyDateLayout is the timestamp layout Tomboy writes.
const TomboyDateLayout = "2006-01-02T15:04:05.0000000-07:00"

// Document is what the extractor recovers from a note file.
type Document struct {
	Title string
	// Content is the verbatim span inside <note-content> (Tomboy) or
	// <body> (Bijiben); nested markup is preserved.
	Content string
	Bijiben bool

	Created  int64
	Modified int64
	Color    string
}

type tag struct {
	name    string
	closing bool
	skip    bool
	end     int // offset just past '>'
}

// nextTag finds the first tag at or after pos.
func nextTag(s string, pos int) (tag, bool) {
	lt := strings.IndexByte(s[pos:], '<')
	if lt < 0 {
		return tag{}, false
	}
	lt += pos
	gt := strings.IndexByte(s[lt:], '>')
	if gt < 0 {
		return tag{}, false
	}
	t := parseTag(s[lt+1 : lt+gt])
	return tag{
		name:    t.Name,
		closing: t.Kind == CloseToken,
		skip:    t.Name == "",
		end:     lt + gt + 1,
	}, true
}

// Extract recovers title and content from a note document. It is tolerant:
// on malformed input it returns whatever it found together with an error
// wrapping apperr.ErrParse.
func Extract(data []byte) (Document, error) {
	s := string(data)
	var doc Document

	i := strings.Index(s, "<title>")
	if i < 0 {
		return doc, fmt.Errorf("parser: %w: no <title>", apperr.ErrParse)
	}
	start := i + len("<title>")
	n := strings.IndexByte(s[start:], '<')
	if n < 0 {
		doc.Title = Unescape(s[start:])
		return doc, fmt.Errorf("parser: %w: unterminated title", apperr.ErrParse)
	}
	doc.Title = Unescape(s[start : start+n])
	pos := start + n
	if j := strings.Index(s[pos:], "</title>"); j >= 0 {
		pos += j + len("</title>")
	}

	for {
		t, ok := nextTag(s, pos)
		if !ok {
			scanMetadata(s[pos:], &doc)
			return doc, fmt.Errorf("parser: %w: no content element", apperr.ErrParse)
		}
		pos = t.end
		if t.skip || t.closing || t.name == "text" {
			continue
		}

		var cstart, cend int
		if strings.HasPrefix(t.name, "html") {
			doc.Bijiben = true
			cstart, cend = bodySpan(s, pos)
		} else {
			cstart = pos
			cend = closingOffset(s, cstart, t.name)
		}
		doc.Content = s[cstart:cend]
		scanMetadata(s[cend:], &doc)
		return doc, nil
	}
}

// bodySpan locates the content between <body ...> and </body>, starting the
// search at pos. Without a body element the content runs to </html>.
func bodySpan(s string, pos int) (int, int) {
	b := strings.Index(s[pos:], "<body")
	if b < 0 {
		return pos, closingOffset(s, pos, "html")
	}
	gt := strings.IndexByte(s[pos+b:], '>')
	if gt < 0 {
		return len(s), len(s)
	}
	cstart := pos + b + gt + 1
	return cstart, closingOffset(s, cstart, "body")
}

// closingOffset returns the offset of </name> after from, or len(s).
func closingOffset(s string, from int, name string) int {
	if j := strings.Index(s[from:], "</"+name+">"); j >= 0 {
		return from + j
	}
	return len(s)
}

// scanMetadata picks optional trailing elements out of the document tail.
func scanMetadata(tail string, doc *Document) {
	if v, ok := element(tail, "last-change-date"); ok {
		doc.Modified = parseDate(v)
	}
	if v, ok := element(tail, "create-date"); ok {
		doc.Created = parseDate(v)
	}
	if v, ok := element(tail, "color"); ok {
		doc.Color = strings.TrimSpace(Unescape(v))
	}
}

func element(s, name string) (string, bool) {
	open := "<" + name + ">"
	i := strings.Index(s, open)
	if i < 0 {
		return "", false
	}
	rest := s[i+len(open):]
	j := strings.Index(rest, "</"+name+">")
	if j < 0 {
		return "", false
	}
	return rest[:j], true
}

func parseDate(v string) int64 {
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(v))
	if err != nil {
		return 0
	}
	return t.Unix()
}

const (
	tomboyHeader = `<?xml version="1.0" encoding="utf-8"?>
<note version="0.3" xmlns:link="http://beatniksoftware.com/tomboy/link" xmlns:size="http://beatniksoftware.com/tomboy/size" xmlns="http://beatniksoftware.com/tomboy">
`
	bijibenHeader = `<?xml version="1.0" encoding="UTF-8"?>
<note version="1" xmlns:link="http://projects.gnome.org/bijiben/link" xmlns:size="http://projects.gnome.org/bijiben/size" xmlns="http://projects.gnome.org/bijiben">
`
)

// Write renders doc as a complete note file that Extract reads back.
func Write(doc Document) []byte {
	var sb strings.Builder
	if doc.Bijiben {
		sb.WriteString(bijibenHeader)
	} else {
		sb.WriteString(tomboyHeader)
	}
	sb.WriteString("  <title>" + Escape(doc.Title) + "</title>\n")
	sb.WriteString(`  <text xml:space="preserve">`)
	if doc.Bijiben {
		sb.WriteString(`<html xmlns="http://www.w3.org/1999/xhtml"><head></head><body>`)
		sb.WriteString(doc.Content)
		sb.WriteString(`</body></html>`)
	} else {
		sb.WriteString(`<note-content version="0.1">`)
		sb.WriteString(doc.Content)
		sb.WriteString(`</note-content>`)
	}
	sb.WriteString("</text>\n")
	if doc.Modified != 0 {
		sb.WriteString("  <last-change-date>" + formatDate(doc.Modified) + "</last-change-date>\n")
	}
	if doc.Created != 0 {
		sb.WriteString("  <create-date>" + formatDate(doc.Created) + "</create-date>\n")
	}
	if doc.Color != "" {
		sb.WriteString("  <color>" + Escape(doc.Color) + "</color>\n")
	}
	sb.WriteString("</note>\n")
	return []byte(sb.String())
}

func formatDate(unix int64) string {
	return time.Unix(unix, 0).Format(TomboyDateLayout)
}
