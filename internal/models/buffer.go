package models

import (
	"slices"
	"strings"
	"unicode/utf8"
)

// Style names a formatting attribute applied to a buffer range.
type Style string

const (
	StyleTitle         Style = "title"
	StyleBold          Style = "bold"
	StyleItalic        Style = "italic"
	StyleUnderline     Style = "underline"
	StyleStrikethrough Style = "strikethrough"
	StyleHighlight     Style = "highlight"
	StyleMonospace     Style = "monospace"
)

// styleOrder fixes the nesting order used when spans are written back.
var styleOrder = []Style{StyleBold, StyleItalic, StyleUnderline, StyleStrikethrough, StyleHighlight, StyleMonospace}

// Span applies Style to runes [Start, End) of a buffer.
type Span struct {
	Style Style `json:"style"`
	Start int   `json:"start"`
	End   int   `json:"end"`
}

// Buffer is the editable form of a note: line 0 is the title, the rest is
// the body.
type Buffer struct {
	Text  string `json:"text"`
	Spans []Span `json:"spans,omitempty"`
}

// MarkupMaxLines caps the number of body lines rendered by Markup.
const MarkupMaxLines = 10

// NewBuffer joins title and body and marks the title line.
func NewBuffer(title, body string, bodySpans []Span) Buffer {
	n := utf8.RuneCountInString(title)
	b := Buffer{
		Text:  title + "\n" + body,
		Spans: []Span{{Style: StyleTitle, Start: 0, End: n}},
	}
	for _, s := range bodySpans {
		b.Spans = append(b.Spans, Span{Style: s.Style, Start: s.Start + n + 1, End: s.End + n + 1})
	}
	return b
}

// Split separates the title line from the body. Body spans are returned
// relative to the body with the title style dropped.
func (b Buffer) Split() (title, body string, hasBody bool, spans []Span) {
	title, body, hasBody = strings.Cut(b.Text, "\n")
	if !hasBody {
		return title, "", false, nil
	}
	off := utf8.RuneCountInString(title) + 1
	limit := utf8.RuneCountInString(body)
	for _, s := range b.Spans {
		if s.Style == StyleTitle {
			continue
		}
		start, end := max(s.Start-off, 0), min(s.End-off, limit)
		if start < end {
			spans = append(spans, Span{Style: s.Style, Start: start, End: end})
		}
	}
	return title, body, true, spans
}

// SpansFor returns the spans carrying style.
func (b Buffer) SpansFor(style Style) []Span {
	var out []Span
	for _, s := range b.Spans {
		if s.Style == style {
			out = append(out, s)
		}
	}
	return out
}

// renderSpans writes text with each maximal run of equally-styled runes
// wrapped in open/close tags. escape is applied to every text run.
func renderSpans(text string, spans []Span, open, close func(Style) string, escape func(string) string) string {
	runes := []rune(text)
	cuts := []int{0, len(runes)}
	for _, s := range spans {
		cuts = append(cuts, clamp(s.Start, len(runes)), clamp(s.End, len(runes)))
	}
	slices.Sort(cuts)
	cuts = slices.Compact(cuts)

	var sb strings.Builder
	for i := 0; i+1 < len(cuts); i++ {
		from, to := cuts[i], cuts[i+1]
		var active []Style
		for _, st := range styleOrder {
			if covered(spans, st, from, to) && open(st) != "" {
				active = append(active, st)
			}
		}
		for _, st := range active {
			sb.WriteString(open(st))
		}
		sb.WriteString(escape(string(runes[from:to])))
		for j := len(active) - 1; j >= 0; j-- {
			sb.WriteString(close(active[j]))
		}
	}
	return sb.String()
}

func covered(spans []Span, st Style, from, to int) bool {
	for _, s := range spans {
		if s.Style == st && s.Start <= from && s.End >= to {
			return true
		}
	}
	return false
}

func clamp(v, n int) int { return max(0, min(v, n)) }

// firstLines returns at most n lines of s.
func firstLines(s string, n int) string {
	idx := 0
	for i := 0; i < n; i++ {
		j := strings.IndexByte(s[idx:], '\n')
		if j < 0 {
			return s
		}
		idx += j + 1
	}
	return strings.TrimSuffix(s[:idx], "\n")
}

var pangoTags = map[Style][2]string{
	StyleBold:          {"<b>", "</b>"},
	StyleItalic:        {"<i>", "</i>"},
	StyleUnderline:     {"<u>", "</u>"},
	StyleStrikethrough: {"<s>", "</s>"},
	StyleHighlight:     {`<span background="yellow">`, "</span>"},
	StyleMonospace:     {"<tt>", "</tt>"},
}

// pangoMarkup renders a preview of body capped at MarkupMaxLines lines.
func pangoMarkup(body string, spans []Span, escape func(string) string) string {
	return renderSpans(firstLines(body, MarkupMaxLines), spans,
		func(s Style) string { return pangoTags[s][0] },
		func(s Style) string { return pangoTags[s][1] },
		escape)
}
