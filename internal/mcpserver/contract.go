package mcpserver

// NoteFormatContract describes how quire stores notes, so LLM consumers
// know what the content and raw fields of a note mean.
const NoteFormatContract = `# quire Note Format Contract

A note has a **title** and a **body**. The first line of a note is always
its title; tools take the two separately.

## Providers

- ` + "`local`" + ` keeps one file per note in a directory, trashed notes in
  ` + "`.Trash/`" + `. New notes are Tomboy XML documents named ` + "`<uuid>.note`" + `.
- ` + "`goa:<id>`" + ` keeps plain-text files on a WebDAV server, ` + "`<uuid>.txt`" + `.
- ` + "`memo:<id>`" + ` keeps CalDAV VJOURNAL entries. It has no trash.

Call ` + "`list_providers`" + ` to see the features of each (color, formatting, trash).

## Formats

### Tomboy XML (` + "`.note`" + `)

` + "```" + `xml
<?xml version="1.0" encoding="utf-8"?>
<note version="0.3" xmlns="http://beatniksoftware.com/tomboy">
  <title>Groceries</title>
  <text xml:space="preserve"><note-content version="0.1">Groceries
milk <bold>and</bold> eggs</note-content></text>
  <last-change-date>2025-01-20T10:00:00.0000000+00:00</last-change-date>
  <create-date>2025-01-20T10:00:00.0000000+00:00</create-date>
  <color>#ff0000</color>
</note>
` + "```" + `

Inline tags: ` + "`<bold>`" + `, ` + "`<italic>`" + `, ` + "`<strikethrough>`" + `,
` + "`<highlight>`" + `, ` + "`<monospace>`" + `.

### Plain text (` + "`.txt`" + `, memos)

The first line is the title, everything after the first newline is the body.

## Rules

1. ` + "`content`" + ` in tool calls is **plain text**. It is escaped and stored in the
   provider's format; do not send XML tags.
2. ` + "`read_note`" + ` returns ` + "`content`" + ` (plain text) and ` + "`raw`" + ` (stored body,
   tags included). Edit ` + "`content`" + `.
3. Pass the ` + "`etag`" + ` from ` + "`read_note`" + ` to ` + "`update_note`" + `; a mismatch means
   someone else changed the note.
4. Notes are listed in batches of 30 sorted by title. Call ` + "`load_more_notes`" + `
   while ` + "`pending`" + ` is non-zero.
5. Colors are ` + "`#rrggbb`" + `, ` + "`rgb(r,g,b)`" + ` or ` + "`rgba(r,g,b,a)`" + ` and only apply where
   the provider advertises the color feature.
`
