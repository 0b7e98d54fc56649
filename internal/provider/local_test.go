package provider

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/starford/quire/internal/apperr"
	"github.com/starford/quire/internal/models"
)

func newLocal(t *testing.T, opts LocalOptions) *Local {
	t.Helper()
	if opts.Root == "" {
		opts.Root = t.TempDir()
	}
	l, err := NewLocal(opts)
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	return l
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLocalLoad(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "aaa.note"), `<note><title>Alpha</title><text><note-content>Alpha
body</note-content></text></note>`)
	writeFile(t, filepath.Join(dir, "bbb.txt"), "Ignored\nplain")
	writeFile(t, filepath.Join(dir, ".Trash", "ccc.note"), `<note><title>Gone</title><text><note-content>Gone</note-content></text></note>`)

	l := newLocal(t, LocalOptions{Root: dir})
	notes, trash, err := l.LoadItems(context.Background())
	if err != nil {
		t.Fatalf("LoadItems: %v", err)
	}
	if len(notes) != 1 || notes[0].UID() != "aaa" || notes[0].Title() != "Alpha" {
		t.Fatalf("notes = %+v", notes)
	}
	if notes[0].TextContent() != "body" {
		t.Errorf("text = %q", notes[0].TextContent())
	}
	if notes[0].Modified() || notes[0].ModificationTime() == 0 {
		t.Errorf("loaded note: modified=%v mtime=%d", notes[0].Modified(), notes[0].ModificationTime())
	}
	if len(trash) != 1 || trash[0].UID() != "ccc" {
		t.Errorf("trash = %+v", trash)
	}
	if p, ok := l.Path(notes[0]); !ok || p != "aaa.note" {
		t.Errorf("locator = %q %v", p, ok)
	}

	if _, _, err := l.LoadItems(context.Background()); !errors.Is(err, apperr.ErrAlreadyLoaded) {
		t.Errorf("second load err = %v", err)
	}
}

func TestLocalPatternIncludesPlain(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "p.txt"), "Plain title\nbody")
	writeFile(t, filepath.Join(dir, "x.note"), `<note><title>X</title><note-content>X</note-content></note>`)

	l := newLocal(t, LocalOptions{Root: dir, Pattern: "*.{note,txt}", Format: FormatPlain})
	notes, _, err := l.LoadItems(context.Background())
	if err != nil {
		t.Fatalf("LoadItems: %v", err)
	}
	if len(notes) != 2 {
		t.Fatalf("notes = %d, want 2", len(notes))
	}
	formats := map[string]bool{}
	for _, n := range notes {
		formats[models.FormatOf(n)] = true
	}
	if !formats["plain"] || !formats["tomboy"] {
		t.Errorf("formats = %v", formats)
	}
}

func TestLocalInvalidPattern(t *testing.T) {
	if _, err := NewLocal(LocalOptions{Root: t.TempDir(), Pattern: "[unterminated"}); err == nil {
		t.Error("expected pattern error")
	}
}

func TestLocalSaveReload(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	l := newLocal(t, LocalOptions{Root: dir})
	if _, _, err := l.LoadItems(ctx); err != nil {
		t.Fatalf("LoadItems: %v", err)
	}

	var events []Event
	l.Subscribe(func(e Event) { events = append(events, e) })

	n := l.NewNote()
	n.SetTitle("Shopping")
	n.SetRawContent("eggs <bold>now</bold>")
	if err := l.SaveItem(ctx, n); err != nil {
		t.Fatalf("SaveItem: %v", err)
	}
	if n.IsNew() || n.Modified() {
		t.Fatalf("after save: new=%v modified=%v", n.IsNew(), n.Modified())
	}
	if _, err := os.Stat(filepath.Join(dir, n.UID()+".note")); err != nil {
		t.Fatalf("file missing: %v", err)
	}
	if len(l.Notes()) != 1 {
		t.Errorf("notes = %d", len(l.Notes()))
	}

	n.SetRawContent("eggs and milk")
	if err := l.SaveItem(ctx, n); err != nil {
		t.Fatalf("SaveItem update: %v", err)
	}
	if len(l.Notes()) != 1 {
		t.Errorf("update duplicated note: %d", len(l.Notes()))
	}
	if len(events) != 2 || events[0].Kind != EventItemAdded || events[1].Kind != EventItemSaved {
		t.Errorf("events = %+v", events)
	}

	again := newLocal(t, LocalOptions{Root: dir})
	notes, _, err := again.LoadItems(ctx)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if len(notes) != 1 || notes[0].UID() != n.UID() || notes[0].Title() != "Shopping" || notes[0].RawContent() != "eggs and milk" {
		t.Errorf("reloaded = %+v", notes)
	}
	if notes[0].CreationTime() == 0 {
		t.Error("creation time not persisted")
	}
}

func TestLocalTrashRestoreDelete(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	l := newLocal(t, LocalOptions{Root: dir})
	_, _, _ = l.LoadItems(ctx)

	n := l.NewNote()
	n.SetTitle("Temp")
	if err := l.SaveItem(ctx, n); err != nil {
		t.Fatalf("SaveItem: %v", err)
	}
	name := n.UID() + ".note"

	if err := l.TrashItem(ctx, n); err != nil {
		t.Fatalf("TrashItem: %v", err)
	}
	if len(l.Notes()) != 0 || len(l.TrashNotes()) != 1 {
		t.Fatalf("after trash: notes=%d trash=%d", len(l.Notes()), len(l.TrashNotes()))
	}
	if _, err := os.Stat(filepath.Join(dir, TrashDir, name)); err != nil {
		t.Fatalf("trashed file missing: %v", err)
	}

	// Trashing twice fails cleanly and never duplicates.
	if err := l.TrashItem(ctx, n); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("second trash err = %v", err)
	}
	if len(l.TrashNotes()) != 1 {
		t.Errorf("trash = %d after second trash", len(l.TrashNotes()))
	}

	if err := l.RestoreItem(ctx, n); err != nil {
		t.Fatalf("RestoreItem: %v", err)
	}
	if len(l.Notes()) != 1 || len(l.TrashNotes()) != 0 {
		t.Fatalf("after restore: notes=%d trash=%d", len(l.Notes()), len(l.TrashNotes()))
	}
	if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
		t.Fatalf("restored file missing: %v", err)
	}

	if err := l.DeleteItem(ctx, n); err != nil {
		t.Fatalf("DeleteItem: %v", err)
	}
	if len(l.Notes()) != 0 {
		t.Error("deleted note still listed")
	}
	if _, err := os.Stat(filepath.Join(dir, name)); !os.IsNotExist(err) {
		t.Errorf("file still present: %v", err)
	}
}

func TestLocalTrashFailureKeepsMembership(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	l := newLocal(t, LocalOptions{Root: dir})
	_, _, _ = l.LoadItems(ctx)

	n := l.NewNote()
	n.SetTitle("Vanishing")
	_ = l.SaveItem(ctx, n)
	if err := os.Remove(filepath.Join(dir, n.UID()+".note")); err != nil {
		t.Fatal(err)
	}

	if err := l.TrashItem(ctx, n); err == nil {
		t.Fatal("expected move failure")
	}
	if len(l.Notes()) != 1 || len(l.TrashNotes()) != 0 {
		t.Errorf("membership changed: notes=%d trash=%d", len(l.Notes()), len(l.TrashNotes()))
	}
}

func TestLocalMalformedNoteIsKept(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "bad.note"), "<note><title>Broken")
	l := newLocal(t, LocalOptions{Root: dir})
	notes, _, err := l.LoadItems(context.Background())
	if err != nil {
		t.Fatalf("LoadItems: %v", err)
	}
	if len(notes) != 1 || !strings.HasPrefix(notes[0].Title(), "Broken") {
		t.Errorf("notes = %+v", notes)
	}
}

func TestLocalDefaultRoot(t *testing.T) {
	if !strings.HasSuffix(DefaultLocalRoot(), "quire") {
		t.Errorf("root = %s", DefaultLocalRoot())
	}
}
