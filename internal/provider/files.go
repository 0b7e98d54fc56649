package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"

	"github.com/starford/quire/internal/apperr"
	"github.com/starford/quire/internal/models"
	"github.com/starford/quire/internal/storage"
)

// TrashDir is the trash subdirectory kept beside the notes.
const TrashDir = ".Trash"

// Format selects the note type a file provider creates.
type Format string

const (
	FormatXML   Format = "xml"
	FormatPlain Format = "plain"
)

func (f Format) newNote() models.Note {
	if f == FormatPlain {
		return models.NewPlainNote()
	}
	return models.NewXMLNote()
}

// ParseFile picks the parser by file extension. Parse errors come back with
// a best-effort note.
func ParseFile(name string, data []byte) (models.Note, error) {
	if path.Ext(name) == ".note" {
		return models.XMLNoteFromData(data)
	}
	return models.PlainNoteFromData(data), nil
}

// files holds the logic shared by providers that keep one file per note on
// a storage.Store. The locator of each note is its store-relative path, kept
// in a side table.
type files struct {
	Base

	pattern string
	format  Format

	opMu  sync.Mutex // serializes backend mutations
	store storage.Store
	paths map[models.Note]string // guarded by Base.mu
}

func (f *files) init(info Info, logger *slog.Logger, pattern string, format Format) error {
	if !doublestar.ValidatePattern(pattern) {
		return fmt.Errorf("provider: %s: invalid pattern %q", info.UID, pattern)
	}
	f.Base.init(info, logger)
	f.pattern = pattern
	f.format = format
	f.paths = make(map[models.Note]string)

	// Notes of the configured format must match the load pattern or they will
	// not be found on the next start.
	if ok, _ := doublestar.Match(pattern, "x"+format.newNote().Extension()); !ok {
		f.logger.Warn("new notes will not match the load pattern",
			slog.String("pattern", pattern),
			slog.String("format", string(format)))
	}
	return nil
}

func (f *files) getStore() (storage.Store, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.store == nil {
		return nil, fmt.Errorf("provider: %s: %w", f.info.UID, apperr.ErrNotConnected)
	}
	return f.store, nil
}

func (f *files) setStore(s storage.Store) {
	f.mu.Lock()
	f.store = s
	f.mu.Unlock()
}

func (f *files) NewNote() models.Note { return f.format.newNote() }

// LoadItems reads every matching file of the root and the trash.
func (f *files) LoadItems(ctx context.Context) ([]models.Note, []models.Note, error) {
	store, err := f.getStore()
	if err != nil {
		return nil, nil, err
	}
	if err := f.beginLoad(); err != nil {
		return nil, nil, err
	}
	if err := store.MkdirAll(ctx, TrashDir); err != nil {
		f.abortLoad()
		return nil, nil, fmt.Errorf("provider: %s: load: %w", f.info.UID, err)
	}

	paths := make(map[models.Note]string)
	notes, err := f.loadDir(ctx, store, "", paths)
	if err != nil {
		f.abortLoad()
		return nil, nil, err
	}
	trash, err := f.loadDir(ctx, store, TrashDir, paths)
	if err != nil {
		f.abortLoad()
		return nil, nil, err
	}

	f.mu.Lock()
	f.notes, f.trash = notes, trash
	for n, p := range paths {
		f.paths[n] = p
	}
	f.mu.Unlock()
	f.logger.Info("loaded", slog.Int("notes", len(notes)), slog.Int("trash", len(trash)))
	return f.Notes(), f.TrashNotes(), nil
}

func (f *files) loadDir(ctx context.Context, store storage.Store, dir string, paths map[models.Note]string) ([]models.Note, error) {
	infos, err := store.List(ctx, dir)
	if err != nil {
		return nil, fmt.Errorf("provider: %s: list %q: %w", f.info.UID, dir, err)
	}
	var out []models.Note
	for _, fi := range infos {
		name := path.Base(fi.Path)
		if ok, _ := doublestar.Match(f.pattern, name); !ok {
			continue
		}
		data, err := store.Read(ctx, fi.Path)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			f.logger.Warn("skip unreadable note", slog.String("path", fi.Path), slog.String("error", err.Error()))
			continue
		}
		n, err := ParseFile(name, data)
		if err != nil {
			f.logger.Warn("malformed note", slog.String("path", fi.Path), slog.String("error", err.Error()))
		}
		n.SetUID(strings.TrimSuffix(name, path.Ext(name)))
		if n.ModificationTime() == 0 && !fi.ModTime.IsZero() {
			n.SetModificationTime(fi.ModTime.Unix())
		}
		n.ClearModified()
		paths[n] = fi.Path
		out = append(out, n)
	}
	return out, nil
}

// Pattern is the doublestar pattern file names must match to load.
func (f *files) Pattern() string { return f.pattern }

// SaveItem writes n. New notes get a random file name in the root.
func (f *files) SaveItem(ctx context.Context, n models.Note) error {
	store, err := f.getStore()
	if err != nil {
		return err
	}
	f.opMu.Lock()
	defer f.opMu.Unlock()

	f.mu.RLock()
	p, known := f.paths[n]
	f.mu.RUnlock()
	created := !known
	if created {
		uid := n.UID()
		if uid == "" {
			uid = uuid.New().String()
		}
		p = uid + n.Extension()
	}

	now := time.Now().Unix()
	if n.CreationTime() == 0 {
		n.SetCreationTime(now)
	}
	n.SetModificationTime(now)

	if err := store.Write(ctx, p, n.Serialize()); err != nil {
		return fmt.Errorf("provider: %s: save: %w", f.info.UID, err)
	}

	f.mu.Lock()
	n.SetUID(strings.TrimSuffix(path.Base(p), path.Ext(p)))
	n.ClearModified()
	if created {
		f.paths[n] = p
		f.notes = append([]models.Note{n}, f.notes...)
	}
	f.mu.Unlock()

	if created {
		f.emit(EventItemAdded, n)
	} else {
		f.emit(EventItemSaved, n)
	}
	return nil
}

// TrashItem moves n into TrashDir, keeping its base name.
func (f *files) TrashItem(ctx context.Context, n models.Note) error {
	store, err := f.getStore()
	if err != nil {
		return err
	}
	f.opMu.Lock()
	defer f.opMu.Unlock()

	f.mu.RLock()
	i, _ := f.membership(n)
	p := f.paths[n]
	f.mu.RUnlock()
	if i < 0 {
		return fmt.Errorf("provider: %s: trash %q: %w", f.info.UID, n.UID(), apperr.ErrNotFound)
	}

	dest := path.Join(TrashDir, path.Base(p))
	if err := store.Move(ctx, p, dest); err != nil {
		return fmt.Errorf("provider: %s: trash: %w", f.info.UID, err)
	}

	f.mu.Lock()
	if i, _ := f.membership(n); i >= 0 {
		f.toTrash(i, n)
	}
	f.paths[n] = dest
	f.mu.Unlock()
	f.emit(EventItemTrashed, n)
	return nil
}

// RestoreItem moves n from TrashDir back to the root.
func (f *files) RestoreItem(ctx context.Context, n models.Note) error {
	store, err := f.getStore()
	if err != nil {
		return err
	}
	f.opMu.Lock()
	defer f.opMu.Unlock()

	f.mu.RLock()
	_, j := f.membership(n)
	p := f.paths[n]
	f.mu.RUnlock()
	if j < 0 {
		return fmt.Errorf("provider: %s: restore %q: %w", f.info.UID, n.UID(), apperr.ErrNotFound)
	}

	dest := path.Base(p)
	if err := store.Move(ctx, p, dest); err != nil {
		return fmt.Errorf("provider: %s: restore: %w", f.info.UID, err)
	}

	f.mu.Lock()
	if _, j := f.membership(n); j >= 0 {
		f.fromTrash(j, n)
	}
	f.paths[n] = dest
	f.mu.Unlock()
	f.emit(EventItemRestored, n)
	return nil
}

// DeleteItem removes the file of n for good.
func (f *files) DeleteItem(ctx context.Context, n models.Note) error {
	store, err := f.getStore()
	if err != nil {
		return err
	}
	f.opMu.Lock()
	defer f.opMu.Unlock()

	f.mu.RLock()
	p, ok := f.paths[n]
	f.mu.RUnlock()
	if !ok {
		return fmt.Errorf("provider: %s: delete %q: %w", f.info.UID, n.UID(), apperr.ErrNotFound)
	}
	if err := store.Delete(ctx, p); err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return fmt.Errorf("provider: %s: delete: %w", f.info.UID, err)
	}

	f.mu.Lock()
	f.forget(n)
	delete(f.paths, n)
	f.mu.Unlock()
	f.emit(EventItemDeleted, n)
	return nil
}

// Path returns the locator of n, if this provider owns it.
func (f *files) Path(n models.Note) (string, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	p, ok := f.paths[n]
	return p, ok
}
