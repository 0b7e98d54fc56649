package provider

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/starford/quire/internal/apperr"
	"github.com/starford/quire/internal/models"
)

// Base implements the metadata accessors, the item lists and event fan-out.
// Backend operations return apperr.ErrNotSupported until a concrete provider
// overrides them.
type Base struct {
	info   Info
	logger *slog.Logger

	mu     sync.RWMutex
	loaded bool
	notes  []models.Note
	trash  []models.Note

	subMu   sync.Mutex
	subs    map[int]func(Event)
	nextSub int
}

var _ Provider = (*Base)(nil)

// NewBase returns a Base carrying info.
func NewBase(info Info, logger *slog.Logger) *Base {
	b := &Base{}
	b.init(info, logger)
	return b
}

func (b *Base) init(info Info, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	b.info = info
	b.logger = logger.With(slog.String("provider", info.UID))
	b.subs = make(map[int]func(Event))
}

func (b *Base) UID() string                { return b.info.UID }
func (b *Base) Name() string               { return b.info.Name }
func (b *Base) Icon() string               { return b.info.Icon }
func (b *Base) Color() (models.RGBA, bool) { return b.info.Color, b.info.HasColor }
func (b *Base) Domain() string             { return b.info.Domain }
func (b *Base) UserName() string           { return b.info.UserName }
func (b *Base) LocationName() string       { return b.info.LocationName }
func (b *Base) Features() models.Features  { return b.info.Features }

func (b *Base) LoadItems(context.Context) ([]models.Note, []models.Note, error) {
	return nil, nil, fmt.Errorf("provider: load: %w", apperr.ErrNotSupported)
}

// Notes returns a snapshot of the loaded notes.
func (b *Base) Notes() []models.Note {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return slices.Clone(b.notes)
}

// TrashNotes returns a snapshot of the loaded trash.
func (b *Base) TrashNotes() []models.Note {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return slices.Clone(b.trash)
}

func (b *Base) NewNote() models.Note { return models.NewPlainNote() }

func (b *Base) SaveItem(context.Context, models.Note) error {
	return fmt.Errorf("provider: save: %w", apperr.ErrNotSupported)
}

func (b *Base) TrashItem(context.Context, models.Note) error {
	return fmt.Errorf("provider: trash: %w", apperr.ErrNotSupported)
}

func (b *Base) RestoreItem(context.Context, models.Note) error {
	return fmt.Errorf("provider: restore: %w", apperr.ErrNotSupported)
}

func (b *Base) DeleteItem(context.Context, models.Note) error {
	return fmt.Errorf("provider: delete: %w", apperr.ErrNotSupported)
}

// Subscribe registers fn for item events.
func (b *Base) Subscribe(fn func(Event)) func() {
	b.subMu.Lock()
	id := b.nextSub
	b.nextSub++
	b.subs[id] = fn
	b.subMu.Unlock()
	return func() {
		b.subMu.Lock()
		delete(b.subs, id)
		b.subMu.Unlock()
	}
}

func (b *Base) emit(kind EventKind, n models.Note) {
	b.subMu.Lock()
	fns := make([]func(Event), 0, len(b.subs))
	for _, fn := range b.subs {
		fns = append(fns, fn)
	}
	b.subMu.Unlock()
	ev := Event{Kind: kind, Provider: b.info.UID, Note: n}
	for _, fn := range fns {
		fn(ev)
	}
}

// beginLoad flips the loaded flag, failing on a second call.
func (b *Base) beginLoad() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.loaded {
		return fmt.Errorf("provider: load %s: %w", b.info.UID, apperr.ErrAlreadyLoaded)
	}
	b.loaded = true
	return nil
}

// abortLoad allows a retry after a failed load.
func (b *Base) abortLoad() {
	b.mu.Lock()
	b.loaded = false
	b.mu.Unlock()
}

func (b *Base) setLists(notes, trash []models.Note) {
	b.mu.Lock()
	b.notes, b.trash = notes, trash
	b.mu.Unlock()
}

// membership reports where n currently lives. Callers hold b.mu.
func (b *Base) membership(n models.Note) (inNotes, inTrash int) {
	return slices.Index(b.notes, n), slices.Index(b.trash, n)
}

// toTrash removes n from notes and prepends it to trash. Callers hold b.mu.
func (b *Base) toTrash(i int, n models.Note) {
	b.notes = slices.Delete(b.notes, i, i+1)
	b.trash = slices.Insert(b.trash, 0, n)
}

// fromTrash is the inverse of toTrash. Callers hold b.mu.
func (b *Base) fromTrash(i int, n models.Note) {
	b.trash = slices.Delete(b.trash, i, i+1)
	b.notes = slices.Insert(b.notes, 0, n)
}

// forget drops n from whichever list holds it. Callers hold b.mu.
func (b *Base) forget(n models.Note) {
	if i := slices.Index(b.notes, n); i >= 0 {
		b.notes = slices.Delete(b.notes, i, i+1)
	}
	if i := slices.Index(b.trash, n); i >= 0 {
		b.trash = slices.Delete(b.trash, i, i+1)
	}
}
