// Package provider defines the note backend contract and its local-directory,
// WebDAV-account and CalDAV-memo implementations.
package provider

import (
	"context"

	"github.com/starford/quire/internal/models"
)

// Provider is a storage backend that owns a set of notes.
//
// Metadata accessors never fail; unsupported values come back empty.
// LoadItems may be called at most once per instance. Operations a backend
// does not implement return apperr.ErrNotSupported. Implementations are safe
// for concurrent use.
type Provider interface {
	UID() string
	Name() string
	Icon() string
	Color() (models.RGBA, bool)
	Domain() string
	UserName() string
	LocationName() string
	Features() models.Features

	// LoadItems enumerates the backend. Every returned note has its uid set
	// and a backend locator recorded by the provider.
	LoadItems(ctx context.Context) (notes, trash []models.Note, err error)
	Notes() []models.Note
	TrashNotes() []models.Note

	// NewNote returns an unsaved note in the provider's preferred format.
	NewNote() models.Note
	// SaveItem creates a record for new notes and assigns their uid, or
	// overwrites the record of an existing one.
	SaveItem(ctx context.Context, n models.Note) error
	// TrashItem moves the record to the trash. List membership changes only
	// when the move succeeds.
	TrashItem(ctx context.Context, n models.Note) error
	RestoreItem(ctx context.Context, n models.Note) error
	DeleteItem(ctx context.Context, n models.Note) error

	// Subscribe registers fn for item events and returns a function that
	// removes it.
	Subscribe(fn func(Event)) func()
}

// Connector is implemented by providers that must reach their backend
// before LoadItems can run.
type Connector interface {
	Connect(ctx context.Context) error
}

// EventKind names an item notification.
type EventKind string

const (
	EventItemAdded    EventKind = "item-added"
	EventItemSaved    EventKind = "item-saved"
	EventItemTrashed  EventKind = "item-trashed"
	EventItemRestored EventKind = "item-restored"
	EventItemDeleted  EventKind = "item-deleted"
)

// Event is emitted by a provider after a successful mutation.
type Event struct {
	Kind     EventKind
	Provider string
	Note     models.Note
}

// Info is the static metadata of a provider.
type Info struct {
	UID          string
	Name         string
	Icon         string
	Color        models.RGBA
	HasColor     bool
	Domain       string
	UserName     string
	LocationName string
	Features     models.Features
}
