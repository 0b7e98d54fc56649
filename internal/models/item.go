// Package models defines the note entities shared by every provider.
package models

import (
	"cmp"
	"strings"
	"sync"

	"golang.org/x/text/cases"
)

// Features is a capability bitmask advertised by note formats and providers.
type Features uint

const FeatureNone Features = 0

const (
	FeatureColor Features = 1 << iota
	FeatureFormatting
	FeatureTrash
	FeatureNotebook
	FeatureIsolatedNotebook
	FeatureCreationDate
	FeatureModificationDate
)

// Has reports whether every bit of o is set in f.
func (f Features) Has(o Features) bool { return f&o == o }

var featureNames = []struct {
	f    Features
	name string
}{
	{FeatureColor, "color"},
	{FeatureFormatting, "formatting"},
	{FeatureTrash, "trash"},
	{FeatureNotebook, "notebook"},
	{FeatureIsolatedNotebook, "isolated-notebook"},
	{FeatureCreationDate, "creation-date"},
	{FeatureModificationDate, "modification-date"},
}

// Names lists the set capabilities.
func (f Features) Names() []string {
	out := []string{}
	for _, fn := range featureNames {
		if f.Has(fn.f) {
			out = append(out, fn.name)
		}
	}
	return out
}

// Entity is the polymorphic surface of every item.
type Entity interface {
	UID() string
	SetUID(uid string)
	Title() string
	SetTitle(title string)
	Color() (RGBA, bool)
	SetColor(c RGBA)
	CreationTime() int64
	SetCreationTime(unix int64)
	ModificationTime() int64
	SetModificationTime(unix int64)

	IsNew() bool
	Modified() bool
	ClearModified()

	Match(needle string) bool
	Features() Features
}

// Item carries identity, title, color and timestamps. Note types embed it by
// value. An empty uid means the item has never been saved.
//
// Notes are read by the manager loop, its workers and the index while
// front ends edit them, so every field is guarded by mu. Embedding types
// guard their own fields with the same mutex and never hold it across a
// call to another locking method.
type Item struct {
	mu       sync.RWMutex
	uid      string
	title    string
	color    RGBA
	hasColor bool
	created  int64
	modified int64
	dirty    bool
}

var _ Entity = (*Item)(nil)

func (i *Item) UID() string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.uid
}

// SetUID is called by providers once a save has succeeded.
func (i *Item) SetUID(uid string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.uid == uid {
		return
	}
	i.uid = uid
	i.dirty = true
}

func (i *Item) Title() string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.title
}

func (i *Item) SetTitle(title string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.setTitle(title)
}

// setTitle requires mu held for writing.
func (i *Item) setTitle(title string) {
	if i.title == title {
		return
	}
	i.title = title
	i.dirty = true
}

func (i *Item) Color() (RGBA, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.color, i.hasColor
}

func (i *Item) SetColor(c RGBA) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.hasColor && i.color.Equal(c) {
		return
	}
	i.color = c
	i.hasColor = true
	i.dirty = true
}

func (i *Item) CreationTime() int64 {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.created
}

func (i *Item) SetCreationTime(unix int64) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.created == unix {
		return
	}
	i.created = unix
	i.dirty = true
}

func (i *Item) ModificationTime() int64 {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.modified
}

func (i *Item) SetModificationTime(unix int64) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.modified == unix {
		return
	}
	i.modified = unix
	i.dirty = true
}

func (i *Item) IsNew() bool { return i.UID() == "" }

func (i *Item) Modified() bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.dirty
}

func (i *Item) ClearModified() {
	i.mu.Lock()
	i.dirty = false
	i.mu.Unlock()
}

// Match reports whether needle occurs in the title, ignoring case.
func (i *Item) Match(needle string) bool {
	return contains(i.Title(), needle)
}

// Features of a bare item: none.
func (i *Item) Features() Features { return FeatureNone }

// Compare orders items by case-folded title, then by uid so the order is
// total.
func Compare(a, b Entity) int {
	if c := cmp.Compare(Fold(a.Title()), Fold(b.Title())); c != 0 {
		return c
	}
	return cmp.Compare(a.UID(), b.UID())
}

// Fold returns the case-folded form of s. A Caser keeps state, so each call
// builds its own.
func Fold(s string) string {
	return cases.Fold().String(s)
}

func contains(haystack, needle string) bool {
	return strings.Contains(Fold(haystack), Fold(needle))
}
