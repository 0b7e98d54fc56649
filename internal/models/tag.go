package models

import (
	"fmt"
	"strings"
	"sync"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/quire/internal/observable"
)

// Tag is a label with an optional color.
type Tag struct {
	Name     string `json:"name"`
	Color    RGBA   `json:"color"`
	HasColor bool   `json:"has_color"`
}

// Validate implements validation.Validatable.
func (t Tag) Validate() error {
	return validation.ValidateStruct(&t,
		validation.Field(&t.Name, validation.Required, validation.Length(1, 256)),
	)
}

// TagStore is an append-only ordered collection of tags.
type TagStore struct {
	mu   sync.Mutex
	list *observable.List[Tag]
}

// NewTagStore returns an empty store.
func NewTagStore() *TagStore {
	return &TagStore{list: observable.NewList[Tag]()}
}

// Add appends t unless a tag with the same name (ignoring surrounding space)
// exists, in which case the existing tag is returned.
func (s *TagStore) Add(t Tag) (Tag, error) {
	t.Name = strings.TrimSpace(t.Name)
	if err := t.Validate(); err != nil {
		return Tag{}, fmt.Errorf("tags: add: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.list.IndexFunc(func(o Tag) bool { return o.Name == t.Name }); i >= 0 {
		existing, _ := s.list.At(i)
		return existing, nil
	}
	s.list.Append(t)
	return t, nil
}

// Find looks a tag up by name.
func (s *TagStore) Find(name string) (Tag, bool) {
	i := s.list.IndexFunc(func(o Tag) bool { return o.Name == name })
	if i < 0 {
		return Tag{}, false
	}
	return s.list.At(i)
}

// Tags returns a snapshot in insertion order.
func (s *TagStore) Tags() []Tag { return s.list.Items() }

// List exposes the observable collection.
func (s *TagStore) List() *observable.List[Tag] { return s.list }
