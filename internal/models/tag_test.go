package models

import (
	"testing"

	"github.com/starford/quire/internal/observable"
)

func TestTagStoreAdd(t *testing.T) {
	s := NewTagStore()
	var changes []observable.Change
	s.List().Subscribe(func(c observable.Change) { changes = append(changes, c) })

	if _, err := s.Add(Tag{Name: "work"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	red, _ := ParseRGBA("#ff0000")
	got, err := s.Add(Tag{Name: " work ", Color: red, HasColor: true})
	if err != nil {
		t.Fatalf("Add duplicate: %v", err)
	}
	if got.HasColor {
		t.Error("duplicate add should return the existing tag")
	}
	if len(s.Tags()) != 1 || len(changes) != 1 {
		t.Errorf("tags = %v, changes = %v", s.Tags(), changes)
	}
	if _, ok := s.Find("work"); !ok {
		t.Error("Find(work) failed")
	}
}

func TestTagStoreRejectsEmptyName(t *testing.T) {
	s := NewTagStore()
	if _, err := s.Add(Tag{Name: "   "}); err == nil {
		t.Error("expected validation error")
	}
}
