package provider

import "github.com/starford/quire/internal/models"

// Entry pairs a note with the provider that owns it, so identical notes on
// different backends stay distinct. It is a plain value holding references
// and owns neither side.
type Entry struct {
	Provider Provider
	Note     models.Note
}

// formatBits are the capabilities that depend on the note format as well as
// the backend.
const formatBits = models.FeatureColor | models.FeatureFormatting

// Features combines what the backend supports with what the note's format
// can represent.
func (e Entry) Features() models.Features {
	pf := e.Provider.Features()
	return pf&e.Note.Features() | pf&^formatBits
}

// Key identifies the entry across providers.
func (e Entry) Key() string { return e.Provider.UID() + "/" + e.Note.UID() }

// Compare orders entries by note, then provider uid.
func Compare(a, b Entry) int {
	if c := models.Compare(a.Note, b.Note); c != 0 {
		return c
	}
	switch pa, pb := a.Provider.UID(), b.Provider.UID(); {
	case pa < pb:
		return -1
	case pa > pb:
		return 1
	}
	return 0
}
