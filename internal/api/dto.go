package api

import (
	"github.com/starford/quire/internal/models"
	"github.com/starford/quire/internal/noteservice"
)

// CreateNoteRequest is the request body for creating a note. An empty
// provider means the default provider.
type CreateNoteRequest struct {
	Provider string `json:"provider,omitempty" example:"local"`
	Title    string `json:"title" example:"Groceries" validate:"required"`
	Content  string `json:"content" example:"milk\neggs"`
	Raw      bool   `json:"raw,omitempty"`
	Color    string `json:"color,omitempty" example:"#ff0000"`
}

// UpdateNoteRequest is the request body for updating a note. Omitted fields
// are left unchanged.
type UpdateNoteRequest struct {
	Title   *string `json:"title,omitempty" example:"Shopping"`
	Content *string `json:"content,omitempty" example:"milk\neggs\nbread"`
	Raw     bool    `json:"raw,omitempty"`
	Color   *string `json:"color,omitempty" example:"#00ff00"`
}

// TagRequest is the request body for adding a tag.
type TagRequest struct {
	Name  string `json:"name" example:"work" validate:"required"`
	Color string `json:"color,omitempty" example:"#3465a4"`
}

// NoteDetail is the full note response type (aliased from the domain layer).
type NoteDetail = noteservice.NoteDetail

// NoteListItem is a lightweight item in a list response (aliased from the domain layer).
type NoteListItem = noteservice.NoteListItem

// NoteListResponse is the exposed part of the notes or trash collection.
type NoteListResponse = noteservice.Page

// ProvidersResponse wraps the provider listing.
type ProvidersResponse struct {
	Providers []noteservice.ProviderInfo `json:"providers" validate:"required"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []NoteListItem `json:"results" validate:"required"`
}

// TagsResponse wraps the tag listing.
type TagsResponse struct {
	Tags []models.Tag `json:"tags" validate:"required"`
}
