package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/quire/internal/noteservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *noteservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Get("/providers", h.ListProviders)

	// Notes.
	r.Get("/notes", h.ListNotes)
	r.Post("/notes", h.CreateNote)
	r.Post("/notes/more", h.LoadMoreNotes)
	r.Get("/notes/{provider}/{uid}", h.GetNote)
	r.Put("/notes/{provider}/{uid}", h.UpdateNote)
	r.Delete("/notes/{provider}/{uid}", h.DeleteNote)
	r.Post("/notes/{provider}/{uid}/trash", h.TrashNote)

	// Trash.
	r.Get("/trash", h.ListTrash)
	r.Post("/trash/more", h.LoadMoreTrash)
	r.Post("/trash/{provider}/{uid}/restore", h.RestoreNote)
	r.Delete("/trash/{provider}/{uid}", h.DeleteTrashed)

	// Search.
	r.Get("/search", h.Search)

	// Tags.
	r.Get("/tags", h.ListTags)
	r.Post("/tags", h.AddTag)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
