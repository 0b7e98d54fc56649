package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/quire/internal/apperr"
	"github.com/starford/quire/internal/manager"
	"github.com/starford/quire/internal/models"
	"github.com/starford/quire/internal/noteservice"
)

// Handler holds API route handlers.
type Handler struct {
	svc *noteservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *noteservice.Service) *Handler {
	return &Handler{svc: svc}
}

// noteKey extracts the provider and uid URL parameters.
func noteKey(r *http.Request) (string, string) {
	return chi.URLParam(r, "provider"), chi.URLParam(r, "uid")
}

// writeError maps domain errors to status codes. Unexpected errors are
// logged and reported as 500.
func writeError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	case errors.Is(err, apperr.ErrConflict):
		writeJSON(w, http.StatusConflict, errorBody("etag mismatch or note in trash"))
	case errors.Is(err, apperr.ErrAlreadyExists):
		writeJSON(w, http.StatusConflict, errorBody("already exists"))
	case errors.Is(err, noteservice.ErrInvalid):
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
	case errors.Is(err, apperr.ErrNotSupported):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody("not supported by provider"))
	case errors.Is(err, manager.ErrStopped):
		writeJSON(w, http.StatusServiceUnavailable, errorBody("shutting down"))
	default:
		slog.Error(op+" failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}

// ListProviders handles GET /api/providers.
//
//	@Summary		List registered note providers
//	@Tags			providers
//	@Produce		json
//	@Success		200	{object}	ProvidersResponse
//	@Security		BearerAuth
//	@Router			/providers [get]
func (h *Handler) ListProviders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ProvidersResponse{Providers: h.svc.Providers(r.Context())})
}

// ListNotes handles GET /api/notes.
//
//	@Summary		List the exposed notes
//	@Tags			notes
//	@Produce		json
//	@Success		200	{object}	NoteListResponse
//	@Security		BearerAuth
//	@Router			/notes [get]
func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.ListNotes(r.Context(), false))
}

// LoadMoreNotes handles POST /api/notes/more.
//
//	@Summary		Expose the next batch of notes
//	@Tags			notes
//	@Produce		json
//	@Success		200	{object}	NoteListResponse
//	@Security		BearerAuth
//	@Router			/notes/more [post]
func (h *Handler) LoadMoreNotes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.LoadMore(r.Context(), false))
}

// ListTrash handles GET /api/trash.
func (h *Handler) ListTrash(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.ListNotes(r.Context(), true))
}

// LoadMoreTrash handles POST /api/trash/more.
func (h *Handler) LoadMoreTrash(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.LoadMore(r.Context(), true))
}

// GetNote handles GET /api/notes/{provider}/{uid}.
//
//	@Summary		Get a single note
//	@Tags			notes
//	@Produce		json
//	@Param			provider	path		string	true	"Provider uid"
//	@Param			uid			path		string	true	"Note uid"
//	@Success		200			{object}	NoteDetail
//	@Failure		404			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{provider}/{uid} [get]
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	p, uid := noteKey(r)
	note, err := h.svc.GetNote(r.Context(), p, uid)
	if err != nil {
		writeError(w, "get note", err)
		return
	}
	w.Header().Set("ETag", `"`+note.ETag+`"`)
	writeJSON(w, http.StatusOK, note)
}

// CreateNote handles POST /api/notes.
//
//	@Summary		Create a new note
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateNoteRequest	true	"Note to create"
//	@Success		201		{object}	NoteDetail
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes [post]
func (h *Handler) CreateNote(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[CreateNoteRequest](w, r, maxNoteBody)
	if !ok {
		return
	}
	note, err := h.svc.CreateNote(r.Context(), noteservice.CreateInput{
		Provider: req.Provider,
		Title:    req.Title,
		Content:  req.Content,
		Raw:      req.Raw,
		Color:    req.Color,
	})
	if err != nil {
		writeError(w, "create note", err)
		return
	}
	w.Header().Set("ETag", `"`+note.ETag+`"`)
	writeJSON(w, http.StatusCreated, note)
}

// UpdateNote handles PUT /api/notes/{provider}/{uid}.
//
//	@Summary		Update a note with optimistic concurrency
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			provider	path		string				true	"Provider uid"
//	@Param			uid			path		string				true	"Note uid"
//	@Param			If-Match	header		string				false	"ETag from a previous read"
//	@Param			body		body		UpdateNoteRequest	true	"Fields to change"
//	@Success		200			{object}	NoteDetail
//	@Failure		400			{object}	errResponse
//	@Failure		404			{object}	errResponse
//	@Failure		409			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{provider}/{uid} [put]
func (h *Handler) UpdateNote(w http.ResponseWriter, r *http.Request) {
	p, uid := noteKey(r)
	req, ok := readJSON[UpdateNoteRequest](w, r, maxNoteBody)
	if !ok {
		return
	}
	if req.Title == nil && req.Content == nil && req.Color == nil {
		writeJSON(w, http.StatusBadRequest, errorBody("nothing to update"))
		return
	}

	// Strip surrounding quotes if present (standard ETag format).
	ifMatch := strings.Trim(r.Header.Get("If-Match"), `"`)

	note, err := h.svc.UpdateNote(r.Context(), p, uid, noteservice.UpdateInput{
		Title:   req.Title,
		Content: req.Content,
		Raw:     req.Raw,
		Color:   req.Color,
	}, ifMatch)
	if err != nil {
		writeError(w, "update note", err)
		return
	}
	w.Header().Set("ETag", `"`+note.ETag+`"`)
	writeJSON(w, http.StatusOK, note)
}

// TrashNote handles POST /api/notes/{provider}/{uid}/trash.
//
//	@Summary		Move a note to the trash
//	@Tags			notes
//	@Success		204	"Note trashed"
//	@Failure		404	{object}	errResponse
//	@Failure		422	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{provider}/{uid}/trash [post]
func (h *Handler) TrashNote(w http.ResponseWriter, r *http.Request) {
	p, uid := noteKey(r)
	if err := h.svc.TrashNote(r.Context(), p, uid); err != nil {
		writeError(w, "trash note", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RestoreNote handles POST /api/trash/{provider}/{uid}/restore.
func (h *Handler) RestoreNote(w http.ResponseWriter, r *http.Request) {
	p, uid := noteKey(r)
	if err := h.svc.RestoreNote(r.Context(), p, uid); err != nil {
		writeError(w, "restore note", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteNote handles DELETE /api/notes/{provider}/{uid}. It removes the
// note for good, which is the only way to discard notes of providers
// without a trash.
func (h *Handler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	p, uid := noteKey(r)
	if err := h.svc.DeleteNote(r.Context(), p, uid, false); err != nil {
		writeError(w, "delete note", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteTrashed handles DELETE /api/trash/{provider}/{uid}.
func (h *Handler) DeleteTrashed(w http.ResponseWriter, r *http.Request) {
	p, uid := noteKey(r)
	if err := h.svc.DeleteNote(r.Context(), p, uid, true); err != nil {
		writeError(w, "delete trashed note", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Search handles GET /api/search.
//
//	@Summary		Full-text search across notes
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.svc.Search(r.Context(), q, limit)
	if err != nil {
		writeError(w, "search", err)
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}

// ListTags handles GET /api/tags.
func (h *Handler) ListTags(w http.ResponseWriter, r *http.Request) {
	tags := h.svc.Tags(r.Context())
	if tags == nil {
		tags = []models.Tag{}
	}
	writeJSON(w, http.StatusOK, TagsResponse{Tags: tags})
}

// AddTag handles POST /api/tags.
func (h *Handler) AddTag(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[TagRequest](w, r, 1<<16)
	if !ok {
		return
	}
	tag, err := h.svc.AddTag(r.Context(), req.Name, req.Color)
	if err != nil {
		writeError(w, "add tag", err)
		return
	}
	writeJSON(w, http.StatusCreated, tag)
}
