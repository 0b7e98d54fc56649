// Package noteservice is the note-level API shared by the REST and MCP
// surfaces. It turns manager entries into response payloads and applies
// edits with optimistic concurrency.
package noteservice

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/starford/quire/internal/apperr"
	"github.com/starford/quire/internal/checksum"
	"github.com/starford/quire/internal/manager"
	"github.com/starford/quire/internal/models"
	"github.com/starford/quire/internal/provider"
)

// NoteDetail is the full representation of a note.
type NoteDetail struct {
	Provider  string     `json:"provider"`
	UID       string     `json:"uid"`
	Title     string     `json:"title"`
	Content   string     `json:"content"`
	Raw       string     `json:"raw"`
	Format    string     `json:"format"`
	Color     string     `json:"color,omitempty"`
	Features  []string   `json:"features"`
	Trashed   bool       `json:"trashed"`
	ETag      string     `json:"etag"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// NoteListItem is a lightweight item in a list response.
type NoteListItem struct {
	Provider  string     `json:"provider"`
	UID       string     `json:"uid"`
	Title     string     `json:"title"`
	Preview   string     `json:"preview"`
	Color     string     `json:"color,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// Page is the exposed part of a collection.
type Page struct {
	Notes   []NoteListItem `json:"notes"`
	State   manager.State  `json:"state"`
	Exposed int            `json:"exposed"`
	Pending int            `json:"pending"`
}

// ProviderInfo describes one registered provider.
type ProviderInfo struct {
	UID      string   `json:"uid"`
	Name     string   `json:"name"`
	Icon     string   `json:"icon,omitempty"`
	Color    string   `json:"color,omitempty"`
	Domain   string   `json:"domain,omitempty"`
	UserName string   `json:"user_name,omitempty"`
	Location string   `json:"location,omitempty"`
	Features []string `json:"features"`
	Default  bool     `json:"default"`
}

// CreateInput describes a new note. Content is plain text unless Raw is
// set, in which case it is stored as the backend-native body.
type CreateInput struct {
	Provider string
	Title    string
	Content  string
	Raw      bool
	Color    string
}

// UpdateInput carries the fields to change; nil fields are kept.
type UpdateInput struct {
	Title   *string
	Content *string
	Raw     bool
	Color   *string
}

// TagSaver persists tags. It is optional.
type TagSaver interface {
	SaveTag(t models.Tag) error
}

// Service coordinates the manager and the tag store.
type Service struct {
	mgr  *manager.Manager
	tags *models.TagStore
	save TagSaver

	// mu serializes multi-field edits so a save never sees a note half
	// updated. Single field reads are guarded by the note itself.
	mu sync.Mutex
}

// NewService creates a new note service. saver may be nil.
func NewService(mgr *manager.Manager, tags *models.TagStore, saver TagSaver) *Service {
	if tags == nil {
		tags = models.NewTagStore()
	}
	return &Service{mgr: mgr, tags: tags, save: saver}
}

// ETag fingerprints the stored form of n.
func ETag(n models.Note) string {
	return checksum.Short(n.Serialize())
}

func unixPtr(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}

func colorOf(c models.Entity) string {
	if col, ok := c.Color(); ok {
		return col.Hex()
	}
	return ""
}

func preview(n models.Note) string {
	text := strings.TrimSpace(n.TextContent())
	line, _, _ := strings.Cut(text, "\n")
	if r := []rune(line); len(r) > 120 {
		line = string(r[:120]) + "…"
	}
	return line
}

func (s *Service) detail(e provider.Entry, trashed bool) *NoteDetail {
	n := e.Note
	return &NoteDetail{
		Provider:  e.Provider.UID(),
		UID:       n.UID(),
		Title:     n.Title(),
		Content:   n.TextContent(),
		Raw:       n.RawContent(),
		Format:    models.FormatOf(n),
		Color:     colorOf(n),
		Features:  e.Features().Names(),
		Trashed:   trashed,
		ETag:      ETag(n),
		CreatedAt: unixPtr(n.CreationTime()),
		UpdatedAt: unixPtr(n.ModificationTime()),
	}
}

func listItem(e provider.Entry) NoteListItem {
	return NoteListItem{
		Provider:  e.Provider.UID(),
		UID:       e.Note.UID(),
		Title:     e.Note.Title(),
		Preview:   preview(e.Note),
		Color:     colorOf(e.Note),
		UpdatedAt: unixPtr(e.Note.ModificationTime()),
	}
}

// Providers lists the registered providers.
func (s *Service) Providers(_ context.Context) []ProviderInfo {
	def := s.mgr.DefaultProvider()
	var out []ProviderInfo
	for _, p := range s.mgr.Providers() {
		info := ProviderInfo{
			UID:      p.UID(),
			Name:     p.Name(),
			Icon:     p.Icon(),
			Domain:   p.Domain(),
			UserName: p.UserName(),
			Location: p.LocationName(),
			Features: p.Features().Names(),
			Default:  def != nil && def.UID() == p.UID(),
		}
		if c, ok := p.Color(); ok {
			info.Color = c.Hex()
		}
		out = append(out, info)
	}
	return out
}

// ListNotes returns the exposed notes or trash.
func (s *Service) ListNotes(_ context.Context, trashed bool) Page {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.page(trashed)
}

func (s *Service) page(trashed bool) Page {
	store, st := s.mgr.NotesStore(), s.mgr.NotesStatus()
	if trashed {
		store, st = s.mgr.TrashNotesStore(), s.mgr.TrashStatus()
	}
	entries := store.Items()
	items := make([]NoteListItem, 0, len(entries))
	for _, e := range entries {
		items = append(items, listItem(e))
	}
	return Page{Notes: items, State: st.State, Exposed: st.Exposed, Pending: st.Pending}
}

// LoadMore exposes the next batch and returns the resulting page.
func (s *Service) LoadMore(_ context.Context, trashed bool) Page {
	if trashed {
		s.mgr.LoadMoreTrashNotes()
	} else {
		s.mgr.LoadMoreNotes()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.page(trashed)
}

// GetNote returns one note.
func (s *Service) GetNote(_ context.Context, providerUID, uid string) (*NoteDetail, error) {
	e, trashed, err := s.mgr.Find(providerUID, uid)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.detail(e, trashed), nil
}

func setContent(n models.Note, title, content string, raw bool) {
	if raw {
		n.SetTitle(title)
		n.SetRawContent(content)
		return
	}
	n.SetContentFromBuffer(models.NewBuffer(title, content, nil))
}

func applyColor(e provider.Entry, hex string) error {
	if hex == "" {
		return nil
	}
	if !e.Features().Has(models.FeatureColor) {
		return fmt.Errorf("noteservice: color: %w", apperr.ErrNotSupported)
	}
	c, err := models.ParseRGBA(hex)
	if err != nil {
		return fmt.Errorf("noteservice: color %q: %w: %w", hex, ErrInvalid, err)
	}
	e.Note.SetColor(c)
	return nil
}

// CreateNote creates and saves a note in the given provider, or the
// default one when in.Provider is empty.
func (s *Service) CreateNote(ctx context.Context, in CreateInput) (*NoteDetail, error) {
	if strings.TrimSpace(in.Title) == "" {
		return nil, fmt.Errorf("noteservice: create: title is required: %w", ErrInvalid)
	}
	var (
		e   provider.Entry
		err error
	)
	if in.Provider == "" {
		e, err = s.mgr.NewNote()
	} else {
		e, err = s.mgr.NewNoteIn(in.Provider)
	}
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := applyColor(e, in.Color); err != nil {
		return nil, err
	}
	setContent(e.Note, in.Title, in.Content, in.Raw)
	if err := s.mgr.SaveItemSync(ctx, e.Note); err != nil {
		return nil, err
	}
	return s.detail(e, false), nil
}

// UpdateNote edits a note. A non-empty ifMatch must equal the current
// ETag or ErrConflict is returned.
func (s *Service) UpdateNote(ctx context.Context, providerUID, uid string, in UpdateInput, ifMatch string) (*NoteDetail, error) {
	e, trashed, err := s.mgr.Find(providerUID, uid)
	if err != nil {
		return nil, err
	}
	if trashed {
		return nil, fmt.Errorf("noteservice: update %s/%s: note is in the trash: %w", providerUID, uid, apperr.ErrConflict)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	n := e.Note
	if ifMatch != "" && ifMatch != ETag(n) {
		return nil, fmt.Errorf("noteservice: update %s/%s: %w", providerUID, uid, apperr.ErrConflict)
	}
	if in.Color != nil {
		if err := applyColor(e, *in.Color); err != nil {
			return nil, err
		}
	}
	title := n.Title()
	if in.Title != nil {
		title = *in.Title
	}
	switch {
	case in.Content != nil:
		setContent(n, title, *in.Content, in.Raw)
	case in.Title != nil:
		n.SetTitle(title)
	}
	if !n.Modified() {
		return s.detail(e, false), nil
	}
	if err := s.mgr.SaveItemSync(ctx, n); err != nil {
		return nil, err
	}
	return s.detail(e, false), nil
}

// TrashNote moves a note to its provider's trash.
func (s *Service) TrashNote(ctx context.Context, providerUID, uid string) error {
	e, trashed, err := s.mgr.Find(providerUID, uid)
	if err != nil {
		return err
	}
	if trashed {
		return fmt.Errorf("noteservice: trash %s/%s: already trashed: %w", providerUID, uid, apperr.ErrNotFound)
	}
	return s.mgr.TrashItemSync(ctx, e)
}

// RestoreNote moves a trashed note back.
func (s *Service) RestoreNote(ctx context.Context, providerUID, uid string) error {
	e, trashed, err := s.mgr.Find(providerUID, uid)
	if err != nil {
		return err
	}
	if !trashed {
		return fmt.Errorf("noteservice: restore %s/%s: not in trash: %w", providerUID, uid, apperr.ErrNotFound)
	}
	return s.mgr.RestoreItemSync(ctx, e)
}

// DeleteNote removes a note for good. With fromTrash set, only trashed
// notes are accepted.
func (s *Service) DeleteNote(ctx context.Context, providerUID, uid string, fromTrash bool) error {
	e, trashed, err := s.mgr.Find(providerUID, uid)
	if err != nil {
		return err
	}
	if fromTrash && !trashed {
		return fmt.Errorf("noteservice: delete %s/%s: not in trash: %w", providerUID, uid, apperr.ErrNotFound)
	}
	return s.mgr.DeleteItemSync(ctx, e)
}

// Search finds notes through the manager's searcher.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]NoteListItem, error) {
	entries, err := s.mgr.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]NoteListItem, 0, len(entries))
	for _, e := range entries {
		out = append(out, listItem(e))
	}
	return out, nil
}

// Tags lists the known tags.
func (s *Service) Tags(_ context.Context) []models.Tag {
	return s.tags.Tags()
}

// AddTag registers a tag and persists it when a saver is configured.
func (s *Service) AddTag(_ context.Context, name, color string) (models.Tag, error) {
	t := models.Tag{Name: name}
	if color != "" {
		c, err := models.ParseRGBA(color)
		if err != nil {
			return models.Tag{}, fmt.Errorf("noteservice: tag color %q: %w: %w", color, ErrInvalid, err)
		}
		t.Color, t.HasColor = c, true
	}
	t, err := s.tags.Add(t)
	if err != nil {
		return models.Tag{}, fmt.Errorf("noteservice: add tag: %w: %w", ErrInvalid, err)
	}
	if s.save != nil {
		if err := s.save.SaveTag(t); err != nil {
			return t, fmt.Errorf("noteservice: persist tag: %w", err)
		}
	}
	return t, nil
}

// ErrInvalid marks rejected input.
var ErrInvalid = errors.New("invalid input")
