// Package manager merges the notes of every provider into sorted,
// incrementally exposed collections and routes item operations to the
// owning provider.
package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/starford/quire/internal/apperr"
	"github.com/starford/quire/internal/models"
	"github.com/starford/quire/internal/observable"
	"github.com/starford/quire/internal/provider"
)

// ErrStopped is returned by operations issued after Stop.
var ErrStopped = errors.New("manager stopped")

// EventSink receives provider loads and item events. Methods are called
// from worker goroutines and must be safe for concurrent use.
type EventSink interface {
	ItemsLoaded(p provider.Provider, notes, trash []models.Note)
	ItemEvent(ev provider.Event, e provider.Entry)
}

// ItemRef names a note by provider and uid.
type ItemRef struct {
	Provider string
	UID      string
}

// Searcher finds notes in an index.
type Searcher interface {
	SearchItems(ctx context.Context, query string, limit int) ([]ItemRef, error)
}

// Manager owns the provider set and the notes/trash collections.
//
// Concurrency model: one loop goroutine owns the provider map, the owner
// table and both queues. Public methods post closures to it. Provider I/O
// runs on a bounded errgroup and posts its results back to the loop.
type Manager struct {
	logger          *slog.Logger
	workers         int
	defaultUID      string
	defaultColor    models.RGBA
	hasDefaultColor bool
	searcher        Searcher
	sinks           []EventSink

	ops     chan func()
	stopCh  chan struct{}
	stopped chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	group  errgroup.Group
	// queued counts dispatch calls still waiting for a worker slot.
	queued sync.WaitGroup

	lifeMu sync.RWMutex
	closed bool

	// Loop-owned state.
	started      bool
	providers    map[string]provider.Provider
	order        []string
	unsubs       []func()
	owners       map[models.Note]provider.Provider
	notes        *collection
	trash        *collection
	pendingLoads int
	loaded       chan struct{}
}

// New creates a Manager and starts its loop. Call Start to load providers
// and Stop to release it.
func New(opts ...Option) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		logger:    slog.Default(),
		workers:   4,
		ops:       make(chan func(), 64),
		stopCh:    make(chan struct{}),
		stopped:   make(chan struct{}),
		ctx:       ctx,
		cancel:    cancel,
		providers: make(map[string]provider.Provider),
		owners:    make(map[models.Note]provider.Provider),
		notes:     newCollection(),
		trash:     newCollection(),
		loaded:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.group.SetLimit(m.workers)
	go m.run()
	return m
}

func (m *Manager) run() {
	defer close(m.stopped)
	for {
		select {
		case <-m.stopCh:
			return
		case fn := <-m.ops:
			fn()
		}
	}
}

// post queues fn on the loop without waiting.
func (m *Manager) post(fn func()) {
	select {
	case m.ops <- fn:
	case <-m.stopped:
	}
}

// do runs fn on the loop and waits for it. It reports false after Stop.
func (m *Manager) do(fn func()) bool {
	done := make(chan struct{})
	select {
	case m.ops <- func() { fn(); close(done) }:
	case <-m.stopped:
		return false
	}
	select {
	case <-done:
		return true
	case <-m.stopped:
		return false
	}
}

// spawn runs fn on the worker pool with the manager's context.
func (m *Manager) spawn(fn func(ctx context.Context)) error {
	m.lifeMu.RLock()
	defer m.lifeMu.RUnlock()
	if m.closed {
		return ErrStopped
	}
	m.group.Go(func() error {
		fn(m.ctx)
		return nil
	})
	return nil
}

// dispatch is spawn for fire-and-forget work: the caller never waits for
// a free worker. Queued work still runs, with a cancelled context, when
// Stop arrives first.
func (m *Manager) dispatch(fn func(ctx context.Context)) error {
	m.lifeMu.RLock()
	defer m.lifeMu.RUnlock()
	if m.closed {
		return ErrStopped
	}
	m.queued.Add(1)
	go func() {
		defer m.queued.Done()
		m.group.Go(func() error {
			fn(m.ctx)
			return nil
		})
	}()
	return nil
}

// await runs fn on the worker pool and waits for its result. The context
// passed to fn is cancelled by either ctx or Stop.
func (m *Manager) await(ctx context.Context, fn func(ctx context.Context) error) error {
	done := make(chan error, 1)
	err := m.spawn(func(mctx context.Context) {
		wctx, cancel := context.WithCancel(ctx)
		defer cancel()
		stop := context.AfterFunc(mctx, cancel)
		defer stop()
		done <- fn(wctx)
	})
	if err != nil {
		return err
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AddProvider registers p. Providers added after Start are loaded right
// away and their items merge into the running collections.
func (m *Manager) AddProvider(p provider.Provider) error {
	var (
		dup     bool
		started bool
	)
	ok := m.do(func() {
		if _, dup = m.providers[p.UID()]; dup {
			return
		}
		m.providers[p.UID()] = p
		m.order = append(m.order, p.UID())
		m.unsubs = append(m.unsubs, p.Subscribe(func(ev provider.Event) { m.onProviderEvent(p, ev) }))
		started = m.started
	})
	if !ok {
		return ErrStopped
	}
	if dup {
		return fmt.Errorf("manager: provider %q: %w", p.UID(), apperr.ErrAlreadyExists)
	}
	if started {
		return m.spawn(func(ctx context.Context) { m.load(ctx, p, false) })
	}
	return nil
}

// Start loads every registered provider in the background. The first
// batch of each collection is exposed once all of them have finished.
func (m *Manager) Start() error {
	var ps []provider.Provider
	ok := m.do(func() {
		if m.started {
			return
		}
		m.started = true
		for _, uid := range m.order {
			ps = append(ps, m.providers[uid])
		}
		m.pendingLoads = len(ps)
		m.notes.state = StateLoading
		m.trash.state = StateLoading
		if len(ps) == 0 {
			m.finishInitialLoad()
		}
	})
	if !ok {
		return ErrStopped
	}
	for _, p := range ps {
		if err := m.spawn(func(ctx context.Context) { m.load(ctx, p, true) }); err != nil {
			return err
		}
	}
	return nil
}

// load connects (for two-phase providers) and loads p on a worker. A
// failure is logged and contributes zero items.
func (m *Manager) load(ctx context.Context, p provider.Provider, initial bool) {
	log := m.logger.With(slog.String("provider", p.UID()))
	var notes, trash []models.Note
	err := func() error {
		if c, ok := p.(provider.Connector); ok {
			if err := c.Connect(ctx); err != nil {
				return err
			}
		}
		var err error
		notes, trash, err = p.LoadItems(ctx)
		return err
	}()
	switch {
	case errors.Is(err, apperr.ErrNotSupported):
		log.Info("provider does not load items")
	case err != nil:
		log.Warn("provider load failed", slog.String("error", err.Error()))
		notes, trash = nil, nil
	default:
		for _, s := range m.sinks {
			s.ItemsLoaded(p, notes, trash)
		}
	}
	m.post(func() { m.loadDone(p, notes, trash, initial) })
}

// loadDone merges a provider's items. Runs on the loop.
func (m *Manager) loadDone(p provider.Provider, notes, trash []models.Note, initial bool) {
	for _, n := range notes {
		m.owners[n] = p
		m.notes.add(provider.Entry{Provider: p, Note: n})
	}
	for _, n := range trash {
		m.owners[n] = p
		m.trash.add(provider.Entry{Provider: p, Note: n})
	}
	m.logger.Debug("provider merged",
		slog.String("provider", p.UID()),
		slog.Int("notes", len(notes)),
		slog.Int("trash", len(trash)))
	if initial {
		m.pendingLoads--
		if m.pendingLoads == 0 {
			m.finishInitialLoad()
		}
	}
}

func (m *Manager) finishInitialLoad() {
	m.notes.loadMore()
	m.trash.loadMore()
	close(m.loaded)
}

// Loaded is closed once every provider registered before Start has loaded
// and the first batches are exposed.
func (m *Manager) Loaded() <-chan struct{} { return m.loaded }

// WaitLoaded blocks until Loaded is closed or ctx ends.
func (m *Manager) WaitLoaded(ctx context.Context) error {
	select {
	case <-m.loaded:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// onProviderEvent runs on the goroutine that performed the mutation.
func (m *Manager) onProviderEvent(p provider.Provider, ev provider.Event) {
	e := provider.Entry{Provider: p, Note: ev.Note}
	for _, s := range m.sinks {
		s.ItemEvent(ev, e)
	}
	m.post(func() { m.applyEvent(e, ev.Kind) })
}

// applyEvent keeps the collections in step with a provider. Runs on the loop.
func (m *Manager) applyEvent(e provider.Entry, kind provider.EventKind) {
	switch kind {
	case provider.EventItemAdded:
		m.owners[e.Note] = e.Provider
		if !m.notes.contains(e) {
			m.notes.add(e)
		}
	case provider.EventItemSaved:
		// The title may have changed; re-sort.
		if m.notes.remove(e) {
			m.notes.add(e)
		}
	case provider.EventItemTrashed:
		m.notes.remove(e)
		if !m.trash.contains(e) {
			m.trash.add(e)
		}
	case provider.EventItemRestored:
		m.trash.remove(e)
		if !m.notes.contains(e) {
			m.notes.add(e)
		}
	case provider.EventItemDeleted:
		m.notes.remove(e)
		m.trash.remove(e)
		delete(m.owners, e.Note)
	}
}

// Stop cancels in-flight loads, waits for workers and ends the loop.
func (m *Manager) Stop() {
	m.lifeMu.Lock()
	if m.closed {
		m.lifeMu.Unlock()
		return
	}
	m.closed = true
	m.lifeMu.Unlock()

	m.cancel()
	m.queued.Wait()
	_ = m.group.Wait()
	m.do(func() {
		for _, u := range m.unsubs {
			u()
		}
		m.unsubs = nil
	})
	close(m.stopCh)
	<-m.stopped
}

// NotesStore is the exposed, sorted list of notes.
func (m *Manager) NotesStore() *observable.List[provider.Entry] { return m.notes.store }

// TrashNotesStore is the exposed, sorted list of trashed notes.
func (m *Manager) TrashNotesStore() *observable.List[provider.Entry] { return m.trash.store }

// LoadMoreNotes exposes the next batch of notes and returns its size.
func (m *Manager) LoadMoreNotes() int {
	var n int
	m.do(func() { n = m.notes.loadMore() })
	return n
}

// LoadMoreTrashNotes exposes the next batch of trashed notes.
func (m *Manager) LoadMoreTrashNotes() int {
	var n int
	m.do(func() { n = m.trash.loadMore() })
	return n
}

// Status reports the state of a collection and how many entries wait in
// its queue.
type Status struct {
	State   State `json:"state"`
	Exposed int   `json:"exposed"`
	Pending int   `json:"pending"`
}

// NotesStatus describes the notes collection.
func (m *Manager) NotesStatus() Status {
	var s Status
	m.do(func() { s = status(m.notes) })
	return s
}

// TrashStatus describes the trash collection.
func (m *Manager) TrashStatus() Status {
	var s Status
	m.do(func() { s = status(m.trash) })
	return s
}

func status(c *collection) Status {
	return Status{State: c.state, Exposed: c.store.Len(), Pending: len(c.queue)}
}

// Providers returns the registered providers in registration order.
func (m *Manager) Providers() []provider.Provider {
	var out []provider.Provider
	m.do(func() {
		for _, uid := range m.order {
			out = append(out, m.providers[uid])
		}
	})
	return out
}

// Provider looks a provider up by uid.
func (m *Manager) Provider(uid string) (provider.Provider, bool) {
	var (
		p  provider.Provider
		ok bool
	)
	m.do(func() { p, ok = m.providers[uid] })
	return p, ok
}

// DefaultProvider resolves the configured provider, falling back to
// provider.LocalUID. It returns nil when neither is registered.
func (m *Manager) DefaultProvider() provider.Provider {
	var p provider.Provider
	m.do(func() { p = m.defaultProvider() })
	return p
}

func (m *Manager) defaultProvider() provider.Provider {
	if p, ok := m.providers[m.defaultUID]; ok {
		return p
	}
	return m.providers[provider.LocalUID]
}

// NewNote returns an unsaved note from the default provider, colored with
// the default color when the pair supports it.
func (m *Manager) NewNote() (provider.Entry, error) {
	var e provider.Entry
	m.do(func() {
		p := m.defaultProvider()
		if p == nil {
			return
		}
		e = provider.Entry{Provider: p, Note: p.NewNote()}
		if _, has := e.Note.Color(); !has && m.hasDefaultColor && e.Features().Has(models.FeatureColor) {
			e.Note.SetColor(m.defaultColor)
		}
		m.owners[e.Note] = p
	})
	if e.Provider == nil {
		return e, fmt.Errorf("manager: new note: no default provider: %w", apperr.ErrNotFound)
	}
	return e, nil
}

// NewNoteIn is NewNote for a specific provider.
func (m *Manager) NewNoteIn(uid string) (provider.Entry, error) {
	var e provider.Entry
	m.do(func() {
		p, ok := m.providers[uid]
		if !ok {
			return
		}
		e = provider.Entry{Provider: p, Note: p.NewNote()}
		if _, has := e.Note.Color(); !has && m.hasDefaultColor && e.Features().Has(models.FeatureColor) {
			e.Note.SetColor(m.defaultColor)
		}
		m.owners[e.Note] = p
	})
	if e.Provider == nil {
		return e, fmt.Errorf("manager: new note in %q: %w", uid, apperr.ErrNotFound)
	}
	return e, nil
}

// Owner returns the provider that owns n.
func (m *Manager) Owner(n models.Note) (provider.Provider, error) {
	var p provider.Provider
	if !m.do(func() { p = m.owners[n] }) {
		return nil, ErrStopped
	}
	if p == nil {
		return nil, fmt.Errorf("manager: %w", apperr.ErrNotOwned)
	}
	return p, nil
}

// SaveItem saves n through its owner in the background. Failures are
// logged; callers retry by saving again.
func (m *Manager) SaveItem(n models.Note) {
	p, err := m.Owner(n)
	if err != nil {
		m.logger.Warn("save skipped", slog.String("error", err.Error()))
		return
	}
	err = m.dispatch(func(ctx context.Context) {
		if err := p.SaveItem(ctx, n); err != nil {
			m.logger.Error("save failed",
				slog.String("provider", p.UID()),
				slog.String("uid", n.UID()),
				slog.String("error", err.Error()))
		}
	})
	if err != nil {
		m.logger.Warn("save skipped", slog.String("error", err.Error()))
	}
}

// SaveItemSync saves n and reports the result.
func (m *Manager) SaveItemSync(ctx context.Context, n models.Note) error {
	p, err := m.Owner(n)
	if err != nil {
		return err
	}
	return m.await(ctx, func(ctx context.Context) error { return p.SaveItem(ctx, n) })
}

// TrashItemSync moves one entry to its provider's trash.
func (m *Manager) TrashItemSync(ctx context.Context, e provider.Entry) error {
	return m.await(ctx, func(ctx context.Context) error { return e.Provider.TrashItem(ctx, e.Note) })
}

// RestoreItemSync moves one entry out of the trash.
func (m *Manager) RestoreItemSync(ctx context.Context, e provider.Entry) error {
	return m.await(ctx, func(ctx context.Context) error { return e.Provider.RestoreItem(ctx, e.Note) })
}

// DeleteItemSync removes one entry for good.
func (m *Manager) DeleteItemSync(ctx context.Context, e provider.Entry) error {
	return m.await(ctx, func(ctx context.Context) error { return e.Provider.DeleteItem(ctx, e.Note) })
}

// TrashItems trashes a selection in the background.
func (m *Manager) TrashItems(entries ...provider.Entry) {
	m.each("trash", entries, func(ctx context.Context, e provider.Entry) error {
		return e.Provider.TrashItem(ctx, e.Note)
	})
}

// RestoreItems restores a selection in the background.
func (m *Manager) RestoreItems(entries ...provider.Entry) {
	m.each("restore", entries, func(ctx context.Context, e provider.Entry) error {
		return e.Provider.RestoreItem(ctx, e.Note)
	})
}

// DeleteItems permanently deletes a selection in the background.
func (m *Manager) DeleteItems(entries ...provider.Entry) {
	m.each("delete", entries, func(ctx context.Context, e provider.Entry) error {
		return e.Provider.DeleteItem(ctx, e.Note)
	})
}

func (m *Manager) each(op string, entries []provider.Entry, fn func(context.Context, provider.Entry) error) {
	for _, e := range entries {
		err := m.dispatch(func(ctx context.Context) {
			err := fn(ctx, e)
			switch {
			case err == nil:
			case errors.Is(err, apperr.ErrNotSupported):
				m.logger.Info(op+" not supported", slog.String("provider", e.Provider.UID()))
			default:
				m.logger.Error(op+" failed",
					slog.String("provider", e.Provider.UID()),
					slog.String("uid", e.Note.UID()),
					slog.String("error", err.Error()))
			}
		})
		if err != nil {
			m.logger.Warn(op+" skipped", slog.String("error", err.Error()))
			return
		}
	}
}

// Find looks a saved note up by provider and uid. trashed reports which
// list holds it.
func (m *Manager) Find(providerUID, uid string) (e provider.Entry, trashed bool, err error) {
	p, ok := m.Provider(providerUID)
	if !ok {
		return e, false, fmt.Errorf("manager: provider %q: %w", providerUID, apperr.ErrNotFound)
	}
	byUID := func(n models.Note) bool { return n.UID() == uid }
	notes := p.Notes()
	if i := slices.IndexFunc(notes, byUID); i >= 0 {
		return provider.Entry{Provider: p, Note: notes[i]}, false, nil
	}
	trash := p.TrashNotes()
	if i := slices.IndexFunc(trash, byUID); i >= 0 {
		return provider.Entry{Provider: p, Note: trash[i]}, true, nil
	}
	return e, false, fmt.Errorf("manager: note %s/%s: %w", providerUID, uid, apperr.ErrNotFound)
}

// Filter returns the loaded notes matching needle, sorted.
func (m *Manager) Filter(needle string) []provider.Entry {
	var out []provider.Entry
	for _, p := range m.Providers() {
		for _, n := range p.Notes() {
			if needle == "" || n.Match(needle) {
				out = append(out, provider.Entry{Provider: p, Note: n})
			}
		}
	}
	slices.SortFunc(out, provider.Compare)
	return out
}

// Search queries the index when one is configured and falls back to
// Filter otherwise. Index hits for notes no longer loaded are dropped.
func (m *Manager) Search(ctx context.Context, query string, limit int) ([]provider.Entry, error) {
	if m.searcher == nil {
		out := m.Filter(query)
		if limit > 0 && len(out) > limit {
			out = out[:limit]
		}
		return out, nil
	}
	refs, err := m.searcher.SearchItems(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("manager: search: %w", err)
	}
	out := make([]provider.Entry, 0, len(refs))
	for _, r := range refs {
		e, trashed, err := m.Find(r.Provider, r.UID)
		if err != nil || trashed {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}
