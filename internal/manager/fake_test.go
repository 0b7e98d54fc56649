package manager

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/starford/quire/internal/apperr"
	"github.com/starford/quire/internal/models"
	"github.com/starford/quire/internal/provider"
)

// fakeProvider keeps notes in memory. LoadItems blocks until release is
// called so tests control arrival order.
type fakeProvider struct {
	*provider.Base

	gate    chan struct{}
	loadErr error

	mu    sync.Mutex
	notes []models.Note
	trash []models.Note
	subs  []func(provider.Event)
	seq   int
}

func newFake(uid string, features models.Features, titles ...string) *fakeProvider {
	f := &fakeProvider{
		Base: provider.NewBase(provider.Info{UID: uid, Name: uid, Features: features}, nil),
		gate: make(chan struct{}),
	}
	for i, title := range titles {
		n := models.NewPlainNote()
		n.SetTitle(title)
		n.SetUID(fmt.Sprintf("%s-%03d", uid, i))
		n.ClearModified()
		f.notes = append(f.notes, n)
	}
	return f
}

func (f *fakeProvider) release() { close(f.gate) }

func (f *fakeProvider) LoadItems(ctx context.Context) ([]models.Note, []models.Note, error) {
	select {
	case <-f.gate:
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}
	if f.loadErr != nil {
		return nil, nil, f.loadErr
	}
	return f.Notes(), f.TrashNotes(), nil
}

func (f *fakeProvider) Notes() []models.Note {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.notes)
}

func (f *fakeProvider) TrashNotes() []models.Note {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.trash)
}

func (f *fakeProvider) Subscribe(fn func(provider.Event)) func() {
	f.mu.Lock()
	f.subs = append(f.subs, fn)
	f.mu.Unlock()
	return func() {}
}

func (f *fakeProvider) emit(kind provider.EventKind, n models.Note) {
	f.mu.Lock()
	subs := slices.Clone(f.subs)
	f.mu.Unlock()
	for _, fn := range subs {
		fn(provider.Event{Kind: kind, Provider: f.UID(), Note: n})
	}
}

func (f *fakeProvider) SaveItem(_ context.Context, n models.Note) error {
	f.mu.Lock()
	created := n.IsNew()
	if created {
		f.seq++
		n.SetUID(fmt.Sprintf("%s-new-%d", f.UID(), f.seq))
		f.notes = append([]models.Note{n}, f.notes...)
	}
	n.ClearModified()
	f.mu.Unlock()
	if created {
		f.emit(provider.EventItemAdded, n)
	} else {
		f.emit(provider.EventItemSaved, n)
	}
	return nil
}

func (f *fakeProvider) TrashItem(_ context.Context, n models.Note) error {
	f.mu.Lock()
	i := slices.Index(f.notes, n)
	if i < 0 {
		f.mu.Unlock()
		return fmt.Errorf("fake: trash: %w", apperr.ErrNotFound)
	}
	f.notes = slices.Delete(f.notes, i, i+1)
	f.trash = append([]models.Note{n}, f.trash...)
	f.mu.Unlock()
	f.emit(provider.EventItemTrashed, n)
	return nil
}

func (f *fakeProvider) RestoreItem(_ context.Context, n models.Note) error {
	f.mu.Lock()
	i := slices.Index(f.trash, n)
	if i < 0 {
		f.mu.Unlock()
		return fmt.Errorf("fake: restore: %w", apperr.ErrNotFound)
	}
	f.trash = slices.Delete(f.trash, i, i+1)
	f.notes = append([]models.Note{n}, f.notes...)
	f.mu.Unlock()
	f.emit(provider.EventItemRestored, n)
	return nil
}

// eventually polls cond until it holds or a second passes.
func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func waitLoaded(t *testing.T, m *Manager) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := m.WaitLoaded(ctx); err != nil {
		t.Fatalf("WaitLoaded: %v", err)
	}
}

func titles(entries []provider.Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Note.Title()
	}
	return out
}

func sortedEntries(entries []provider.Entry) bool {
	return slices.IsSortedFunc(entries, provider.Compare)
}
