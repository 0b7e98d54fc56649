package index

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/starford/quire/internal/models"
	"github.com/starford/quire/internal/provider"
	"github.com/starford/quire/internal/storage"
)

// watcherTestEnv sets up a notes dir with a trash dir, storage, and DB.
func watcherTestEnv(t *testing.T) (string, storage.Store, *DB) {
	t.Helper()
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, provider.TrashDir), 0o755); err != nil {
		t.Fatal(err)
	}
	store, err := storage.NewFS(root)
	if err != nil {
		t.Fatal(err)
	}
	return root, store, testDB(t)
}

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) record(kind, providerUID, uid string) {
	r.mu.Lock()
	r.events = append(r.events, kind+":"+providerUID+"/"+uid)
	r.mu.Unlock()
}

func (r *recorder) has(e string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, got := range r.events {
		if got == e {
			return true
		}
	}
	return false
}

func startWatch(t *testing.T, root string, store storage.Store, db *DB, cb EventCallback) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	go Watch(ctx, db, WatchOptions{
		Root:     root,
		Store:    store,
		Provider: "local",
		Pattern:  "*.txt",
		Logger:   logger,
		OnChange: cb,
	})
	time.Sleep(100 * time.Millisecond)
}

func TestWatcher_NewFileIndexed(t *testing.T) {
	root, store, db := watcherTestEnv(t)
	rec := &recorder{}
	startWatch(t, root, store, db, rec.record)

	_ = os.WriteFile(filepath.Join(root, "new.txt"), []byte("New\nbody"), 0o644)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		row, err := db.GetItem("local", "new")
		return err == nil && row.Title == "New" && !row.Trashed
	}, "new file not indexed by watcher")

	eventually(t, 2*time.Second, 50*time.Millisecond, func() bool {
		return rec.has("created:local/new")
	}, "expected created:local/new callback")
}

func TestWatcher_IgnoresUnmatchedFiles(t *testing.T) {
	root, store, db := watcherTestEnv(t)
	startWatch(t, root, store, db, nil)

	_ = os.WriteFile(filepath.Join(root, "image.png"), []byte("png"), 0o644)
	_ = os.MkdirAll(filepath.Join(root, "sub"), 0o755)
	_ = os.WriteFile(filepath.Join(root, "sub", "deep.txt"), []byte("Deep"), 0o644)
	_ = os.WriteFile(filepath.Join(root, "marker.txt"), []byte("Marker"), 0o644)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		cs, _ := db.GetChecksum("local", "marker")
		return cs != ""
	}, "marker not indexed")
	got, _ := db.Checksums("local")
	if len(got) != 1 {
		t.Errorf("indexed = %v, want only marker", got)
	}
}

func TestWatcher_DeleteRemovesFromIndex(t *testing.T) {
	root, store, db := watcherTestEnv(t)
	_ = os.WriteFile(filepath.Join(root, "del.txt"), []byte("Delete Me"), 0o644)
	_ = NewIndexer(db, nil).Sync("local", []models.Note{plain("del", "Delete Me", "")}, nil)

	startWatch(t, root, store, db, nil)
	_ = os.Remove(filepath.Join(root, "del.txt"))

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		cs, _ := db.GetChecksum("local", "del")
		return cs == ""
	}, "deleted file still in index")
}

func TestWatcher_MoveToTrashReconciles(t *testing.T) {
	root, store, db := watcherTestEnv(t)
	_ = os.WriteFile(filepath.Join(root, "old.txt"), []byte("Old\nbody"), 0o644)

	startWatch(t, root, store, db, nil)
	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		// Touch to make sure the watcher indexes the pre-existing file.
		_ = os.WriteFile(filepath.Join(root, "old.txt"), []byte("Old\nbody"), 0o644)
		cs, _ := db.GetChecksum("local", "old")
		return cs != ""
	}, "precondition: file should be indexed")

	_ = os.Rename(filepath.Join(root, "old.txt"), filepath.Join(root, provider.TrashDir, "old.txt"))

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		row, err := db.GetItem("local", "old")
		return err == nil && row.Trashed
	}, "moved file should be indexed as trashed")
}
