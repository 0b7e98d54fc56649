// Package testutil provides shared test helpers for setting up note
// directories, databases and a running manager.
package testutil

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/starford/quire/internal/index"
	"github.com/starford/quire/internal/manager"
	"github.com/starford/quire/internal/provider"
)

// TestDB creates a temporary SQLite database that is automatically cleaned up.
func TestDB(t *testing.T) *index.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "quire-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := index.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// Logger discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const tomboyTemplate = `<?xml version="1.0" encoding="utf-8"?>
<note version="0.3" xmlns="http://beatniksoftware.com/tomboy">
  <title>%s</title>
  <text xml:space="preserve"><note-content version="0.1">%s
%s</note-content></text>
</note>`

// TomboyNote renders a minimal Tomboy document.
func TomboyNote(title, body string) string {
	return fmt.Sprintf(tomboyTemplate, title, title, body)
}

// WriteFiles writes name → content below dir, creating parents.
func WriteFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, body := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

// Env is a started manager over a local provider in a temp directory.
type Env struct {
	Root    string
	Local   *provider.Local
	Manager *manager.Manager
	// DB and Indexer are nil unless requested.
	DB      *index.DB
	Indexer *index.Indexer
}

// NewEnv writes files into a fresh notes directory, starts a manager with
// the local provider and waits for the initial load. withIndex wires a
// SQLite indexer as searcher and event sink.
func NewEnv(t *testing.T, files map[string]string, withIndex bool) *Env {
	t.Helper()
	env := &Env{Root: t.TempDir()}
	WriteFiles(t, env.Root, files)

	logger := Logger()
	local, err := provider.NewLocal(provider.LocalOptions{Root: env.Root, Logger: logger})
	if err != nil {
		t.Fatal(err)
	}
	env.Local = local

	opts := []manager.Option{manager.WithLogger(logger)}
	if withIndex {
		env.DB = TestDB(t)
		env.Indexer = index.NewIndexer(env.DB, logger)
		opts = append(opts, manager.WithSearcher(env.Indexer), manager.WithEventSink(env.Indexer))
	}
	env.Manager = manager.New(opts...)
	t.Cleanup(env.Manager.Stop)

	if err := env.Manager.AddProvider(local); err != nil {
		t.Fatal(err)
	}
	if err := env.Manager.Start(); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := env.Manager.WaitLoaded(ctx); err != nil {
		t.Fatal(err)
	}
	return env
}

// Eventually polls fn until it returns true or three seconds pass.
func Eventually(t *testing.T, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(msg)
}
