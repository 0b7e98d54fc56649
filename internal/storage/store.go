// Package storage holds the byte-level backends note providers write to: a
// local directory and a WebDAV collection.
package storage

import (
	"context"
	"time"
)

// FileInfo describes one stored file.
type FileInfo struct {
	// Path is relative to the store root and uses forward slashes.
	Path    string
	Size    int64
	ModTime time.Time
}

// Store is the interface for backend file operations. All paths are
// relative to the store root. Missing files yield errors wrapping
// apperr.ErrNotFound; every other backend failure wraps apperr.ErrIO.
type Store interface {
	// List returns the regular files directly inside dir.
	List(ctx context.Context, dir string) ([]FileInfo, error)
	// Read returns the raw bytes of the file at path.
	Read(ctx context.Context, path string) ([]byte, error)
	// Write replaces the content of path, creating parent directories.
	Write(ctx context.Context, path string, content []byte) error
	// Delete removes the file at path.
	Delete(ctx context.Context, path string) error
	// Move renames oldPath to newPath, creating parent directories.
	Move(ctx context.Context, oldPath, newPath string) error
	// MkdirAll ensures dir exists.
	MkdirAll(ctx context.Context, dir string) error
}
