// Package apperr holds the sentinel errors shared by providers, the manager
// and the outer surfaces.
package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")

	// ErrNotSupported is returned by providers for operations they do not
	// implement. It is expected, not exceptional.
	ErrNotSupported = errors.New("not supported")
	// ErrIO marks backend read/write/mount failures.
	ErrIO = errors.New("backend i/o failure")
	// ErrParse marks malformed note documents. Parsers still return a
	// best-effort result alongside it.
	ErrParse = errors.New("malformed note document")

	ErrAlreadyLoaded = errors.New("provider already loaded")
	ErrNotConnected  = errors.New("provider not connected")
	ErrNotOwned      = errors.New("item not owned by any provider")
)
