package provider

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/adrg/xdg"

	"github.com/starford/quire/internal/models"
	"github.com/starford/quire/internal/storage"
)

// LocalUID is the uid of the local provider and the default-provider
// fallback.
const LocalUID = "local"

// LocalOptions configures NewLocal.
type LocalOptions struct {
	// Root is the notes directory; empty means DefaultLocalRoot().
	Root string
	// Pattern filters which file names are loaded. Default "*.note".
	Pattern string
	// Format of notes created by NewNote. Default FormatXML.
	Format Format
	Logger *slog.Logger
}

// DefaultLocalRoot is $XDG_DATA_HOME/quire.
func DefaultLocalRoot() string {
	return filepath.Join(xdg.DataHome, "quire")
}

// Local keeps notes as files in a directory on this machine, with trashed
// notes in a .Trash subdirectory.
type Local struct {
	files
	fs *storage.FS
}

// NewLocal creates the notes directory when missing.
func NewLocal(opts LocalOptions) (*Local, error) {
	if opts.Root == "" {
		opts.Root = DefaultLocalRoot()
	}
	if opts.Pattern == "" {
		opts.Pattern = "*.note"
	}
	if opts.Format == "" {
		opts.Format = FormatXML
	}
	fs, err := storage.NewFS(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("provider: local: %w", err)
	}
	l := &Local{fs: fs}
	info := Info{
		UID:          LocalUID,
		Name:         "Local",
		Icon:         "user-home-symbolic",
		Domain:       "local",
		LocationName: fs.Root(),
		Features: models.FeatureColor | models.FeatureFormatting | models.FeatureTrash |
			models.FeatureCreationDate | models.FeatureModificationDate,
	}
	if err := l.files.init(info, opts.Logger, opts.Pattern, opts.Format); err != nil {
		return nil, err
	}
	l.store = fs
	return l, nil
}

// Root returns the absolute notes directory.
func (l *Local) Root() string { return l.fs.Root() }

// Store exposes the directory store, for readers such as the index watcher.
func (l *Local) Store() storage.Store { return l.fs }
