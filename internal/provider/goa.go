package provider

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/starford/quire/internal/models"
	"github.com/starford/quire/internal/storage"
)

// GoaOptions configures an online-account provider backed by a WebDAV share.
type GoaOptions struct {
	// ID names the account; the provider uid is "goa:" + ID.
	ID       string
	Name     string
	Endpoint string
	Username string
	Password string
	// Root is the notes folder on the share. Default "Notes".
	Root string
	// Pattern filters loaded file names. Default "*.txt".
	Pattern string
	// Format of notes created by NewNote. Default FormatPlain.
	Format     Format
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Goa is a file provider on an online account's WebDAV share. It must
// Connect before LoadItems.
type Goa struct {
	files
	opts GoaOptions
}

var _ Connector = (*Goa)(nil)

// NewGoa performs no I/O.
func NewGoa(opts GoaOptions) (*Goa, error) {
	if opts.Root == "" {
		opts.Root = "Notes"
	}
	if opts.Pattern == "" {
		opts.Pattern = "*.txt"
	}
	if opts.Format == "" {
		opts.Format = FormatPlain
	}
	if opts.Name == "" {
		opts.Name = opts.ID
	}
	g := &Goa{opts: opts}
	info := Info{
		UID:          "goa:" + opts.ID,
		Name:         opts.Name,
		Icon:         "goa-panel-symbolic",
		Domain:       opts.Endpoint,
		UserName:     opts.Username,
		LocationName: opts.Root,
		Features:     models.FeatureTrash | models.FeatureModificationDate,
	}
	if err := g.files.init(info, opts.Logger, opts.Pattern, opts.Format); err != nil {
		return nil, err
	}
	return g, nil
}

// Connect builds the client, makes sure the notes folder and its trash
// exist, then publishes the store. The first failing step ends the pipeline.
func (g *Goa) Connect(ctx context.Context) error {
	steps := []struct {
		name string
		run  func(context.Context, *storage.DAV) error
	}{
		{"stat root", func(ctx context.Context, d *storage.DAV) error {
			ok, err := d.Stat(ctx, "")
			if err != nil || ok {
				return err
			}
			return d.MkdirAll(ctx, "")
		}},
		{"ensure trash", func(ctx context.Context, d *storage.DAV) error {
			return d.MkdirAll(ctx, TrashDir)
		}},
	}

	d, err := storage.NewDAV(storage.DAVOptions{
		Endpoint:   g.opts.Endpoint,
		Username:   g.opts.Username,
		Password:   g.opts.Password,
		Root:       g.opts.Root,
		HTTPClient: g.opts.HTTPClient,
	})
	if err != nil {
		return fmt.Errorf("provider: %s: connect: %w", g.info.UID, err)
	}
	for _, s := range steps {
		if err := s.run(ctx, d); err != nil {
			return fmt.Errorf("provider: %s: connect: %s: %w", g.info.UID, s.name, err)
		}
	}
	g.setStore(d)
	g.logger.Info("connected", slog.String("endpoint", g.opts.Endpoint))
	return nil
}
