package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/emersion/go-webdav"

	"github.com/starford/quire/internal/apperr"
)

// DAV implements Store on top of a WebDAV collection, the way online
// accounts expose their file share.
type DAV struct {
	client *webdav.Client
	root   string // collection path on the server, slash-terminated
}

var _ Store = (*DAV)(nil)

// DAVOptions configures NewDAV.
type DAVOptions struct {
	Endpoint   string
	Username   string
	Password   string
	Root       string // path below the endpoint, "" for the endpoint itself
	HTTPClient *http.Client
}

// NewDAV builds a client for the endpoint. It performs no I/O.
func NewDAV(opts DAVOptions) (*DAV, error) {
	var hc webdav.HTTPClient = http.DefaultClient
	if opts.HTTPClient != nil {
		hc = opts.HTTPClient
	}
	if opts.Username != "" {
		hc = webdav.HTTPClientWithBasicAuth(hc, opts.Username, opts.Password)
	}
	c, err := webdav.NewClient(StatusClient(hc), opts.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("storage: dav client: %w", err)
	}
	root := "/" + strings.Trim(opts.Root, "/")
	if root != "/" {
		root += "/"
	}
	return &DAV{client: c, root: root}, nil
}

func (d *DAV) abs(rel string) string {
	return path.Join(d.root, path.Clean("/"+rel))
}

func wrapDAVErr(err error, st *Status) error {
	if st.NotFound() {
		return fmt.Errorf("%w: %w", apperr.ErrNotFound, err)
	}
	return fmt.Errorf("%w: %w", apperr.ErrIO, err)
}

// Stat reports whether dir exists as a collection.
func (d *DAV) Stat(ctx context.Context, dir string) (bool, error) {
	ctx, st := TrackStatus(ctx)
	fi, err := d.client.Stat(ctx, d.abs(dir))
	if err != nil {
		if st.NotFound() {
			return false, nil
		}
		return false, fmt.Errorf("storage: stat %s: %w", dir, wrapDAVErr(err, st))
	}
	return fi.IsDir, nil
}

// List returns the files directly inside dir.
func (d *DAV) List(ctx context.Context, dir string) ([]FileInfo, error) {
	p := d.abs(dir)
	if !strings.HasSuffix(p, "/") {
		p += "/"
	}
	ctx, st := TrackStatus(ctx)
	infos, err := d.client.ReadDir(ctx, p, false)
	if err != nil {
		return nil, fmt.Errorf("storage: list %s: %w", dir, wrapDAVErr(err, st))
	}
	out := make([]FileInfo, 0, len(infos))
	for _, fi := range infos {
		if fi.IsDir {
			continue
		}
		out = append(out, FileInfo{
			Path:    joinRel(dir, path.Base(fi.Path)),
			Size:    fi.Size,
			ModTime: fi.ModTime,
		})
	}
	return out, nil
}

// Read downloads the file at p.
func (d *DAV) Read(ctx context.Context, p string) ([]byte, error) {
	ctx, st := TrackStatus(ctx)
	rc, err := d.client.Open(ctx, d.abs(p))
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", p, wrapDAVErr(err, st))
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", p, wrapDAVErr(err, st))
	}
	return data, nil
}

// Write uploads content with a single PUT. The server swaps the resource in
// on completion, so readers never see a partial file.
func (d *DAV) Write(ctx context.Context, p string, content []byte) error {
	if err := d.MkdirAll(ctx, path.Dir(p)); err != nil {
		return err
	}
	ctx, st := TrackStatus(ctx)
	wc, err := d.client.Create(ctx, d.abs(p))
	if err != nil {
		return fmt.Errorf("storage: write %s: %w", p, wrapDAVErr(err, st))
	}
	if _, err := wc.Write(content); err != nil {
		_ = wc.Close()
		return fmt.Errorf("storage: write %s: %w", p, wrapDAVErr(err, st))
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("storage: write %s: %w", p, wrapDAVErr(err, st))
	}
	return nil
}

// Delete removes the resource at p.
func (d *DAV) Delete(ctx context.Context, p string) error {
	ctx, st := TrackStatus(ctx)
	if err := d.client.RemoveAll(ctx, d.abs(p)); err != nil {
		return fmt.Errorf("storage: delete %s: %w", p, wrapDAVErr(err, st))
	}
	return nil
}

// Move renames oldPath to newPath on the server.
func (d *DAV) Move(ctx context.Context, oldPath, newPath string) error {
	if err := d.MkdirAll(ctx, path.Dir(newPath)); err != nil {
		return err
	}
	ctx, st := TrackStatus(ctx)
	if err := d.client.Move(ctx, d.abs(oldPath), d.abs(newPath), nil); err != nil {
		return fmt.Errorf("storage: move %s: %w", oldPath, wrapDAVErr(err, st))
	}
	return nil
}

// MkdirAll creates every missing collection from the endpoint down to dir,
// the store root included.
func (d *DAV) MkdirAll(ctx context.Context, dir string) error {
	full := strings.Trim(d.abs(dir), "/")
	if full == "" {
		return nil
	}
	cur := ""
	for _, part := range strings.Split(full, "/") {
		cur += "/" + part
		sctx, st := TrackStatus(ctx)
		fi, err := d.client.Stat(sctx, cur)
		if err == nil {
			if !fi.IsDir {
				return fmt.Errorf("storage: mkdir %s: %w: not a collection", cur, apperr.ErrIO)
			}
			continue
		}
		if !st.NotFound() {
			return fmt.Errorf("storage: mkdir %s: %w", cur, wrapDAVErr(err, st))
		}
		mctx, mst := TrackStatus(ctx)
		if err := d.client.Mkdir(mctx, cur); err != nil {
			return fmt.Errorf("storage: mkdir %s: %w", cur, wrapDAVErr(err, mst))
		}
	}
	return nil
}
