package index

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/starford/quire/internal/provider"
	"github.com/starford/quire/internal/storage"
)

// EventCallback is called after a watcher-driven index change.
// kind is one of "created", "updated", "deleted".
type EventCallback func(kind, providerUID, uid string)

// WatchOptions configures Watch.
type WatchOptions struct {
	// Root is the absolute directory the local provider stores notes in.
	Root string
	// Store reads files relative to Root.
	Store storage.Store
	// Provider is the uid rows are written under.
	Provider string
	// Pattern filters file names, as in the provider.
	Pattern string
	Logger  *slog.Logger
	// OnChange, if non-nil, runs after each successful index mutation.
	OnChange EventCallback
}

type watcher struct {
	idx  ItemIndex
	opts WatchOptions
	log  *slog.Logger
}

// Watch starts an fsnotify watcher on the notes root and its trash
// directory and keeps the index in step with edits made by other programs
// until ctx is cancelled.
//
// A trash directory created at runtime is added to the watch list. Rename
// events trigger a reconciliation pass that removes stale rows and indexes
// files the events missed.
func Watch(ctx context.Context, idx ItemIndex, opts WatchOptions) error {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Pattern == "" {
		opts.Pattern = "*"
	}
	wt := &watcher{idx: idx, opts: opts, log: opts.Logger.With(slog.String("component", "watcher"))}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(opts.Root); err != nil {
		return err
	}
	trashAbs := filepath.Join(opts.Root, provider.TrashDir)
	if err := w.Add(trashAbs); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	wt.log.Info("started", slog.String("root", opts.Root))

	// reconcileTimer is used to debounce rename reconciliation.
	var reconcileTimer *time.Timer
	var reconcileCh <-chan time.Time

	scheduleReconcile := func() {
		if reconcileTimer == nil {
			reconcileTimer = time.NewTimer(200 * time.Millisecond)
			reconcileCh = reconcileTimer.C
		} else {
			reconcileTimer.Reset(200 * time.Millisecond)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reconcileTimer != nil {
				reconcileTimer.Stop()
			}
			wt.log.Info("stopped")
			return nil

		case <-reconcileCh:
			wt.reconcile(ctx)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			if ev.Name == trashAbs && ev.Op&fsnotify.Create != 0 {
				if addErr := w.Add(trashAbs); addErr != nil {
					wt.log.Warn("add trash dir failed", slog.String("error", addErr.Error()))
				}
				scheduleReconcile()
				continue
			}

			rel, ok := wt.relPath(ev.Name)
			if !ok {
				continue
			}
			uid, trashed := locate(rel)

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				kind := "updated"
				if ev.Op&fsnotify.Create != 0 {
					kind = "created"
				}
				wt.indexFile(ctx, rel, uid, trashed, kind)

			case ev.Op&fsnotify.Remove != 0:
				wt.remove(uid)

			case ev.Op&fsnotify.Rename != 0:
				// fsnotify fires Rename on the old path only; the new
				// path arrives as a Create if it stays in a watched dir.
				wt.remove(uid)
				scheduleReconcile()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			wt.log.Error("watch error", slog.String("error", watchErr.Error()))
		}
	}
}

// relPath maps an absolute event path to a store path, keeping only files
// in the root or the trash directory whose names match the pattern.
func (wt *watcher) relPath(abs string) (string, bool) {
	rel, err := filepath.Rel(wt.opts.Root, abs)
	if err != nil {
		return "", false
	}
	rel = filepath.ToSlash(rel)
	dir := path.Dir(rel)
	if dir != "." && dir != provider.TrashDir {
		return "", false
	}
	if ok, _ := doublestar.Match(wt.opts.Pattern, path.Base(rel)); !ok {
		return "", false
	}
	return rel, true
}

// locate derives the item uid and trash flag from a store path.
func locate(rel string) (uid string, trashed bool) {
	name := path.Base(rel)
	return strings.TrimSuffix(name, path.Ext(name)), path.Dir(rel) == provider.TrashDir
}

func (wt *watcher) emit(kind, uid string) {
	if wt.opts.OnChange != nil {
		wt.opts.OnChange(kind, wt.opts.Provider, uid)
	}
}

func (wt *watcher) indexFile(ctx context.Context, rel, uid string, trashed bool, kind string) {
	data, err := wt.opts.Store.Read(ctx, rel)
	if err != nil {
		wt.log.Warn("read failed", slog.String("path", rel), slog.String("error", err.Error()))
		return
	}
	n, err := provider.ParseFile(rel, data)
	if err != nil {
		wt.log.Debug("malformed note", slog.String("path", rel), slog.String("error", err.Error()))
	}
	n.SetUID(uid)

	row := rowFor(wt.opts.Provider, n, trashed)
	cs, err := wt.idx.GetChecksum(row.Provider, row.UID)
	if err != nil {
		wt.log.Warn("checksum lookup failed", slog.String("path", rel), slog.String("error", err.Error()))
		return
	}
	if cs == row.Checksum {
		return
	}
	if err := wt.idx.UpsertItem(row); err != nil {
		wt.log.Warn("index failed", slog.String("path", rel), slog.String("error", err.Error()))
		return
	}
	wt.log.Debug("indexed", slog.String("path", rel), slog.String("op", kind))
	wt.emit(kind, uid)
}

func (wt *watcher) remove(uid string) {
	if err := wt.idx.DeleteItem(wt.opts.Provider, uid); err != nil {
		wt.log.Warn("delete failed", slog.String("uid", uid), slog.String("error", err.Error()))
		return
	}
	wt.log.Debug("deleted", slog.String("uid", uid))
	wt.emit("deleted", uid)
}

// reconcile lists the root and trash directories, drops rows without a
// file and indexes files whose rows are missing or stale.
func (wt *watcher) reconcile(ctx context.Context) {
	known, err := wt.idx.Checksums(wt.opts.Provider)
	if err != nil {
		wt.log.Warn("reconcile: checksums failed", slog.String("error", err.Error()))
		return
	}

	disk := make(map[string]struct{})
	for _, dir := range []string{"", provider.TrashDir} {
		infos, err := wt.opts.Store.List(ctx, dir)
		if err != nil {
			wt.log.Warn("reconcile: list failed", slog.String("dir", dir), slog.String("error", err.Error()))
			return
		}
		for _, fi := range infos {
			rel, ok := wt.relPath(filepath.Join(wt.opts.Root, filepath.FromSlash(fi.Path)))
			if !ok {
				continue
			}
			uid, trashed := locate(rel)
			disk[uid] = struct{}{}
			kind := "created"
			if _, ok := known[uid]; ok {
				kind = "updated"
			}
			wt.indexFile(ctx, rel, uid, trashed, kind)
		}
	}

	for uid := range known {
		if _, ok := disk[uid]; !ok {
			wt.remove(uid)
		}
	}
}
