package index

import (
	"context"
	"log/slog"
	"time"

	"github.com/starford/quire/internal/checksum"
	"github.com/starford/quire/internal/manager"
	"github.com/starford/quire/internal/models"
	"github.com/starford/quire/internal/provider"
)

// Indexer mirrors manager traffic into an ItemIndex and answers searches
// from it.
type Indexer struct {
	idx    ItemIndex
	logger *slog.Logger
}

var (
	_ manager.EventSink = (*Indexer)(nil)
	_ manager.Searcher  = (*Indexer)(nil)
)

// NewIndexer returns an Indexer writing to idx.
func NewIndexer(idx ItemIndex, logger *slog.Logger) *Indexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{idx: idx, logger: logger.With(slog.String("component", "index"))}
}

// rowFor projects n into an index row. The checksum covers the serialized
// record and the trash flag, so moving a note in or out of the trash
// counts as a change.
func rowFor(providerUID string, n models.Note, trashed bool) ItemRow {
	flag := []byte{'0'}
	if trashed {
		flag[0] = '1'
	}
	updated := time.Now().UTC()
	if mt := n.ModificationTime(); mt > 0 {
		updated = time.Unix(mt, 0).UTC()
	}
	return ItemRow{
		Provider:  providerUID,
		UID:       n.UID(),
		Title:     n.Title(),
		Body:      n.TextContent(),
		Format:    models.FormatOf(n),
		Trashed:   trashed,
		Checksum:  checksum.Sum(n.Serialize(), flag),
		UpdatedAt: updated,
	}
}

// index upserts n unless the stored checksum already matches. It reports
// whether a write happened.
func (x *Indexer) index(providerUID string, n models.Note, trashed bool) (bool, error) {
	row := rowFor(providerUID, n, trashed)
	cs, err := x.idx.GetChecksum(row.Provider, row.UID)
	if err != nil {
		return false, err
	}
	if cs == row.Checksum {
		return false, nil
	}
	return true, x.idx.UpsertItem(row)
}

// Sync brings one provider's rows up to date:
//   - new/changed notes are upserted
//   - rows for notes the provider no longer has are deleted
func (x *Indexer) Sync(providerUID string, notes, trash []models.Note) error {
	known, err := x.idx.Checksums(providerUID)
	if err != nil {
		return err
	}

	seen := make(map[string]struct{}, len(notes)+len(trash))
	upsert := func(list []models.Note, trashed bool) {
		for _, n := range list {
			if n.UID() == "" {
				continue
			}
			seen[n.UID()] = struct{}{}
			row := rowFor(providerUID, n, trashed)
			if known[row.UID] == row.Checksum {
				continue
			}
			if err := x.idx.UpsertItem(row); err != nil {
				x.logger.Warn("sync: index failed", slog.String("provider", providerUID),
					slog.String("uid", row.UID), slog.String("error", err.Error()))
			}
		}
	}
	upsert(notes, false)
	upsert(trash, true)

	// Remove stale entries.
	for uid := range known {
		if _, ok := seen[uid]; ok {
			continue
		}
		if err := x.idx.DeleteItem(providerUID, uid); err != nil {
			x.logger.Warn("sync: delete failed", slog.String("provider", providerUID),
				slog.String("uid", uid), slog.String("error", err.Error()))
		} else {
			x.logger.Debug("sync: removed stale", slog.String("provider", providerUID), slog.String("uid", uid))
		}
	}
	return nil
}

// ItemsLoaded implements manager.EventSink.
func (x *Indexer) ItemsLoaded(p provider.Provider, notes, trash []models.Note) {
	if err := x.Sync(p.UID(), notes, trash); err != nil {
		x.logger.Warn("sync failed", slog.String("provider", p.UID()), slog.String("error", err.Error()))
	}
}

// ItemEvent implements manager.EventSink.
func (x *Indexer) ItemEvent(ev provider.Event, e provider.Entry) {
	uid := e.Note.UID()
	if uid == "" {
		return
	}
	var err error
	switch ev.Kind {
	case provider.EventItemDeleted:
		err = x.idx.DeleteItem(ev.Provider, uid)
	case provider.EventItemTrashed:
		_, err = x.index(ev.Provider, e.Note, true)
	default:
		_, err = x.index(ev.Provider, e.Note, false)
	}
	if err != nil {
		x.logger.Warn("event not indexed", slog.String("event", string(ev.Kind)),
			slog.String("provider", ev.Provider), slog.String("uid", uid), slog.String("error", err.Error()))
	}
}

// SearchItems implements manager.Searcher.
func (x *Indexer) SearchItems(ctx context.Context, query string, limit int) ([]manager.ItemRef, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	hits, err := x.idx.Search(query, limit)
	if err != nil {
		return nil, err
	}
	out := make([]manager.ItemRef, 0, len(hits))
	for _, h := range hits {
		out = append(out, manager.ItemRef{Provider: h.Provider, UID: h.UID})
	}
	return out, nil
}

// Index returns the underlying ItemIndex.
func (x *Indexer) Index() ItemIndex { return x.idx }
