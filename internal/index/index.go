package index

import "github.com/starford/quire/internal/models"

// ItemIndex is the storage the Indexer and the watcher write through.
// Consumers depend on it rather than on *DB so tests can swap it.
type ItemIndex interface {
	UpsertItem(row ItemRow) error
	DeleteItem(provider, uid string) error
	GetChecksum(provider, uid string) (string, error)
	GetItem(provider, uid string) (*ItemRow, error)
	ListItems(provider string, trashed bool, limit, offset int) ([]ItemRow, int, error)
	Checksums(provider string) (map[string]string, error)
	Search(query string, limit int) ([]SearchResult, error)
	SaveTag(t models.Tag) error
	LoadTags() ([]models.Tag, error)
	Close() error
}

// Verify *DB satisfies ItemIndex at compile time.
var _ ItemIndex = (*DB)(nil)
