package index

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/starford/quire/internal/apperr"
	"github.com/starford/quire/internal/models"
)

// ItemRow represents a row in the items table.
type ItemRow struct {
	Provider  string
	UID       string
	Title     string
	Body      string
	Format    string
	Trashed   bool
	Checksum  string
	UpdatedAt time.Time
}

// SearchResult represents one search hit.
type SearchResult struct {
	Provider string
	UID      string
	Title    string
	Snippet  string
}

// UpsertItem inserts or replaces an item and its FTS entry within a transaction.
func (db *DB) UpsertItem(r ItemRow) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = time.Now().UTC()
	}
	_, err = tx.Exec(`
		INSERT INTO items (provider, uid, title, body, format, trashed, checksum, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(provider, uid) DO UPDATE SET
			title      = excluded.title,
			body       = excluded.body,
			format     = excluded.format,
			trashed    = excluded.trashed,
			checksum   = excluded.checksum,
			updated_at = excluded.updated_at
	`, r.Provider, r.UID, r.Title, r.Body, r.Format, r.Trashed, r.Checksum, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("index: upsert item: %w", err)
	}

	// FTS upsert (no-op when FTS5 tag is absent).
	if err := ftsUpsert(tx, r); err != nil {
		return err
	}
	return tx.Commit()
}

// DeleteItem removes an item and its FTS entry. Deleting a missing item is
// not an error.
func (db *DB) DeleteItem(provider, uid string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := ftsDelete(tx, provider, uid); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM items WHERE provider = ? AND uid = ?`, provider, uid); err != nil {
		return fmt.Errorf("index: delete item: %w", err)
	}
	return tx.Commit()
}

// GetChecksum returns the stored checksum for an item, or empty string if not found.
func (db *DB) GetChecksum(provider, uid string) (string, error) {
	var cs string
	err := db.conn.QueryRow(`SELECT checksum FROM items WHERE provider = ? AND uid = ?`, provider, uid).Scan(&cs)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("index: get checksum: %w", err)
	}
	return cs, nil
}

const itemColumns = `provider, uid, title, body, format, trashed, checksum, updated_at`

func scanItem(s interface{ Scan(...any) error }) (ItemRow, error) {
	var r ItemRow
	err := s.Scan(&r.Provider, &r.UID, &r.Title, &r.Body, &r.Format, &r.Trashed, &r.Checksum, &r.UpdatedAt)
	return r, err
}

// GetItem returns one indexed item.
func (db *DB) GetItem(provider, uid string) (*ItemRow, error) {
	r, err := scanItem(db.conn.QueryRow(`SELECT `+itemColumns+` FROM items WHERE provider = ? AND uid = ?`, provider, uid))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("index: get item %s/%s: %w", provider, uid, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("index: get item: %w", err)
	}
	return &r, nil
}

// ListItems returns a page of items ordered by title, plus the total count.
// An empty provider lists every provider.
func (db *DB) ListItems(provider string, trashed bool, limit, offset int) ([]ItemRow, int, error) {
	if limit <= 0 {
		limit = 50
	}
	where := `WHERE trashed = ? AND (? = '' OR provider = ?)`
	args := []any{trashed, provider, provider}

	var total int
	if err := db.conn.QueryRow(`SELECT COUNT(*) FROM items `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("index: count items: %w", err)
	}

	rows, err := db.conn.Query(`SELECT `+itemColumns+` FROM items `+where+
		` ORDER BY title COLLATE NOCASE, provider, uid LIMIT ? OFFSET ?`, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("index: list items: %w", err)
	}
	defer rows.Close()

	var out []ItemRow
	for rows.Next() {
		r, err := scanItem(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, r)
	}
	return out, total, rows.Err()
}

// Checksums returns uid → checksum for every item of a provider.
func (db *DB) Checksums(provider string) (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT uid, checksum FROM items WHERE provider = ?`, provider)
	if err != nil {
		return nil, fmt.Errorf("index: checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var uid, cs string
		if err := rows.Scan(&uid, &cs); err != nil {
			return nil, err
		}
		out[uid] = cs
	}
	return out, rows.Err()
}

// SaveTag stores a tag, keeping the position of an existing one.
func (db *DB) SaveTag(t models.Tag) error {
	color := ""
	if t.HasColor {
		color = t.Color.Hex()
	}
	_, err := db.conn.Exec(`
		INSERT INTO tags (name, color, position)
		VALUES (?, ?, (SELECT COALESCE(MAX(position), -1) + 1 FROM tags))
		ON CONFLICT(name) DO UPDATE SET color = excluded.color
	`, t.Name, color)
	if err != nil {
		return fmt.Errorf("index: save tag: %w", err)
	}
	return nil
}

// LoadTags returns the stored tags in insertion order. Unparseable colors
// are dropped, the tag is kept.
func (db *DB) LoadTags() ([]models.Tag, error) {
	rows, err := db.conn.Query(`SELECT name, color FROM tags ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("index: load tags: %w", err)
	}
	defer rows.Close()

	var out []models.Tag
	for rows.Next() {
		var name, color string
		if err := rows.Scan(&name, &color); err != nil {
			return nil, err
		}
		t := models.Tag{Name: name}
		if color != "" {
			if c, err := models.ParseRGBA(color); err == nil {
				t.Color, t.HasColor = c, true
			}
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
