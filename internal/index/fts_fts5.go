//go:build sqlite_fts5

package index

import (
	"database/sql"
	"fmt"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS items_fts USING fts5(
			provider UNINDEXED,
			uid UNINDEXED,
			title,
			body,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

func ftsUpsert(tx *sql.Tx, r ItemRow) error {
	if err := ftsDelete(tx, r.Provider, r.UID); err != nil {
		return err
	}
	_, err := tx.Exec(`INSERT INTO items_fts (provider, uid, title, body) VALUES (?, ?, ?, ?)`,
		r.Provider, r.UID, r.Title, r.Body)
	if err != nil {
		return fmt.Errorf("index: upsert fts: %w", err)
	}
	return nil
}

func ftsDelete(tx *sql.Tx, provider, uid string) error {
	if _, err := tx.Exec(`DELETE FROM items_fts WHERE provider = ? AND uid = ?`, provider, uid); err != nil {
		return fmt.Errorf("index: delete fts: %w", err)
	}
	return nil
}

// Search performs an FTS5 full-text search over items that are not in the
// trash and returns matching results with snippets.
func (db *DB) Search(query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.Query(`
		SELECT f.provider,
		       f.uid,
		       f.title,
		       snippet(items_fts, 3, '<b>', '</b>', '...', 64)
		FROM items_fts f
		JOIN items i ON i.provider = f.provider AND i.uid = f.uid
		WHERE items_fts MATCH ? AND i.trashed = 0
		ORDER BY rank
		LIMIT ?
	`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}
	defer rows.Close()

	var out []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.Provider, &r.UID, &r.Title, &r.Snippet); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
