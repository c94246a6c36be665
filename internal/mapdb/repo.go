package mapdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/starford/tera/internal/apperr"
	"github.com/starford/tera/internal/checksum"
	"github.com/starford/tera/internal/models"
	"github.com/starford/tera/internal/storage"
)

var _ storage.Gateway = (*DB)(nil)

// Put inserts or replaces a document.
func (db *DB) Put(ctx context.Context, doc *models.MapDocument) (string, error) {
	body, err := storage.Encode(doc)
	if err != nil {
		return "", err
	}
	sum := checksum.Sum(body)
	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO maps (id, title, body, checksum, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title      = excluded.title,
			body       = excluded.body,
			checksum   = excluded.checksum,
			updated_at = excluded.updated_at
	`, doc.ID, doc.Title, string(body), sum, doc.UpdatedAt)
	if err != nil {
		return "", fmt.Errorf("mapdb: upsert map: %w", err)
	}
	return sum, nil
}

// Get returns the document with id.
func (db *DB) Get(ctx context.Context, id string) (*storage.Record, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT body FROM maps WHERE id = ?`, id)
	return scanRecord(row, id)
}

// First returns the document with the smallest id.
func (db *DB) First(ctx context.Context) (*storage.Record, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT body FROM maps ORDER BY id LIMIT 1`)
	return scanRecord(row, "")
}

// Revision returns the stored revision of id without decoding the body.
func (db *DB) Revision(ctx context.Context, id string) (string, error) {
	var sum string
	err := db.conn.QueryRowContext(ctx, `SELECT checksum FROM maps WHERE id = ?`, id).Scan(&sum)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("mapdb: map %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("mapdb: get checksum: %w", err)
	}
	return sum, nil
}

func scanRecord(row *sql.Row, id string) (*storage.Record, error) {
	var body string
	err := row.Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		if id == "" {
			return nil, fmt.Errorf("mapdb: empty store: %w", apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("mapdb: map %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("mapdb: read map: %w", err)
	}
	rec, err := storage.Decode([]byte(body))
	if err != nil {
		return nil, fmt.Errorf("mapdb: %w", err)
	}
	return rec, nil
}
