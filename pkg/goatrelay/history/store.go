// Package history persists a record of delivered downloads in SQLite.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Download is one delivered media file.
type Download struct {
	ID          int64
	Title       string
	SourceURL   string
	Quality     string
	SizeBytes   int64
	RequestedBy string
	Channel     string
	CreatedAt   time.Time
}

// Store records downloads in a local SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (and if needed creates) the history database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_foreign_keys=1&_journal_mode=WAL", path))
	if err != nil {
		return nil, fmt.Errorf("opening history db: %w", err)
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS downloads (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			title        TEXT NOT NULL,
			source_url   TEXT NOT NULL,
			quality      TEXT NOT NULL,
			size_bytes   INTEGER NOT NULL,
			requested_by TEXT NOT NULL,
			channel      TEXT NOT NULL,
			created_at   TEXT NOT NULL
		)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating history db: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Record inserts one delivered download.
func (s *Store) Record(ctx context.Context, d Download) error {
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO downloads (title, source_url, quality, size_bytes, requested_by, channel, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		d.Title, d.SourceURL, d.Quality, d.SizeBytes, d.RequestedBy, d.Channel,
		d.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("recording download: %w", err)
	}
	return nil
}

// Recent returns the most recent downloads, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Download, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, source_url, quality, size_bytes, requested_by, channel, created_at
		FROM downloads ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing downloads: %w", err)
	}
	defer rows.Close()

	var out []Download
	for rows.Next() {
		var d Download
		var createdAt string
		if err := rows.Scan(&d.ID, &d.Title, &d.SourceURL, &d.Quality,
			&d.SizeBytes, &d.RequestedBy, &d.Channel, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning download: %w", err)
		}
		d.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		out = append(out, d)
	}
	return out, rows.Err()
}
