// Package store is the SQLite-backed content queue: items scheduled for
// publication, their media references, and their lifecycle status.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Item statuses
const (
	StatusPending   = "pending"
	StatusPublished = "published"
	StatusFailed    = "failed"
)

// ContentItem is one scheduled unit of work for the publishing loop.
type ContentItem struct {
	ID          int64
	ContentType string // post, story
	MediaType   string // photo, video, album
	Caption     string
	MediaPaths  string // comma-separated file paths
	LocationID  string
	PublishAt   time.Time
	Status      string
	Error       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Store wraps the content queue database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the content queue at dbPath.
func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// The publishing loop is single-threaded; one connection avoids
	// SQLite write contention entirely.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// initSchema creates the content table and indexes
func (s *Store) initSchema() error {
	schema := `
CREATE TABLE IF NOT EXISTS content (
    content_id   INTEGER PRIMARY KEY AUTOINCREMENT,
    content_type TEXT NOT NULL,
    media_type   TEXT NOT NULL,
    caption      TEXT,
    media_paths  TEXT,
    location_id  TEXT,
    publish_at   TIMESTAMP NOT NULL,
    status       TEXT NOT NULL DEFAULT 'pending',
    error        TEXT,
    created_at   TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at   TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_content_status_publish
    ON content(status, publish_at);
`
	_, err := s.db.Exec(schema)
	return err
}

// Enqueue inserts a new pending item and returns its id.
func (s *Store) Enqueue(ctx context.Context, item *ContentItem) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO content (content_type, media_type, caption, media_paths, location_id, publish_at, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		item.ContentType, item.MediaType, item.Caption, item.MediaPaths,
		item.LocationID, item.PublishAt.UTC(), StatusPending,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to enqueue content: %w", err)
	}
	return result.LastInsertId()
}

// GetPending returns pending items whose publish time has passed, oldest
// first.
func (s *Store) GetPending(ctx context.Context, now time.Time) ([]*ContentItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT content_id, content_type, media_type, caption, media_paths,
		       location_id, publish_at, status, COALESCE(error, ''),
		       created_at, updated_at
		FROM content
		WHERE status = ? AND publish_at <= ?
		ORDER BY publish_at ASC`,
		StatusPending, now.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending content: %w", err)
	}
	defer rows.Close()

	var items []*ContentItem
	for rows.Next() {
		var item ContentItem
		if err := rows.Scan(
			&item.ID, &item.ContentType, &item.MediaType, &item.Caption,
			&item.MediaPaths, &item.LocationID, &item.PublishAt,
			&item.Status, &item.Error, &item.CreatedAt, &item.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan content row: %w", err)
		}
		items = append(items, &item)
	}
	return items, rows.Err()
}

// Get returns one item by id.
func (s *Store) Get(ctx context.Context, id int64) (*ContentItem, error) {
	var item ContentItem
	err := s.db.QueryRowContext(ctx, `
		SELECT content_id, content_type, media_type, caption, media_paths,
		       location_id, publish_at, status, COALESCE(error, ''),
		       created_at, updated_at
		FROM content WHERE content_id = ?`, id,
	).Scan(
		&item.ID, &item.ContentType, &item.MediaType, &item.Caption,
		&item.MediaPaths, &item.LocationID, &item.PublishAt,
		&item.Status, &item.Error, &item.CreatedAt, &item.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("content %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load content %d: %w", id, err)
	}
	return &item, nil
}

// MarkPublished flips an item to published.
func (s *Store) MarkPublished(ctx context.Context, id int64) error {
	return s.setStatus(ctx, id, StatusPublished, "")
}

// MarkFailed flips an item to failed, recording the reason.
func (s *Store) MarkFailed(ctx context.Context, id int64, reason string) error {
	return s.setStatus(ctx, id, StatusFailed, reason)
}

func (s *Store) setStatus(ctx context.Context, id int64, status, reason string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE content SET status = ?, error = ?, updated_at = CURRENT_TIMESTAMP
		WHERE content_id = ?`,
		status, reason, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update content %d: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("content %d not found", id)
	}
	return nil
}

// CountByStatus returns the number of items per status.
func (s *Store) CountByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM content GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count content: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}
