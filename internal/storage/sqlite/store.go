// Package sqlite provides the SQLite-backed mirror of registry state:
// a discovery table of active streams, a category lookup and a history
// table written once a stream ends. The registry stays authoritative;
// this store only has to be close enough for fetch-once clients.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/soulstream/livecast/internal/domain"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS categories (
		id   INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS active_streams (
		id           TEXT PRIMARY KEY,
		owner        TEXT NOT NULL,
		title        TEXT NOT NULL,
		creator_conn TEXT NOT NULL,
		category_id  INTEGER NOT NULL REFERENCES categories(id),
		thumbnail    TEXT NOT NULL DEFAULT '',
		viewer_count INTEGER NOT NULL DEFAULT 1,
		created_at   INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS stream_history (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		stream_id     TEXT NOT NULL,
		owner         TEXT NOT NULL,
		title         TEXT NOT NULL,
		category_id   INTEGER NOT NULL,
		started_at    INTEGER NOT NULL,
		ended_at      INTEGER NOT NULL,
		total_views   INTEGER NOT NULL,
		message_count INTEGER NOT NULL
	)`,
}

// Store persists the stream mirror in SQLite.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens the mirror database and applies the schema.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	for _, stmt := range schema {
		if _, err := sqlDB.Exec(stmt); err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("apply schema: %w", err)
		}
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// EnsureCategory returns the id for a category name, creating the row on
// first use. Matching is by exact name.
func (s *Store) EnsureCategory(ctx context.Context, name string) (int64, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, errors.New("category name is required")
	}
	if _, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO categories (name) VALUES (?) ON CONFLICT(name) DO NOTHING`, name); err != nil {
		return 0, fmt.Errorf("insert category: %w", err)
	}
	var id int64
	if err := s.sqlDB.QueryRowContext(ctx,
		`SELECT id FROM categories WHERE name = ?`, name).Scan(&id); err != nil {
		return 0, fmt.Errorf("select category: %w", err)
	}
	return id, nil
}

// InsertActive mirrors a freshly registered stream.
func (s *Store) InsertActive(ctx context.Context, info domain.StreamInfo, creator domain.ConnID, categoryID int64) error {
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO active_streams (id, owner, title, creator_conn, category_id, thumbnail, viewer_count, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		string(info.ID), info.Owner, info.Title, string(creator), categoryID,
		info.Thumbnail, info.ViewerCount, toMillis(info.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert active stream: %w", err)
	}
	return nil
}

// SetViewerCount updates the mirrored viewer count.
func (s *Store) SetViewerCount(ctx context.Context, id domain.StreamID, count int) error {
	if _, err := s.sqlDB.ExecContext(ctx,
		`UPDATE active_streams SET viewer_count = ? WHERE id = ?`, count, string(id)); err != nil {
		return fmt.Errorf("update viewer count: %w", err)
	}
	return nil
}

// DeleteActive removes the mirror row of an ended stream.
func (s *Store) DeleteActive(ctx context.Context, id domain.StreamID) error {
	if _, err := s.sqlDB.ExecContext(ctx,
		`DELETE FROM active_streams WHERE id = ?`, string(id)); err != nil {
		return fmt.Errorf("delete active stream: %w", err)
	}
	return nil
}

// StreamRow is one row of the fetch-once discovery listing.
type StreamRow struct {
	ID          string    `json:"id"`
	Owner       string    `json:"owner"`
	Title       string    `json:"title"`
	CreatorConn string    `json:"creatorConn"`
	CreatedAt   time.Time `json:"createdAt"`
	ViewerCount int       `json:"viewerCount"`
	Thumbnail   string    `json:"thumbnail,omitempty"`
	Category    string    `json:"category"`
}

// ListActive returns the mirrored streams newest-first. No rows is an
// empty slice, not an error.
func (s *Store) ListActive(ctx context.Context) ([]StreamRow, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT a.id, a.owner, a.title, a.creator_conn, a.created_at, a.viewer_count, a.thumbnail, c.name
		 FROM active_streams a JOIN categories c ON c.id = a.category_id
		 ORDER BY a.created_at DESC, a.id`)
	if err != nil {
		return nil, fmt.Errorf("list active streams: %w", err)
	}
	defer rows.Close()
	out := make([]StreamRow, 0)
	for rows.Next() {
		var r StreamRow
		var createdAt int64
		if err := rows.Scan(&r.ID, &r.Owner, &r.Title, &r.CreatorConn, &createdAt, &r.ViewerCount, &r.Thumbnail, &r.Category); err != nil {
			return nil, fmt.Errorf("scan active stream: %w", err)
		}
		r.CreatedAt = fromMillis(createdAt)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate active streams: %w", err)
	}
	return out, nil
}

// HistoryRow is one closing summary from the analytics table.
type HistoryRow struct {
	StreamID     string    `json:"streamId"`
	Owner        string    `json:"owner"`
	Title        string    `json:"title"`
	StartedAt    time.Time `json:"startedAt"`
	EndedAt      time.Time `json:"endedAt"`
	TotalViews   int       `json:"totalViews"`
	MessageCount int       `json:"messageCount"`
}

// ListHistory returns the most recently ended streams, newest first.
func (s *Store) ListHistory(ctx context.Context, limit int) ([]HistoryRow, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT stream_id, owner, title, started_at, ended_at, total_views, message_count
		 FROM stream_history ORDER BY ended_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list stream history: %w", err)
	}
	defer rows.Close()
	out := make([]HistoryRow, 0)
	for rows.Next() {
		var r HistoryRow
		var startedAt, endedAt int64
		if err := rows.Scan(&r.StreamID, &r.Owner, &r.Title, &startedAt, &endedAt, &r.TotalViews, &r.MessageCount); err != nil {
			return nil, fmt.Errorf("scan stream history: %w", err)
		}
		r.StartedAt = fromMillis(startedAt)
		r.EndedAt = fromMillis(endedAt)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stream history: %w", err)
	}
	return out, nil
}

// InsertHistory records the closing summary of an ended stream.
func (s *Store) InsertHistory(ctx context.Context, stats domain.FinalStats) error {
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO stream_history (stream_id, owner, title, category_id, started_at, ended_at, total_views, message_count)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		string(stats.ID), stats.Owner, stats.Title, stats.CategoryID,
		toMillis(stats.StartedAt), toMillis(stats.EndedAt), stats.TotalViews, stats.MessageCount)
	if err != nil {
		return fmt.Errorf("insert stream history: %w", err)
	}
	return nil
}
