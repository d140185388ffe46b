package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"vanishbin/internal/storage"
)

var _ storage.Store = (*Store)(nil)

// Store implements storage.Store using SQLite.
type Store struct {
	db *sql.DB
}

// Open initializes the SQLite database at path. Use ":memory:" for a
// throwaway database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection keeps ":memory:" databases shared and serialises
	// writers, so conditional updates never see SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := initialize(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func initialize(db *sql.DB) error {
	if _, err := db.Exec(`PRAGMA busy_timeout = 5000;`); err != nil {
		return fmt.Errorf("set busy timeout: %w", err)
	}
	schema := `
CREATE TABLE IF NOT EXISTS pastes (
    id TEXT PRIMARY KEY,
    content TEXT NOT NULL,
    ttl_seconds INTEGER,
    max_views INTEGER,
    created_at INTEGER NOT NULL,
    expires_at INTEGER,
    views INTEGER NOT NULL DEFAULT 0
);
`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Create inserts a new paste.
func (s *Store) Create(ctx context.Context, paste *storage.Paste) error {
	if paste == nil {
		return errors.New("paste is nil")
	}

	const q = `
INSERT INTO pastes (id, content, ttl_seconds, max_views, created_at, expires_at, views)
VALUES (?, ?, ?, ?, ?, ?, ?);
`
	_, err := s.db.ExecContext(ctx, q,
		paste.ID,
		paste.Content,
		nullablePositive(paste.TTLSeconds),
		nullablePositive(paste.MaxViews),
		storage.ToMillis(paste.CreatedAt),
		nullableMillis(paste.ExpiresAt),
		paste.Views,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrDuplicateID
		}
		return fmt.Errorf("save paste: %w", err)
	}
	return nil
}

// Get fetches a paste by id.
func (s *Store) Get(ctx context.Context, id string) (*storage.Paste, error) {
	const q = `
SELECT id, content, ttl_seconds, max_views, created_at, expires_at, views
FROM pastes WHERE id = ?;
`
	row := s.db.QueryRowContext(ctx, q, id)

	var (
		paste     storage.Paste
		ttl       sql.NullInt64
		maxViews  sql.NullInt64
		createdAt int64
		expiresAt sql.NullInt64
	)
	if err := row.Scan(&paste.ID, &paste.Content, &ttl, &maxViews, &createdAt, &expiresAt, &paste.Views); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("query paste: %w", err)
	}

	paste.CreatedAt = storage.FromMillis(createdAt)
	if ttl.Valid {
		paste.TTLSeconds = int(ttl.Int64)
	}
	if maxViews.Valid {
		paste.MaxViews = int(maxViews.Int64)
	}
	if expiresAt.Valid {
		paste.ExpiresAt = storage.FromMillis(expiresAt.Int64)
	}
	return &paste, nil
}

// UpdateDeadline overwrites the stored deadline.
func (s *Store) UpdateDeadline(ctx context.Context, id string, expiresAt time.Time) error {
	const q = `UPDATE pastes SET expires_at = ? WHERE id = ?;`
	res, err := s.db.ExecContext(ctx, q, nullableMillis(expiresAt), id)
	if err != nil {
		return fmt.Errorf("update deadline: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// IncrementViews adds one view unless the counter already reached maxViews.
func (s *Store) IncrementViews(ctx context.Context, id string, maxViews int) (int, error) {
	const q = `
UPDATE pastes SET views = views + 1
WHERE id = ? AND (? <= 0 OR views < ?)
RETURNING views;
`
	var views int
	err := s.db.QueryRowContext(ctx, q, id, maxViews, maxViews).Scan(&views)
	if err == nil {
		return views, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("increment views: %w", err)
	}

	// Nothing updated: either the paste is gone or the limit was hit.
	err = s.db.QueryRowContext(ctx, `SELECT views FROM pastes WHERE id = ?;`, id).Scan(&views)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, storage.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("query views: %w", err)
	}
	return views, storage.ErrViewLimitReached
}

// Ping verifies the database answers queries.
func (s *Store) Ping(ctx context.Context) error {
	var one int
	if err := s.db.QueryRowContext(ctx, `SELECT 1;`).Scan(&one); err != nil {
		return fmt.Errorf("ping sqlite: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func nullableMillis(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return storage.ToMillis(t)
}

func nullablePositive(n int) any {
	if n <= 0 {
		return nil
	}
	return n
}

func isUniqueViolation(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "PRIMARY KEY")
}
