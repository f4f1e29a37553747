package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SchemaSQL creates the preview table.
const SchemaSQL = `
CREATE TABLE IF NOT EXISTS previews (
    key          TEXT PRIMARY KEY,
    content      BLOB NOT NULL,
    content_type TEXT NOT NULL,
    created_at   TIMESTAMP NOT NULL
);
`

// Object is a stored preview document.
type Object struct {
	Key         string
	Content     []byte
	ContentType string
	CreatedAt   time.Time
}

// SQLiteStore keeps previews in a SQLite database. The agent serves them
// itself under BaseURL.
type SQLiteStore struct {
	db      *sql.DB
	baseURL string
	now     func() time.Time
}

// OpenSQLite opens dsn and applies the schema. ":memory:" keeps previews for
// the lifetime of the process.
func OpenSQLite(ctx context.Context, dsn, baseURL string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := NewSQLiteStore(db, baseURL)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func NewSQLiteStore(db *sql.DB, baseURL string) *SQLiteStore {
	return &SQLiteStore{db: db, baseURL: baseURL, now: time.Now}
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, SchemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Put(ctx context.Context, key string, content []byte) (string, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO previews (key, content, content_type, created_at) VALUES (?, ?, ?, ?)`,
		key, content, ContentType, s.now().UTC(),
	)
	if err != nil {
		return "", &UploadError{Key: key, Err: err}
	}
	return joinURL(s.baseURL, key), nil
}

func (s *SQLiteStore) Get(ctx context.Context, key string) (*Object, error) {
	obj := &Object{Key: key}
	err := s.db.QueryRowContext(ctx,
		`SELECT content, content_type, created_at FROM previews WHERE key = ?`, key,
	).Scan(&obj.Content, &obj.ContentType, &obj.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load preview %s: %w", key, err)
	}
	return obj, nil
}

// Keys lists stored keys starting with prefix, in key order.
func (s *SQLiteStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key FROM previews WHERE substr(key, 1, ?) = ? ORDER BY key`, len(prefix), prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list previews: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan preview key: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// PurgeBefore removes previews created before cutoff and reports how many were
// deleted.
func (s *SQLiteStore) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM previews WHERE created_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to purge previews: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
