// Package sqlite provides the embedded local cache.
//
// The cache is a single SQLite file in WAL mode holding a kv table:
//
//	kv(key TEXT PRIMARY KEY, value BLOB, updated_at TEXT)
//
// WAL lets a running daemon and a one-shot CLI command share the file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mschirtzinger/khata/internal/cache"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// Store is a cache.Store backed by SQLite.
type Store struct {
	conn *sql.DB
	path string
}

var _ cache.Store = (*Store)(nil)

// Open opens (creating if needed) the cache database at path.
//
// The caller must call Close when done.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping cache: %w", err)
	}

	conn.SetMaxOpenConns(4)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{conn: conn, path: path}

	if err := s.initSchema(context.Background()); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// connPragmas run on every new pool connection; busy_timeout and
// synchronous are per-connection settings.
var connPragmas = []string{
	"busy_timeout(5000)",
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
}

func dsn(path string) string {
	q := make([]string, len(connPragmas))
	for i, p := range connPragmas {
		q[i] = "_pragma=" + p
	}
	return "file:" + filepath.ToSlash(path) + "?" + strings.Join(q, "&")
}

func (s *Store) initSchema(ctx context.Context) error {
	_, err := s.conn.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS kv (
		key        TEXT PRIMARY KEY,
		value      BLOB NOT NULL,
		updated_at TEXT NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("failed to create cache schema: %w", err)
	}
	return nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Get implements cache.Store.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.conn.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, cache.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return value, nil
}

// Put implements cache.Store.
func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	_, err := s.conn.ExecContext(ctx, `
	INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

// Delete implements cache.Store.
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.conn.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// UpdatedAt returns when key was last written.
func (s *Store) UpdatedAt(ctx context.Context, key string) (time.Time, error) {
	var raw string
	err := s.conn.QueryRowContext(ctx, `SELECT updated_at FROM kv WHERE key = ?`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, cache.ErrNotFound
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read %s timestamp: %w", key, err)
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("corrupt timestamp for %s: %w", key, err)
	}
	return t, nil
}

// Stats describes the cache contents.
type Stats struct {
	Keys      int
	FileBytes int64
}

// Stats returns the number of stored keys and the database file size.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	if err := s.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM kv`).Scan(&st.Keys); err != nil {
		return st, fmt.Errorf("failed to count cache keys: %w", err)
	}
	if info, err := os.Stat(s.path); err == nil {
		st.FileBytes = info.Size()
	}
	return st, nil
}

// Close checkpoints the WAL and closes the database.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}

	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint cache WAL: %v\n", err)
	}
	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close cache: %w", err)
	}
	s.conn = nil
	return nil
}
