// Package sqlite implements core.Store on an embedded SQLite database.
//
// The driver is the pure-Go ncruces/go-sqlite3, so the store works without cgo.
// Collections live in a single table keyed by the store key.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/aretw0/casesync/pkg/core"
)

const schema = `
CREATE TABLE IF NOT EXISTS collections (
	key        TEXT PRIMARY KEY,
	data       BLOB NOT NULL,
	updated_at TEXT NOT NULL
);`

// MemoryPath opens a throwaway in-memory database.
const MemoryPath = ":memory:"

// Store is a core.Store backed by SQLite.
type Store struct {
	conn *sql.DB
	path string
}

// Open opens the database at path, creating the file and schema if needed.
// Use MemoryPath for a throwaway database.
func Open(path string) (*Store, error) {
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer; also keeps ":memory:" on a single connection.
	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Store{conn: conn, path: path}, nil
}

// Load implements core.Store.
func (s *Store) Load(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := s.conn.QueryRowContext(ctx, `SELECT data FROM collections WHERE key = ?`, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", key, err)
	}
	return data, nil
}

// Save implements core.Store.
func (s *Store) Save(ctx context.Context, key string, data []byte) error {
	if key == "" {
		return fmt.Errorf("empty store key")
	}
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO collections (key, data, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		key, data, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

// Keys implements core.Store.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.conn.QueryContext(ctx, `SELECT key FROM collections ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

var _ core.Store = (*Store)(nil)
