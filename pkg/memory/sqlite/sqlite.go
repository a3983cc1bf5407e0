// Package sqlite stores the memory record in a local SQLite database file.
//
// It is the default backend for the desktop companion: one file, no server,
// WAL journaling so a crash mid-write leaves the previous record intact.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/MrWong99/aura/pkg/memory"
)

var _ memory.KV = (*KV)(nil)

// KV is a [memory.KV] backed by a single SQLite table.
type KV struct {
	db    *sql.DB
	clock func() time.Time
}

// Open opens (creating if needed) the database at path and ensures the
// schema exists.
func Open(ctx context.Context, path string) (*KV, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite kv: create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite kv: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite kv: ping: %w", err)
	}

	kv := &KV{db: db, clock: time.Now}
	if err := kv.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite kv: schema: %w", err)
	}
	return kv, nil
}

func (k *KV) initSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS kv (
    key        TEXT PRIMARY KEY,
    value      BLOB NOT NULL,
    updated_at TIMESTAMP NOT NULL
);
`
	_, err := k.db.ExecContext(ctx, ddl)
	return err
}

// Get implements [memory.KV].
func (k *KV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := k.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("sqlite kv: get %q: %w", key, err)
	}
	return value, true, nil
}

// Put implements [memory.KV].
func (k *KV) Put(ctx context.Context, key string, value []byte) error {
	_, err := k.db.ExecContext(ctx, `
INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, k.clock().UTC())
	if err != nil {
		return fmt.Errorf("sqlite kv: put %q: %w", key, err)
	}
	return nil
}

// Close releases the database handle.
func (k *KV) Close() error {
	if k.db == nil {
		return nil
	}
	return k.db.Close()
}
