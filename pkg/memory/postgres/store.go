// Package postgres stores the memory record in PostgreSQL.
//
// Use it when several installations of the companion should share one memory,
// for example a desktop and a laptop. Each record lives in a row of the
// aura_kv table keyed by the memory key.
//
// Usage:
//
//	kv, err := postgres.NewKV(ctx, dsn)
//	if err != nil { … }
//	store := memory.NewStore(kv)
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/aura/pkg/memory"
)

var _ memory.KV = (*KV)(nil)

const ddlKV = `
CREATE TABLE IF NOT EXISTS aura_kv (
    key         TEXT         PRIMARY KEY,
    value       JSONB        NOT NULL,
    updated_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);
`

// Migrate creates the aura_kv table if it does not exist. It is idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlKV); err != nil {
		return fmt.Errorf("postgres migrate: %w", err)
	}
	return nil
}

// KV is a [memory.KV] on top of a [pgxpool.Pool]. It is safe for concurrent
// use.
type KV struct {
	pool *pgxpool.Pool
}

// NewKV connects to the database at dsn and runs [Migrate].
func NewKV(ctx context.Context, dsn string) (*KV, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres kv: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres kv: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres kv: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres kv: migrate: %w", err)
	}

	return &KV{pool: pool}, nil
}

// Get implements [memory.KV].
func (k *KV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value string
	err := k.pool.QueryRow(ctx, `SELECT value::text FROM aura_kv WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("postgres kv: get %q: %w", key, err)
	}
	return []byte(value), true, nil
}

// Put implements [memory.KV]. value must be valid JSON.
func (k *KV) Put(ctx context.Context, key string, value []byte) error {
	const q = `
		INSERT INTO aura_kv (key, value, updated_at)
		VALUES ($1, $2::jsonb, now())
		ON CONFLICT (key) DO UPDATE
		    SET value = EXCLUDED.value,
		        updated_at = now()`
	if _, err := k.pool.Exec(ctx, q, key, string(value)); err != nil {
		return fmt.Errorf("postgres kv: put %q: %w", key, err)
	}
	return nil
}

// Close releases all pooled connections.
func (k *KV) Close() error {
	k.pool.Close()
	return nil
}
