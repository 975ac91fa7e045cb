package acl

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Database is a [PostgresStore] that owns its connection pool.
type Database struct {
	*PostgresStore
	pool *pgxpool.Pool
}

// Connect opens a pool to dsn, verifies it and runs [PostgresStore.Migrate].
func Connect(ctx context.Context, dsn string) (*Database, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("acl: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("acl: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("acl: ping: %w", err)
	}

	store := NewPostgresStore(pool)
	if err := store.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Database{PostgresStore: store, pool: pool}, nil
}

// Ping checks that the database is reachable.
func (d *Database) Ping(ctx context.Context) error {
	return d.pool.Ping(ctx)
}

// Close releases all pooled connections.
func (d *Database) Close() {
	d.pool.Close()
}
