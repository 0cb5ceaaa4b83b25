package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	createStoreTable = `CREATE TABLE IF NOT EXISTS verification_store (
	id         TEXT PRIMARY KEY,
	document   JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

	selectStoreDocument = `SELECT document FROM verification_store WHERE id = $1`

	upsertStoreDocument = `INSERT INTO verification_store (id, document, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (id) DO UPDATE SET document = EXCLUDED.document, updated_at = EXCLUDED.updated_at`
)

// PostgresBackend stores the document as a single JSONB row. The upsert is
// one statement, so a failed write leaves the previous document in place.
type PostgresBackend struct {
	pool *pgxpool.Pool
	id   string
}

// NewPostgresBackend connects, pings and ensures the table exists
func NewPostgresBackend(ctx context.Context, dsn, documentID string) (*PostgresBackend, error) {
	if documentID == "" {
		documentID = "default"
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres backend: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres backend: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, createStoreTable); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres backend: migrate: %w", err)
	}
	return &PostgresBackend{pool: pool, id: documentID}, nil
}

// Load reads the document
func (b *PostgresBackend) Load(ctx context.Context) ([]byte, error) {
	var doc []byte
	err := b.pool.QueryRow(ctx, selectStoreDocument, b.id).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres backend: select: %w", err)
	}
	return doc, nil
}

// Save upserts the document
func (b *PostgresBackend) Save(ctx context.Context, doc []byte) error {
	if _, err := b.pool.Exec(ctx, upsertStoreDocument, b.id, doc); err != nil {
		return fmt.Errorf("postgres backend: upsert: %w", err)
	}
	return nil
}

// Close closes the pool
func (b *PostgresBackend) Close() error {
	b.pool.Close()
	return nil
}
