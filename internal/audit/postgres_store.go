// Soleil - Real-time Chart Synchronization and Broadcast Engine
// Copyright 2026 The Soleil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/murrayheaton/soleil-sub001

package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Pool settings for the Postgres store.
const (
	pgMaxConns        = 10
	pgMinConns        = 1
	pgMaxConnLifetime = 10 * time.Minute
	pgMaxConnIdleTime = 5 * time.Minute
)

// PostgresStore implements Store on a pgx connection pool.
type PostgresStore struct {
	pool   *pgxpool.Pool
	closer bool
}

// NewPostgresStore wraps an existing pool. The caller keeps ownership of it.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// OpenPostgresStore connects to databaseURL, pings it and ensures the table
// exists.
func OpenPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	cfg.MaxConns = pgMaxConns
	cfg.MinConns = pgMinConns
	cfg.MaxConnLifetime = pgMaxConnLifetime
	cfg.MaxConnIdleTime = pgMaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &PostgresStore{pool: pool, closer: true}
	if err := s.CreateTable(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// CreateTable creates the sync_operations table if it doesn't exist.
func (s *PostgresStore) CreateTable(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS sync_operations (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			status TEXT NOT NULL,
			started_at TIMESTAMPTZ NOT NULL,
			completed_at TIMESTAMPTZ,
			stats JSONB,
			error_message TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sync_operations_tenant ON sync_operations(tenant_id)`,
		`CREATE INDEX IF NOT EXISTS idx_sync_operations_started ON sync_operations(started_at DESC)`,
	}
	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

// Record inserts or replaces an operation.
func (s *PostgresStore) Record(ctx context.Context, op *Operation) error {
	if op == nil || op.ID == "" {
		return errors.New("operation with id is required")
	}

	query := `INSERT INTO sync_operations (` + operationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8)
		ON CONFLICT (id) DO UPDATE SET
			tenant_id = EXCLUDED.tenant_id,
			kind = EXCLUDED.kind,
			status = EXCLUDED.status,
			started_at = EXCLUDED.started_at,
			completed_at = EXCLUDED.completed_at,
			stats = EXCLUDED.stats,
			error_message = EXCLUDED.error_message`

	_, err := s.pool.Exec(ctx, query,
		op.ID,
		op.TenantID,
		op.Kind,
		op.Status,
		op.StartedAt,
		op.CompletedAt,
		marshalStats(op.Stats),
		nullableString(op.Error),
	)
	if err != nil {
		return fmt.Errorf("failed to save operation: %w", err)
	}
	return nil
}

// Get returns the operation with the given id.
func (s *PostgresStore) Get(ctx context.Context, id string) (*Operation, error) {
	query := `SELECT id, tenant_id, kind, status, started_at, completed_at, stats::text, error_message
		FROM sync_operations WHERE id = $1`

	op, err := scanOperation(s.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get operation: %w", err)
	}
	return op, nil
}

// List returns matching operations, most recently started first.
func (s *PostgresStore) List(ctx context.Context, filter Filter) ([]Operation, error) {
	query, args := buildListQuery(filter, "stats::text", dollar)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query operations: %w", err)
	}
	defer rows.Close()

	results := make([]Operation, 0)
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan operation: %w", err)
		}
		results = append(results, *op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating operations: %w", err)
	}
	return results, nil
}

// Close closes the pool if this store created it.
func (s *PostgresStore) Close() error {
	if s.closer {
		s.pool.Close()
	}
	return nil
}
