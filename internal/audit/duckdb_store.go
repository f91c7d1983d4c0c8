// Soleil - Real-time Chart Synchronization and Broadcast Engine
// Copyright 2026 The Soleil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/murrayheaton/soleil-sub001

package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	_ "github.com/duckdb/duckdb-go/v2" // registers the "duckdb" driver

	"github.com/murrayheaton/soleil-sub001/internal/logging"
)

// DuckDBStore implements Store using DuckDB for persistent storage.
type DuckDBStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closer bool
}

// NewDuckDBStore wraps an open DuckDB handle. The caller is responsible for
// calling CreateTable and for closing db.
func NewDuckDBStore(db *sql.DB) *DuckDBStore {
	return &DuckDBStore{db: db}
}

// OpenDuckDBStore opens the database at path (empty for in-memory) and
// ensures the table exists.
func OpenDuckDBStore(ctx context.Context, path string) (*DuckDBStore, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	s := &DuckDBStore{db: db, closer: true}
	if err := s.CreateTable(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// CreateTable creates the sync_operations table if it doesn't exist.
func (s *DuckDBStore) CreateTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS sync_operations (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			status TEXT NOT NULL,
			started_at TIMESTAMPTZ NOT NULL,
			completed_at TIMESTAMPTZ,
			stats JSON,
			error_message TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_sync_operations_tenant ON sync_operations(tenant_id);
		CREATE INDEX IF NOT EXISTS idx_sync_operations_started ON sync_operations(started_at DESC);
	`

	for _, stmt := range strings.Split(query, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}

	logging.Debug().Msg("sync_operations table created/verified")
	return nil
}

// Record inserts or replaces an operation.
func (s *DuckDBStore) Record(ctx context.Context, op *Operation) error {
	if op == nil || op.ID == "" {
		return errors.New("operation with id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	query := "INSERT OR REPLACE INTO sync_operations (" + operationColumns + ") VALUES (?, ?, ?, ?, ?, ?, ?, ?)"
	_, err := s.db.ExecContext(ctx, query,
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
func (s *DuckDBStore) Get(ctx context.Context, id string) (*Operation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT id, tenant_id, kind, status, started_at, completed_at,
		CAST(stats AS VARCHAR) AS stats, error_message
		FROM sync_operations WHERE id = ?`

	op, err := scanOperation(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get operation: %w", err)
	}
	return op, nil
}

// List returns matching operations, most recently started first.
func (s *DuckDBStore) List(ctx context.Context, filter Filter) ([]Operation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query, args := buildListQuery(filter, "CAST(stats AS VARCHAR)", questionMark)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query operations: %w", err)
	}
	defer rows.Close()

	results := make([]Operation, 0)
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			logging.Warn().Err(err).Msg("Failed to scan operation row")
			continue
		}
		results = append(results, *op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating operations: %w", err)
	}
	return results, nil
}

// Close closes the database if this store opened it.
func (s *DuckDBStore) Close() error {
	if !s.closer {
		return nil
	}
	return s.db.Close()
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
