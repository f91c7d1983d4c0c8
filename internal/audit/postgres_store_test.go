// Soleil - Real-time Chart Synchronization and Broadcast Engine
// Copyright 2026 The Soleil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/murrayheaton/soleil-sub001

package audit

import (
	"context"
	"os"
	"testing"
)

// TestPostgresStore runs against a real database when SOLEIL_TEST_POSTGRES_DSN
// is set.
func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("SOLEIL_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("SOLEIL_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()

	store, err := OpenPostgresStore(ctx, dsn)
	if err != nil {
		t.Fatalf("OpenPostgresStore: %v", err)
	}
	defer store.Close()

	if _, err := store.pool.Exec(ctx, "TRUNCATE sync_operations"); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	testStoreContract(t, store)
}
