// Soleil - Real-time Chart Synchronization and Broadcast Engine
// Copyright 2026 The Soleil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/murrayheaton/soleil-sub001

package audit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/murrayheaton/soleil-sub001/internal/logging"
)

//nolint:gochecknoinits // init ensures consistent logging for tests
func init() {
	logging.Init(logging.Config{Level: "disabled", Output: io.Discard})
}

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func sampleOperation(id, tenant, kind string, offset time.Duration) *Operation {
	return &Operation{
		ID:        id,
		TenantID:  tenant,
		Kind:      kind,
		Status:    "pending",
		StartedAt: baseTime.Add(offset),
	}
}

// testStoreContract exercises the behavior every Store must share.
func testStoreContract(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("record and get", func(t *testing.T) {
		op := sampleOperation("full_sync_band-a_1", "band-a", "full", 0)
		if err := store.Record(ctx, op); err != nil {
			t.Fatalf("Record: %v", err)
		}
		got, err := store.Get(ctx, op.ID)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.TenantID != "band-a" || got.Status != "pending" || !got.StartedAt.Equal(op.StartedAt) {
			t.Errorf("Get() = %+v", got)
		}
		if got.CompletedAt != nil {
			t.Errorf("CompletedAt = %v, want nil", got.CompletedAt)
		}
	})

	t.Run("record replaces", func(t *testing.T) {
		op := sampleOperation("full_sync_band-a_1", "band-a", "full", 0)
		done := baseTime.Add(3 * time.Second)
		op.Status = "failed"
		op.CompletedAt = &done
		op.Error = "store unavailable"
		op.Stats = map[string]int{"targets_processed": 2, "shortcuts_created": 5}
		if err := store.Record(ctx, op); err != nil {
			t.Fatalf("Record: %v", err)
		}

		got, err := store.Get(ctx, op.ID)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.Status != "failed" || got.Error != "store unavailable" {
			t.Errorf("Get() = %+v", got)
		}
		if got.CompletedAt == nil || !got.CompletedAt.Equal(done) {
			t.Errorf("CompletedAt = %v, want %v", got.CompletedAt, done)
		}
		if got.Stats["shortcuts_created"] != 5 {
			t.Errorf("Stats = %v", got.Stats)
		}
	})

	t.Run("get unknown", func(t *testing.T) {
		_, err := store.Get(ctx, "missing")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("Get(missing) error = %v, want ErrNotFound", err)
		}
	})

	t.Run("list filters and orders", func(t *testing.T) {
		for i, tenant := range []string{"band-a", "band-b", "band-a"} {
			op := sampleOperation(fmt.Sprintf("delta_sync_%s_%d", tenant, i+10), tenant, "delta", time.Duration(i+1)*time.Minute)
			if err := store.Record(ctx, op); err != nil {
				t.Fatalf("Record: %v", err)
			}
		}

		all, err := store.List(ctx, Filter{})
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(all) != 4 {
			t.Fatalf("List() returned %d operations, want 4", len(all))
		}
		for i := 1; i < len(all); i++ {
			if all[i].StartedAt.After(all[i-1].StartedAt) {
				t.Errorf("List() not ordered recent first at %d", i)
			}
		}

		bandA, err := store.List(ctx, Filter{TenantID: "band-a", Kind: "delta"})
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(bandA) != 2 || bandA[0].ID != "delta_sync_band-a_12" {
			t.Errorf("List(band-a, delta) = %+v", bandA)
		}

		limited, err := store.List(ctx, Filter{Limit: 1, Since: baseTime.Add(90 * time.Second)})
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(limited) != 1 || limited[0].ID != "delta_sync_band-a_12" {
			t.Errorf("List(limit, since) = %+v", limited)
		}

		failed, err := store.List(ctx, Filter{Status: "failed"})
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(failed) != 1 {
			t.Errorf("List(failed) = %d, want 1", len(failed))
		}
	})

	t.Run("record rejects missing id", func(t *testing.T) {
		if err := store.Record(ctx, &Operation{}); err == nil {
			t.Error("Record(no id) should fail")
		}
	})
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore(100)
	testStoreContract(t, store)
}

func TestBadgerStore(t *testing.T) {
	store, err := OpenBadgerStore(t.TempDir())
	if err != nil {
		t.Fatalf("OpenBadgerStore: %v", err)
	}
	defer store.Close()

	testStoreContract(t, store)
}

func TestBadgerStore_Reopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := OpenBadgerStore(dir)
	if err != nil {
		t.Fatalf("OpenBadgerStore: %v", err)
	}
	if err := store.Record(ctx, sampleOperation("op-1", "band-a", "full", 0)); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	store, err = OpenBadgerStore(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer store.Close()

	if _, err := store.Get(ctx, "op-1"); err != nil {
		t.Errorf("Get after reopen: %v", err)
	}
}

func TestMemoryStore_Eviction(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore(10)
	ctx := context.Background()
	for i := 0; i < 11; i++ {
		if err := store.Record(ctx, sampleOperation(fmt.Sprintf("op-%d", i), "t", "full", time.Duration(i)*time.Second)); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	if store.Len() != 10 {
		t.Errorf("Len() = %d, want 10", store.Len())
	}
	if _, err := store.Get(ctx, "op-0"); !errors.Is(err, ErrNotFound) {
		t.Errorf("oldest operation should be evicted, got %v", err)
	}
	if _, err := store.Get(ctx, "op-10"); err != nil {
		t.Errorf("newest operation missing: %v", err)
	}
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore(0)
	ctx := context.Background()
	op := sampleOperation("op-1", "t", "full", 0)
	op.Stats = map[string]int{"files": 1}
	if err := store.Record(ctx, op); err != nil {
		t.Fatalf("Record: %v", err)
	}
	op.Stats["files"] = 99

	got, _ := store.Get(ctx, "op-1")
	if got.Stats["files"] != 1 {
		t.Errorf("stored stats aliased caller map: %v", got.Stats)
	}
}
