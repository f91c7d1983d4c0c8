// Soleil - Real-time Chart Synchronization and Broadcast Engine
// Copyright 2026 The Soleil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/murrayheaton/soleil-sub001

package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
)

// blockingStore blocks every Record until release is closed.
type blockingStore struct {
	*MemoryStore
	release chan struct{}
}

func (s *blockingStore) Record(ctx context.Context, op *Operation) error {
	<-s.release
	return s.MemoryStore.Record(ctx, op)
}

type failingStore struct {
	*MemoryStore
	mu    sync.Mutex
	calls int
}

func (s *failingStore) Record(context.Context, *Operation) error {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return errors.New("disk full")
}

func TestRecorder_WritesInOrderAndFlushesOnClose(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore(0)
	rec := NewRecorder(store, RecorderConfig{BufferSize: 10})
	ctx := context.Background()

	op := sampleOperation("op-1", "band-a", "full", 0)
	for _, status := range []string{"pending", "in_progress", "completed"} {
		op.Status = status
		if err := rec.Record(ctx, op); err != nil {
			t.Fatalf("Record(%s): %v", status, err)
		}
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	got, err := store.Get(ctx, "op-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != "completed" {
		t.Errorf("Status = %q, want completed", got.Status)
	}
}

func TestRecorder_BufferFull(t *testing.T) {
	t.Parallel()

	store := &blockingStore{MemoryStore: NewMemoryStore(0), release: make(chan struct{})}
	rec := NewRecorder(store, RecorderConfig{BufferSize: 1})
	ctx := context.Background()

	// The writer takes the first record and blocks; the second fills the
	// buffer; the third has nowhere to go.
	var sawFull bool
	for i := 0; i < 5; i++ {
		if err := rec.Record(ctx, sampleOperation("op", "t", "full", 0)); errors.Is(err, ErrBufferFull) {
			sawFull = true
		}
	}
	close(store.release)
	rec.Close()

	if !sawFull {
		t.Error("expected ErrBufferFull")
	}
	if rec.Dropped() == 0 {
		t.Error("Dropped() = 0")
	}
}

func TestRecorder_StoreFailureCounted(t *testing.T) {
	t.Parallel()

	store := &failingStore{MemoryStore: NewMemoryStore(0)}
	rec := NewRecorder(store, RecorderConfig{})
	if err := rec.Record(context.Background(), sampleOperation("op", "t", "full", 0)); err != nil {
		t.Fatalf("Record: %v", err)
	}
	rec.Close()
	rec.Close()

	if rec.Failed() != 1 {
		t.Errorf("Failed() = %d, want 1", rec.Failed())
	}
}

func TestRecorder_RejectsNil(t *testing.T) {
	t.Parallel()

	rec := NewRecorder(NewMemoryStore(0), RecorderConfig{})
	defer rec.Close()
	if err := rec.Record(context.Background(), nil); err == nil {
		t.Error("Record(nil) should fail")
	}
}
