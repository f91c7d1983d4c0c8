// Soleil - Real-time Chart Synchronization and Broadcast Engine
// Copyright 2026 The Soleil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/murrayheaton/soleil-sub001

package filesync

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"runtime"
	"sort"
	"sync"
	"testing"
	"time"
)

func TestSyncSourceToTargets_KeyFiltering(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	s := New(store, keysFor, Config{})

	source := []File{
		{ID: "chart-bb", Name: "Song - Bb.pdf", Key: "Bb"},
		{ID: "chart-eb", Name: "Song - Eb.pdf", Key: "Eb"},
		{ID: "track", Name: "Song.mp3", MimeType: "audio/mpeg"},
	}
	target := Target{UserID: "trumpet", Instruments: []string{"Bb"}, FolderID: "folder-trumpet"}

	res := s.SyncSourceToTargets(context.Background(), source, []Target{target})

	got := store.linkedFiles("folder-trumpet")
	sort.Strings(got)
	if want := []string{"chart-bb", "track"}; !reflect.DeepEqual(got, want) {
		t.Errorf("shortcuts = %v, want %v", got, want)
	}
	if res.ShortcutsCreated != 2 || res.ShortcutsDeleted != 0 || res.TargetsProcessed != 1 || res.FilesProcessed != 3 {
		t.Errorf("Result = %+v", res)
	}
	if len(res.Errors) != 0 {
		t.Errorf("Errors = %v", res.Errors)
	}

	// A second pass finds nothing to do.
	res = s.SyncSourceToTargets(context.Background(), source, []Target{target})
	if res.ShortcutsCreated != 0 || res.ShortcutsDeleted != 0 {
		t.Errorf("second pass Result = %+v", res)
	}
}

func TestSyncSourceToTargets_Incremental(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	store.addShortcut("f", "chart-bb")
	store.addShortcut("f", "chart-eb")
	store.addShortcut("f", "chart-bb")

	s := New(store, keysFor, Config{})
	source := []File{
		{ID: "chart-bb", Key: "Bb"},
		{ID: "chart-eb", Key: "Eb"},
	}
	res := s.SyncSourceToTargets(context.Background(), source, []Target{{UserID: "u", Instruments: []string{"Bb"}, FolderID: "f"}})

	if got := store.linkedFiles("f"); !reflect.DeepEqual(got, []string{"chart-bb"}) {
		t.Errorf("shortcuts = %v", got)
	}
	if res.ShortcutsDeleted != 2 || res.ShortcutsCreated != 0 {
		t.Errorf("Result = %+v", res)
	}
}

func TestSyncSourceToTargets_FailingTargetDoesNotAbort(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	errCircuit := errors.New("circuit open")
	store.failFolders["broken"] = errCircuit
	s := New(store, keysFor, Config{MaxConcurrentSyncs: 2})

	targets := []Target{
		{UserID: "a", FolderID: "ok-1"},
		{UserID: "b", FolderID: "broken"},
		{UserID: "c", FolderID: "ok-2"},
	}
	source := []File{{ID: "audio", IsAudio: true}}

	var mu sync.Mutex
	var progress []int
	res := s.SyncSourceToTargetsWithProgress(context.Background(), source, targets, func(done, total int, _ Target) {
		mu.Lock()
		defer mu.Unlock()
		if total != 3 {
			t.Errorf("total = %d, want 3", total)
		}
		progress = append(progress, done)
	})

	if res.TargetsProcessed != 3 || res.ShortcutsCreated != 2 {
		t.Errorf("Result = %+v", res)
	}
	if len(res.Errors) != 1 || res.Errors[0].UserID != "b" || !errors.Is(res.Errors[0], errCircuit) {
		t.Fatalf("Errors = %v", res.Errors)
	}
	sort.Ints(progress)
	if !reflect.DeepEqual(progress, []int{1, 2, 3}) {
		t.Errorf("progress = %v", progress)
	}
	if res.Stats()["target_errors"] != 1 {
		t.Errorf("Stats() = %v", res.Stats())
	}
}

func TestSyncSourceToTargets_ConcurrencyBound(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	store.delay = 10 * time.Millisecond
	s := New(store, keysFor, Config{MaxConcurrentSyncs: 2})

	targets := make([]Target, 8)
	for i := range targets {
		targets[i] = Target{UserID: fmt.Sprintf("u%d", i), FolderID: fmt.Sprintf("f%d", i)}
	}
	res := s.SyncSourceToTargets(context.Background(), nil, targets)

	if res.TargetsProcessed != 8 {
		t.Errorf("TargetsProcessed = %d", res.TargetsProcessed)
	}
	if p := store.peak.Load(); p > 2 {
		t.Errorf("peak concurrent targets = %d, want <= 2", p)
	}
}

func TestSyncSourceToTargets_ProgressInOrder(t *testing.T) {
	t.Parallel()

	const n = 64
	targets := make([]Target, n)
	for i := range targets {
		targets[i] = Target{UserID: fmt.Sprintf("u%d", i), FolderID: fmt.Sprintf("f%d", i)}
	}
	source := []File{{ID: "track", Name: "Song.mp3", MimeType: "audio/mpeg"}}

	for iter := 0; iter < 10; iter++ {
		s := New(newMemStore(), keysFor, Config{MaxConcurrentSyncs: 16})

		var mu sync.Mutex
		var seen []int
		s.SyncSourceToTargetsWithProgress(context.Background(), source, targets, func(done, total int, target Target) {
			payload := map[string]any{"progress": done, "total": total, "user": target.UserID}
			runtime.Gosched()
			mu.Lock()
			seen = append(seen, payload["progress"].(int))
			mu.Unlock()
		})

		if len(seen) != n {
			t.Fatalf("iter %d: %d progress callbacks, want %d", iter, len(seen), n)
		}
		for i, done := range seen {
			if done != i+1 {
				t.Fatalf("iter %d: callback %d reported progress %d", iter, i, done)
			}
		}
	}
}

func TestSyncSourceToTargets_CancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := New(newMemStore(), keysFor, Config{})
	res := s.SyncSourceToTargets(ctx, []File{{ID: "a", IsAudio: true}}, []Target{{UserID: "u", FolderID: "f"}})
	if len(res.Errors) != 1 || !errors.Is(res.Errors[0], context.Canceled) {
		t.Errorf("Errors = %v", res.Errors)
	}
}

func TestSyncFolder(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	store.files["source"] = []File{{ID: "x", Name: "Tune - Eb.pdf", Key: "Eb"}}
	s := New(store, keysFor, Config{})

	res, err := s.SyncFolder(context.Background(), "source", []Target{{UserID: "alto", Instruments: []string{"Eb"}, FolderID: "alto"}}, nil)
	if err != nil {
		t.Fatalf("SyncFolder: %v", err)
	}
	if res.ShortcutsCreated != 1 {
		t.Errorf("Result = %+v", res)
	}

	if _, err := s.SyncFolder(context.Background(), "missing", nil, nil); err == nil {
		t.Error("SyncFolder(missing) should fail")
	}
}
