// Soleil - Real-time Chart Synchronization and Broadcast Engine
// Copyright 2026 The Soleil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/murrayheaton/soleil-sub001

package contentstore

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/murrayheaton/soleil-sub001/internal/cache"
	"github.com/murrayheaton/soleil-sub001/internal/filesync"
	"github.com/murrayheaton/soleil-sub001/internal/logging"
	"github.com/murrayheaton/soleil-sub001/internal/ratelimit"
)

//nolint:gochecknoinits // init ensures consistent logging for tests
func init() {
	logging.Init(logging.Config{Level: "disabled", Output: io.Discard})
}

// fakeBackend serves fixed listings and replays scripted errors.
type fakeBackend struct {
	mu        sync.Mutex
	files     map[string][]filesync.File
	shortcuts map[string][]filesync.Shortcut
	gens      map[string]int
	calls     map[string]int
	errs      []error // consumed one per call, nil entries succeed
	listDelay time.Duration
	nextID    int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		files:     make(map[string][]filesync.File),
		shortcuts: make(map[string][]filesync.Shortcut),
		gens:      make(map[string]int),
		calls:     make(map[string]int),
	}
}

func (f *fakeBackend) begin(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
	if len(f.errs) == 0 {
		return nil
	}
	err := f.errs[0]
	f.errs = f.errs[1:]
	return err
}

func (f *fakeBackend) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeBackend) script(errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs = append(f.errs, errs...)
}

func (f *fakeBackend) ListFiles(_ context.Context, folderID string) ([]filesync.File, error) {
	if err := f.begin("list_files"); err != nil {
		return nil, err
	}
	if f.listDelay > 0 {
		time.Sleep(f.listDelay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]filesync.File(nil), f.files[folderID]...), nil
}

func (f *fakeBackend) ListShortcuts(_ context.Context, folderID string) ([]filesync.Shortcut, error) {
	if err := f.begin("list_shortcuts"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]filesync.Shortcut(nil), f.shortcuts[folderID]...), nil
}

func (f *fakeBackend) CreateShortcut(_ context.Context, folderID string, file filesync.File) (filesync.Shortcut, error) {
	if err := f.begin("create_shortcut"); err != nil {
		return filesync.Shortcut{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	sc := filesync.Shortcut{ID: fmt.Sprintf("sc-%d", f.nextID), TargetFileID: file.ID, Name: file.Name}
	f.shortcuts[folderID] = append(f.shortcuts[folderID], sc)
	f.gens[folderID]++
	return sc, nil
}

func (f *fakeBackend) DeleteShortcut(_ context.Context, shortcutID string) error {
	if err := f.begin("delete_shortcut"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for folder, list := range f.shortcuts {
		for i, sc := range list {
			if sc.ID == shortcutID {
				f.shortcuts[folder] = append(list[:i:i], list[i+1:]...)
				f.gens[folder]++
				return nil
			}
		}
	}
	return ErrNotFound
}

func (f *fakeBackend) FolderGeneration(_ context.Context, folderID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["folder_generation"]++
	return fmt.Sprint(f.gens[folderID]), nil
}

// memShared is an in-memory SharedCache.
type memShared struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (m *memShared) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memShared) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		m.data = make(map[string][]byte)
	}
	m.data[key] = value
	return nil
}

func newTestLimiter(t *testing.T) *ratelimit.Dynamic {
	t.Helper()
	l, err := ratelimit.NewDynamic(ratelimit.DynamicConfig{
		Name:             "contentstore_test",
		InitialRate:      500,
		Burst:            500,
		MinRate:          1,
		MaxRate:          1000,
		IncreaseFactor:   1.1,
		DecreaseFactor:   0.5,
		SuccessThreshold: 100,
	})
	if err != nil {
		t.Fatalf("NewDynamic: %v", err)
	}
	return l
}

func newTestClient(t *testing.T, b Backend, cfg Config, opts ...Option) *Client {
	t.Helper()
	if cfg.RetryBaseDelay == 0 {
		cfg.RetryBaseDelay = time.Millisecond
	}
	if cfg.Name == "" {
		cfg.Name = t.Name()
	}
	c := cache.NewManager(cache.Config{Name: "contentstore_test", MaxSize: 100, DefaultTTL: time.Minute, CleanupInterval: time.Minute})
	return NewClient(b, newTestLimiter(t), c, cfg, opts...)
}
