// Soleil - Real-time Chart Synchronization and Broadcast Engine
// Copyright 2026 The Soleil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/murrayheaton/soleil-sub001

package filesync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/murrayheaton/soleil-sub001/internal/logging"
)

//nolint:gochecknoinits // init ensures consistent logging for tests
func init() {
	logging.Init(logging.Config{Level: "disabled", Output: io.Discard})
}

// memStore is an in-memory Store.
type memStore struct {
	mu        sync.Mutex
	files     map[string][]File
	shortcuts map[string][]Shortcut // folder -> shortcuts
	nextID    int

	failFolders map[string]error
	delay       time.Duration
	inFlight    atomic.Int64
	peak        atomic.Int64
}

func newMemStore() *memStore {
	return &memStore{
		files:       make(map[string][]File),
		shortcuts:   make(map[string][]Shortcut),
		failFolders: make(map[string]error),
	}
}

func (s *memStore) enter() func() {
	n := s.inFlight.Add(1)
	for {
		p := s.peak.Load()
		if n <= p || s.peak.CompareAndSwap(p, n) {
			break
		}
	}
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	return func() { s.inFlight.Add(-1) }
}

func (s *memStore) ListFiles(_ context.Context, folderID string) ([]File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	files, ok := s.files[folderID]
	if !ok {
		return nil, errors.New("folder not found")
	}
	return append([]File(nil), files...), nil
}

func (s *memStore) ListShortcuts(_ context.Context, folderID string) ([]Shortcut, error) {
	defer s.enter()()

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failFolders[folderID]; err != nil {
		return nil, err
	}
	return append([]Shortcut(nil), s.shortcuts[folderID]...), nil
}

func (s *memStore) CreateShortcut(_ context.Context, folderID string, file File) (Shortcut, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	sc := Shortcut{ID: fmt.Sprintf("sc-%d", s.nextID), TargetFileID: file.ID, Name: file.Name}
	s.shortcuts[folderID] = append(s.shortcuts[folderID], sc)
	return sc, nil
}

func (s *memStore) DeleteShortcut(_ context.Context, shortcutID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for folder, list := range s.shortcuts {
		for i, sc := range list {
			if sc.ID == shortcutID {
				s.shortcuts[folder] = append(list[:i:i], list[i+1:]...)
				return nil
			}
		}
	}
	return errors.New("shortcut not found")
}

func (s *memStore) addShortcut(folderID, fileID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.shortcuts[folderID] = append(s.shortcuts[folderID], Shortcut{ID: fmt.Sprintf("sc-%d", s.nextID), TargetFileID: fileID})
}

func (s *memStore) linkedFiles(folderID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for _, sc := range s.shortcuts[folderID] {
		ids = append(ids, sc.TargetFileID)
	}
	return ids
}

// keysFor grants each instrument's key directly: "Bb" reads Bb charts.
func keysFor(instruments []string) map[string]struct{} {
	keys := make(map[string]struct{}, len(instruments))
	for _, i := range instruments {
		keys[i] = struct{}{}
	}
	return keys
}
