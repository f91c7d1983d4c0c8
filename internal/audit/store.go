// Soleil - Real-time Chart Synchronization and Broadcast Engine
// Copyright 2026 The Soleil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/murrayheaton/soleil-sub001

package audit

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore implements Store in memory.
// Suitable for development and testing. Data is lost on restart.
type MemoryStore struct {
	mu     sync.RWMutex
	ops    map[string]Operation
	order  []string
	maxLen int
}

// NewMemoryStore creates an in-memory store holding at most maxLen operations.
func NewMemoryStore(maxLen int) *MemoryStore {
	if maxLen <= 0 {
		maxLen = 10000
	}
	return &MemoryStore{
		ops:    make(map[string]Operation),
		maxLen: maxLen,
	}
}

// Record inserts or replaces an operation.
func (s *MemoryStore) Record(_ context.Context, op *Operation) error {
	if op == nil {
		return errors.New("operation cannot be nil")
	}
	if op.ID == "" {
		return errors.New("operation id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.ops[op.ID]; !exists {
		// Drop the oldest 10% once full
		if len(s.order) >= s.maxLen {
			removeCount := max(s.maxLen/10, 1)
			for _, id := range s.order[:removeCount] {
				delete(s.ops, id)
			}
			s.order = append([]string(nil), s.order[removeCount:]...)
		}
		s.order = append(s.order, op.ID)
	}
	s.ops[op.ID] = cloneOperation(op)
	return nil
}

// Get returns the operation with the given id.
func (s *MemoryStore) Get(_ context.Context, id string) (*Operation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	op, ok := s.ops[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	c := cloneOperation(&op)
	return &c, nil
}

// List returns matching operations, most recently started first.
func (s *MemoryStore) List(_ context.Context, filter Filter) ([]Operation, error) {
	s.mu.RLock()
	results := make([]Operation, 0)
	for _, id := range s.order {
		op := s.ops[id]
		if filter.matches(&op) {
			results = append(results, cloneOperation(&op))
		}
	}
	s.mu.RUnlock()

	sortRecentFirst(results)
	if filter.Limit > 0 && len(results) > filter.Limit {
		results = results[:filter.Limit]
	}
	return results, nil
}

// Len returns the number of stored operations.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ops)
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}

func sortRecentFirst(ops []Operation) {
	sort.SliceStable(ops, func(i, j int) bool {
		if ops[i].StartedAt.Equal(ops[j].StartedAt) {
			return ops[i].ID > ops[j].ID
		}
		return ops[i].StartedAt.After(ops[j].StartedAt)
	})
}
