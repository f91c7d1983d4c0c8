// Soleil - Real-time Chart Synchronization and Broadcast Engine
// Copyright 2026 The Soleil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/murrayheaton/soleil-sub001

package sync

import (
	"fmt"
	"sort"
	gosync "sync"
	"time"

	"github.com/murrayheaton/soleil-sub001/internal/audit"
)

// Kind distinguishes full and delta reconciliations.
type Kind string

// Operation kinds.
const (
	KindFull  Kind = "full"
	KindDelta Kind = "delta"
)

// Status is the lifecycle state of an Operation.
type Status string

// Operation states. Completed and Failed are terminal.
const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether s is a final state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Operation tracks one triggered reconciliation.
type Operation struct {
	ID          string         `json:"operation_id"`
	TenantID    string         `json:"tenant_id"`
	Kind        Kind           `json:"kind"`
	Status      Status         `json:"status"`
	ResourceID  string         `json:"resource_id,omitempty"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Stats       map[string]int `json:"stats"`
	Error       string         `json:"error,omitempty"`
}

func (o *Operation) clone() Operation {
	c := *o
	if o.CompletedAt != nil {
		t := *o.CompletedAt
		c.CompletedAt = &t
	}
	c.Stats = make(map[string]int, len(o.Stats))
	for k, v := range o.Stats {
		c.Stats[k] = v
	}
	return c
}

// auditRecord converts to the flat sink record.
func (o *Operation) auditRecord() *audit.Operation {
	c := o.clone()
	return &audit.Operation{
		ID:          c.ID,
		TenantID:    c.TenantID,
		Kind:        string(c.Kind),
		Status:      string(c.Status),
		StartedAt:   c.StartedAt,
		CompletedAt: c.CompletedAt,
		Stats:       c.Stats,
		Error:       c.Error,
	}
}

// operationTable owns every Operation. All transitions go through it.
type operationTable struct {
	mu  gosync.RWMutex
	ops map[string]*Operation
}

func newOperationTable() *operationTable {
	return &operationTable{ops: make(map[string]*Operation)}
}

// create registers a pending operation. The id is {kind}_sync_{tenant}_{unix};
// a -N suffix is added only when that id is already taken.
func (t *operationTable) create(kind Kind, tenantID, resourceID string, now time.Time) Operation {
	t.mu.Lock()
	defer t.mu.Unlock()

	base := fmt.Sprintf("%s_sync_%s_%d", kind, tenantID, now.Unix())
	id := base
	for n := 1; ; n++ {
		if _, taken := t.ops[id]; !taken {
			break
		}
		id = fmt.Sprintf("%s-%d", base, n)
	}

	op := &Operation{
		ID:         id,
		TenantID:   tenantID,
		Kind:       kind,
		Status:     StatusPending,
		ResourceID: resourceID,
		StartedAt:  now,
		Stats:      map[string]int{},
	}
	t.ops[id] = op
	return op.clone()
}

// transition moves an operation to status. Terminal operations never move.
func (t *operationTable) transition(id string, status Status, errMsg string, now time.Time) (Operation, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	op, ok := t.ops[id]
	if !ok || op.Status.Terminal() {
		return Operation{}, false
	}
	op.Status = status
	if status.Terminal() {
		done := now
		op.CompletedAt = &done
		op.Error = errMsg
	}
	return op.clone(), true
}

// addStats merges counters into a non-terminal operation.
func (t *operationTable) addStats(id string, stats map[string]int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	op, ok := t.ops[id]
	if !ok || op.Status.Terminal() {
		return
	}
	for k, v := range stats {
		op.Stats[k] += v
	}
}

func (t *operationTable) get(id string) (Operation, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	op, ok := t.ops[id]
	if !ok {
		return Operation{}, false
	}
	return op.clone(), true
}

// list returns a tenant's operations (all when tenantID is empty), newest
// first.
func (t *operationTable) list(tenantID string) []Operation {
	t.mu.RLock()
	out := make([]Operation, 0, len(t.ops))
	for _, op := range t.ops {
		if tenantID == "" || op.TenantID == tenantID {
			out = append(out, op.clone())
		}
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out
}

func (t *operationTable) countByStatus() map[Status]int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	counts := map[Status]int{
		StatusPending:    0,
		StatusInProgress: 0,
		StatusCompleted:  0,
		StatusFailed:     0,
	}
	for _, op := range t.ops {
		counts[op.Status]++
	}
	return counts
}

// prune drops terminal operations that completed before cutoff.
func (t *operationTable) prune(cutoff time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for id, op := range t.ops {
		if op.Status.Terminal() && op.CompletedAt != nil && op.CompletedAt.Before(cutoff) {
			delete(t.ops, id)
			removed++
		}
	}
	return removed
}
