// Soleil - Real-time Chart Synchronization and Broadcast Engine
// Copyright 2026 The Soleil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/murrayheaton/soleil-sub001

// Package audit records sync operations to a durable sink.
//
// Writes are best-effort from the engine's point of view: a failing sink is
// logged and counted but never fails an operation.
package audit

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Store.Get for unknown operation ids.
var ErrNotFound = errors.New("audit: operation not found")

// Operation is the flat record of one sync operation. Recording the same ID
// again replaces the earlier record.
type Operation struct {
	ID          string         `json:"id"`
	TenantID    string         `json:"tenant_id"`
	Kind        string         `json:"kind"`
	Status      string         `json:"status"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Stats       map[string]int `json:"stats,omitempty"`
	Error       string         `json:"error,omitempty"`
}

// Filter selects operations in Store.List. Zero fields match everything.
type Filter struct {
	TenantID string
	Kind     string
	Status   string
	Since    time.Time
	Limit    int
}

func (f *Filter) matches(op *Operation) bool {
	if f.TenantID != "" && op.TenantID != f.TenantID {
		return false
	}
	if f.Kind != "" && op.Kind != f.Kind {
		return false
	}
	if f.Status != "" && op.Status != f.Status {
		return false
	}
	if !f.Since.IsZero() && op.StartedAt.Before(f.Since) {
		return false
	}
	return true
}

// Sink accepts operation records.
type Sink interface {
	Record(ctx context.Context, op *Operation) error
}

// Store is a Sink that can be read back.
type Store interface {
	Sink
	Get(ctx context.Context, id string) (*Operation, error)
	// List returns matching operations, most recently started first.
	List(ctx context.Context, filter Filter) ([]Operation, error)
	Close() error
}

func cloneOperation(op *Operation) Operation {
	c := *op
	if op.CompletedAt != nil {
		t := *op.CompletedAt
		c.CompletedAt = &t
	}
	if op.Stats != nil {
		c.Stats = make(map[string]int, len(op.Stats))
		for k, v := range op.Stats {
			c.Stats[k] = v
		}
	}
	return c
}
