// Soleil - Real-time Chart Synchronization and Broadcast Engine
// Copyright 2026 The Soleil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/murrayheaton/soleil-sub001

// Package websocket tracks connected clients grouped by tenant and delivers
// messages to one connection, one tenant, or everyone.
//
// The Registry works with any duplex transport that implements Channel.
// Client adapts a gorilla/websocket connection; Handler upgrades HTTP requests
// and registers the resulting clients.
package websocket

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/murrayheaton/soleil-sub001/internal/logging"
	"github.com/murrayheaton/soleil-sub001/internal/metrics"
)

var (
	// ErrConnectionNotFound is returned by Send for unknown connection ids.
	ErrConnectionNotFound = errors.New("websocket: connection not found")

	// ErrConnectionClosed is returned by Send when delivery failed and the
	// connection was removed from the registry.
	ErrConnectionClosed = errors.New("websocket: connection closed")
)

// Channel is an outbound message channel to one client.
type Channel interface {
	Send(ctx context.Context, msg []byte) error
	Close() error
}

// Connection is a registered client channel.
type Connection struct {
	ID          string
	TenantID    string
	Channel     Channel
	ConnectedAt time.Time

	// seq orders deliveries deterministically (connect order).
	seq uint64
}

// Stats is a snapshot of registry occupancy.
type Stats struct {
	Total     int            `json:"total"`
	PerTenant map[string]int `json:"per_tenant"`
}

// Option configures a Registry.
type Option func(*Registry)

// WithSendTimeout bounds each individual send. Default: 5s.
func WithSendTimeout(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.sendTimeout = d
		}
	}
}

// Registry tracks connections in a flat id map and a tenant index.
// A single RWMutex guards both; sends happen outside the lock.
type Registry struct {
	sendTimeout time.Duration

	mu      sync.RWMutex
	conns   map[string]*Connection
	tenants map[string]map[string]*Connection
	nextSeq uint64
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		sendTimeout: 5 * time.Second,
		conns:       make(map[string]*Connection),
		tenants:     make(map[string]map[string]*Connection),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Connect registers ch under tenantID and returns the new connection id.
func (r *Registry) Connect(ch Channel, tenantID string) string {
	id := uuid.NewString()

	r.mu.Lock()
	r.nextSeq++
	conn := &Connection{
		ID:          id,
		TenantID:    tenantID,
		Channel:     ch,
		ConnectedAt: time.Now(),
		seq:         r.nextSeq,
	}
	r.conns[id] = conn
	byID, ok := r.tenants[tenantID]
	if !ok {
		byID = make(map[string]*Connection)
		r.tenants[tenantID] = byID
	}
	byID[id] = conn
	tenantCount := len(byID)
	total := len(r.conns)
	r.mu.Unlock()

	metrics.WSConnections.WithLabelValues(tenantID).Set(float64(tenantCount))
	logging.Info().
		Str("connection_id", id).
		Str("tenant_id", tenantID).
		Int("total_connections", total).
		Msg("websocket client connected")
	return id
}

// Disconnect removes the connection and closes its channel. It reports
// whether the connection was registered; repeated calls are no-ops.
func (r *Registry) Disconnect(id string) bool {
	conn, ok := r.remove(id)
	if !ok {
		return false
	}
	_ = conn.Channel.Close() // best-effort, the client may already be gone
	logging.Info().
		Str("connection_id", id).
		Str("tenant_id", conn.TenantID).
		Msg("websocket client disconnected")
	return true
}

// remove drops id from both indexes and returns the removed connection.
func (r *Registry) remove(id string) (*Connection, bool) {
	r.mu.Lock()
	conn, ok := r.conns[id]
	if !ok {
		r.mu.Unlock()
		return nil, false
	}
	delete(r.conns, id)
	remaining := 0
	if byID, exists := r.tenants[conn.TenantID]; exists {
		delete(byID, id)
		remaining = len(byID)
		if remaining == 0 {
			delete(r.tenants, conn.TenantID)
		}
	}
	r.mu.Unlock()

	metrics.WSConnections.WithLabelValues(conn.TenantID).Set(float64(remaining))
	return conn, true
}

// Send delivers msg to a single connection. A delivery failure removes the
// connection and returns ErrConnectionClosed.
func (r *Registry) Send(ctx context.Context, id string, msg []byte) error {
	r.mu.RLock()
	conn, ok := r.conns[id]
	r.mu.RUnlock()
	if !ok {
		return ErrConnectionNotFound
	}
	if !r.deliver(ctx, conn, msg) {
		return ErrConnectionClosed
	}
	return nil
}

// SendMessage encodes and sends a Message to a single connection.
func (r *Registry) SendMessage(ctx context.Context, id string, msg Message) error {
	data, err := msg.Encode()
	if err != nil {
		return err
	}
	return r.Send(ctx, id, data)
}

// BroadcastToTenant delivers msg to every connection of tenantID and returns
// how many deliveries succeeded. Connections of other tenants never see msg.
func (r *Registry) BroadcastToTenant(ctx context.Context, tenantID string, msg []byte) int {
	r.mu.RLock()
	targets := make([]*Connection, 0, len(r.tenants[tenantID]))
	for _, conn := range r.tenants[tenantID] {
		targets = append(targets, conn)
	}
	r.mu.RUnlock()

	return r.fanOut(ctx, targets, msg)
}

// BroadcastAll delivers msg to every registered connection.
func (r *Registry) BroadcastAll(ctx context.Context, msg []byte) int {
	r.mu.RLock()
	targets := make([]*Connection, 0, len(r.conns))
	for _, conn := range r.conns {
		targets = append(targets, conn)
	}
	r.mu.RUnlock()

	return r.fanOut(ctx, targets, msg)
}

func (r *Registry) fanOut(ctx context.Context, targets []*Connection, msg []byte) int {
	sort.Slice(targets, func(i, j int) bool { return targets[i].seq < targets[j].seq })

	delivered := 0
	for _, conn := range targets {
		if r.deliver(ctx, conn, msg) {
			delivered++
		}
	}
	return delivered
}

// deliver sends to one connection, removing it on failure.
func (r *Registry) deliver(ctx context.Context, conn *Connection, msg []byte) bool {
	sendCtx, cancel := context.WithTimeout(ctx, r.sendTimeout)
	err := conn.Channel.Send(sendCtx, msg)
	cancel()

	if err == nil {
		metrics.WSMessagesSent.Inc()
		return true
	}

	metrics.WSSendFailures.Inc()
	logging.Warn().
		Err(err).
		Str("connection_id", conn.ID).
		Str("tenant_id", conn.TenantID).
		Msg("websocket send failed, dropping connection")
	if _, removed := r.remove(conn.ID); removed {
		_ = conn.Channel.Close()
	}
	return false
}

// Connection returns a copy of the connection record.
func (r *Registry) Connection(id string) (Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.conns[id]
	if !ok {
		return Connection{}, false
	}
	return *conn, true
}

// TenantConnections returns the connection ids of a tenant in connect order.
func (r *Registry) TenantConnections(tenantID string) []string {
	r.mu.RLock()
	conns := make([]*Connection, 0, len(r.tenants[tenantID]))
	for _, conn := range r.tenants[tenantID] {
		conns = append(conns, conn)
	}
	r.mu.RUnlock()

	sort.Slice(conns, func(i, j int) bool { return conns[i].seq < conns[j].seq })
	ids := make([]string, len(conns))
	for i, conn := range conns {
		ids[i] = conn.ID
	}
	return ids
}

// Stats returns the number of connections in total and per tenant.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	per := make(map[string]int, len(r.tenants))
	for tenant, byID := range r.tenants {
		per[tenant] = len(byID)
	}
	return Stats{Total: len(r.conns), PerTenant: per}
}

// Close disconnects every connection.
func (r *Registry) Close() {
	r.mu.Lock()
	conns := make([]*Connection, 0, len(r.conns))
	for _, conn := range r.conns {
		conns = append(conns, conn)
	}
	for tenant := range r.tenants {
		metrics.WSConnections.WithLabelValues(tenant).Set(0)
	}
	r.conns = make(map[string]*Connection)
	r.tenants = make(map[string]map[string]*Connection)
	r.mu.Unlock()

	for _, conn := range conns {
		_ = conn.Channel.Close()
	}
	if len(conns) > 0 {
		logging.Info().Int("connections", len(conns)).Msg("websocket registry closed")
	}
}
