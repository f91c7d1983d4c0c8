// Soleil - Real-time Chart Synchronization and Broadcast Engine
// Copyright 2026 The Soleil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/murrayheaton/soleil-sub001

// Package eventbus forwards broadcast events to an external message broker so
// other services can react to chart changes.
package eventbus

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"

	"github.com/murrayheaton/soleil-sub001/internal/broadcast"
	"github.com/murrayheaton/soleil-sub001/internal/metrics"
)

// ErrClosed is returned by Forward after Close.
var ErrClosed = errors.New("eventbus: forwarder closed")

// Metadata keys set on every forwarded message.
const (
	MetadataTenantID  = "tenant_id"
	MetadataEventType = "event_type"
)

// Source is the broadcaster side of a Forwarder.
// *broadcast.Broadcaster satisfies it.
type Source interface {
	SubscribeAll(fn broadcast.Subscriber) (unsubscribe func())
}

// Forwarder publishes broadcast events on "{prefix}.{event_type}".
type Forwarder struct {
	pub    message.Publisher
	prefix string

	mu          sync.Mutex
	closed      bool
	unsubscribe []func()
}

// NewForwarder creates a forwarder. The prefix defaults to "soleil".
func NewForwarder(pub message.Publisher, prefix string) *Forwarder {
	if prefix == "" {
		prefix = "soleil"
	}
	return &Forwarder{pub: pub, prefix: prefix}
}

// Attach subscribes the forwarder to every event type of src.
func (f *Forwarder) Attach(src Source) {
	unsub := src.SubscribeAll(f.Forward)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unsubscribe = append(f.unsubscribe, unsub)
}

// Topic returns the broker topic for an event type.
func (f *Forwarder) Topic(t broadcast.EventType) string {
	return f.prefix + "." + string(t)
}

// Forward publishes one event.
func (f *Forwarder) Forward(ctx context.Context, ev broadcast.Event) error {
	f.mu.Lock()
	closed := f.closed
	f.mu.Unlock()
	if closed {
		return ErrClosed
	}

	topic := f.Topic(ev.Type)
	data, err := json.Marshal(ev)
	if err != nil {
		metrics.EventBusPublished.WithLabelValues(topic, "encode_error").Inc()
		return fmt.Errorf("encode %s event: %w", ev.Type, err)
	}

	msg := message.NewMessage(watermill.NewUUID(), data)
	msg.Metadata.Set(MetadataTenantID, ev.TenantID)
	msg.Metadata.Set(MetadataEventType, string(ev.Type))
	msg.SetContext(ctx)

	if err := f.pub.Publish(topic, msg); err != nil {
		metrics.EventBusPublished.WithLabelValues(topic, "error").Inc()
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	metrics.EventBusPublished.WithLabelValues(topic, "success").Inc()
	return nil
}

// Close detaches from all sources and closes the publisher.
func (f *Forwarder) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	unsubs := f.unsubscribe
	f.unsubscribe = nil
	f.mu.Unlock()

	for _, u := range unsubs {
		u()
	}
	return f.pub.Close()
}
