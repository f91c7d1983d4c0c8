// Soleil - Real-time Chart Synchronization and Broadcast Engine
// Copyright 2026 The Soleil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/murrayheaton/soleil-sub001

// Package broadcast turns sync activity into typed events and delivers them
// to connected clients of the right tenant.
//
// Producers call the Broadcast* methods, which only enqueue. A single consumer
// drains the queue in FIFO order, so events for one tenant reach each client
// in the order they were produced.
package broadcast

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/murrayheaton/soleil-sub001/internal/logging"
	"github.com/murrayheaton/soleil-sub001/internal/metrics"
	"github.com/murrayheaton/soleil-sub001/internal/websocket"
)

// Sender delivers encoded messages. *websocket.Registry satisfies it.
type Sender interface {
	BroadcastToTenant(ctx context.Context, tenantID string, msg []byte) int
	BroadcastAll(ctx context.Context, msg []byte) int
}

// Subscriber is an in-process listener. Errors and panics are logged and
// counted; they never affect delivery or other subscribers.
type Subscriber func(ctx context.Context, event Event) error

// Config configures a Broadcaster.
type Config struct {
	// QueueSize bounds the event queue. Default: 1000.
	QueueSize int
}

// Stats is a snapshot of broadcaster counters.
type Stats struct {
	Enqueued         int64 `json:"enqueued"`
	Delivered        int64 `json:"delivered"`
	Dropped          int64 `json:"dropped"`
	SubscriberErrors int64 `json:"subscriber_errors"`
	QueueDepth       int   `json:"queue_depth"`
}

type subscription struct {
	id uint64
	fn Subscriber
}

// Broadcaster queues events and delivers them through a Sender.
type Broadcaster struct {
	sender Sender
	queue  chan Event
	now    func() time.Time

	subMu     sync.RWMutex
	subs      map[EventType][]subscription
	allSubs   []subscription
	nextSubID uint64

	enqueued  atomic.Int64
	delivered atomic.Int64
	dropped   atomic.Int64
	subErrors atomic.Int64

	runMu   sync.Mutex
	cancel  context.CancelFunc
	stopped chan struct{}
}

// New creates a broadcaster delivering through sender.
func New(sender Sender, cfg Config) *Broadcaster {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	return &Broadcaster{
		sender: sender,
		queue:  make(chan Event, cfg.QueueSize),
		now:    time.Now,
		subs:   make(map[EventType][]subscription),
	}
}

// Subscribe registers fn for one event type and returns a function that
// removes it.
func (b *Broadcaster) Subscribe(eventType EventType, fn Subscriber) (unsubscribe func()) {
	b.subMu.Lock()
	b.nextSubID++
	id := b.nextSubID
	b.subs[eventType] = append(b.subs[eventType], subscription{id: id, fn: fn})
	b.subMu.Unlock()

	return func() {
		b.subMu.Lock()
		defer b.subMu.Unlock()
		b.subs[eventType] = removeSubscription(b.subs[eventType], id)
	}
}

// SubscribeAll registers fn for every event type.
func (b *Broadcaster) SubscribeAll(fn Subscriber) (unsubscribe func()) {
	b.subMu.Lock()
	b.nextSubID++
	id := b.nextSubID
	b.allSubs = append(b.allSubs, subscription{id: id, fn: fn})
	b.subMu.Unlock()

	return func() {
		b.subMu.Lock()
		defer b.subMu.Unlock()
		b.allSubs = removeSubscription(b.allSubs, id)
	}
}

func removeSubscription(subs []subscription, id uint64) []subscription {
	out := subs[:0:0]
	for _, s := range subs {
		if s.id != id {
			out = append(out, s)
		}
	}
	return out
}

// Publish enqueues an event without blocking. It returns false when the
// queue is full and the event was dropped.
func (b *Broadcaster) Publish(event Event) bool {
	if event.Timestamp.IsZero() {
		event.Timestamp = b.now().UTC()
	}
	if event.Payload == nil {
		event.Payload = map[string]any{}
	}

	select {
	case b.queue <- event:
		b.enqueued.Add(1)
		metrics.BroadcastEvents.WithLabelValues(string(event.Type), "enqueued").Inc()
		return true
	default:
		b.dropped.Add(1)
		metrics.BroadcastEvents.WithLabelValues(string(event.Type), "dropped").Inc()
		logging.Warn().
			Str("event_type", string(event.Type)).
			Str("tenant_id", event.TenantID).
			Msg("broadcast queue full, event dropped")
		return false
	}
}

// BroadcastSyncStarted announces that an operation began.
func (b *Broadcaster) BroadcastSyncStarted(tenantID, operationID, kind string) bool {
	return b.Publish(Event{
		Type:     EventSyncStarted,
		TenantID: tenantID,
		Payload: map[string]any{
			"operation_id": operationID,
			"kind":         kind,
		},
	})
}

// BroadcastSyncProgress reports operation progress.
func (b *Broadcaster) BroadcastSyncProgress(tenantID, operationID string, progress, total int, message string) bool {
	return b.Publish(Event{
		Type:     EventSyncProgress,
		TenantID: tenantID,
		Payload: map[string]any{
			"operation_id": operationID,
			"progress":     progress,
			"total":        total,
			"percentage":   Percentage(progress, total),
			"message":      message,
		},
	})
}

// BroadcastSyncCompleted announces a successful operation with its counters.
func (b *Broadcaster) BroadcastSyncCompleted(tenantID, operationID string, stats map[string]int) bool {
	if stats == nil {
		stats = map[string]int{}
	}
	return b.Publish(Event{
		Type:     EventSyncCompleted,
		TenantID: tenantID,
		Payload: map[string]any{
			"operation_id": operationID,
			"stats":        stats,
		},
	})
}

// BroadcastSyncFailed announces a failed operation.
func (b *Broadcaster) BroadcastSyncFailed(tenantID, operationID, errMsg string) bool {
	return b.Publish(Event{
		Type:     EventSyncFailed,
		TenantID: tenantID,
		Payload: map[string]any{
			"operation_id": operationID,
			"error":        errMsg,
		},
	})
}

// BroadcastFileAdded announces a new file.
func (b *Broadcaster) BroadcastFileAdded(tenantID string, file FileInfo) bool {
	return b.publishFile(EventFileAdded, tenantID, file)
}

// BroadcastFileUpdated announces a changed file.
func (b *Broadcaster) BroadcastFileUpdated(tenantID string, file FileInfo) bool {
	return b.publishFile(EventFileUpdated, tenantID, file)
}

// BroadcastFileRemoved announces a removed file.
func (b *Broadcaster) BroadcastFileRemoved(tenantID string, file FileInfo) bool {
	return b.publishFile(EventFileRemoved, tenantID, file)
}

func (b *Broadcaster) publishFile(t EventType, tenantID string, file FileInfo) bool {
	return b.Publish(Event{
		Type:     t,
		TenantID: tenantID,
		Payload:  map[string]any{"file": file},
	})
}

// BroadcastSetlistUpdated announces a setlist change.
func (b *Broadcaster) BroadcastSetlistUpdated(tenantID, setlistID string, data map[string]any) bool {
	return b.Publish(Event{
		Type:     EventSetlistUpdated,
		TenantID: tenantID,
		Payload: map[string]any{
			"setlist_id": setlistID,
			"data":       data,
		},
	})
}

// Start launches the consumer. Calling Start while running is a no-op.
func (b *Broadcaster) Start(ctx context.Context) {
	b.runMu.Lock()
	defer b.runMu.Unlock()
	if b.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	b.cancel = cancel
	b.stopped = done

	go func() {
		defer close(done)
		b.run(ctx)
	}()
}

// Stop cancels the consumer, delivers what is already queued and waits for
// it to exit.
func (b *Broadcaster) Stop() {
	b.runMu.Lock()
	cancel, done := b.cancel, b.stopped
	b.cancel, b.stopped = nil, nil
	b.runMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Serve runs the consumer in the calling goroutine until ctx is cancelled.
// It implements suture.Service.
func (b *Broadcaster) Serve(ctx context.Context) error {
	b.run(ctx)
	return ctx.Err()
}

// String implements fmt.Stringer for supervisor logs.
func (b *Broadcaster) String() string {
	return "event-broadcaster"
}

func (b *Broadcaster) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			b.drain()
			return
		case event := <-b.queue:
			b.dispatch(ctx, event)
		}
	}
}

// drain delivers events still queued at shutdown.
func (b *Broadcaster) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		select {
		case event := <-b.queue:
			b.dispatch(ctx, event)
		default:
			return
		}
	}
}

func (b *Broadcaster) dispatch(ctx context.Context, event Event) {
	msg, err := websocket.Message{
		Type:      string(event.Type),
		TenantID:  event.TenantID,
		Data:      event.Payload,
		Timestamp: event.Timestamp,
	}.Encode()
	if err != nil {
		logging.Error().Err(err).Str("event_type", string(event.Type)).Msg("failed to encode broadcast event")
	} else if b.sender != nil {
		var n int
		if event.TenantID == "" {
			n = b.sender.BroadcastAll(ctx, msg)
		} else {
			n = b.sender.BroadcastToTenant(ctx, event.TenantID, msg)
		}
		logging.Debug().
			Str("event_type", string(event.Type)).
			Str("tenant_id", event.TenantID).
			Int("recipients", n).
			Msg("broadcast delivered")
	}
	b.delivered.Add(1)
	metrics.BroadcastEvents.WithLabelValues(string(event.Type), "delivered").Inc()

	b.notifySubscribers(ctx, event)
}

func (b *Broadcaster) notifySubscribers(ctx context.Context, event Event) {
	b.subMu.RLock()
	subs := make([]subscription, 0, len(b.subs[event.Type])+len(b.allSubs))
	subs = append(subs, b.subs[event.Type]...)
	subs = append(subs, b.allSubs...)
	b.subMu.RUnlock()

	for _, s := range subs {
		if err := b.invoke(ctx, s.fn, event); err != nil {
			b.subErrors.Add(1)
			logging.Error().Err(err).Str("event_type", string(event.Type)).Msg("broadcast subscriber failed")
		}
	}
}

func (b *Broadcaster) invoke(ctx context.Context, fn Subscriber, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("subscriber panic: %v", r)
		}
	}()
	return fn(ctx, event)
}

// Stats returns a snapshot of the broadcaster counters.
func (b *Broadcaster) Stats() Stats {
	return Stats{
		Enqueued:         b.enqueued.Load(),
		Delivered:        b.delivered.Load(),
		Dropped:          b.dropped.Load(),
		SubscriberErrors: b.subErrors.Load(),
		QueueDepth:       len(b.queue),
	}
}
