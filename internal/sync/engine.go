// Soleil - Real-time Chart Synchronization and Broadcast Engine
// Copyright 2026 The Soleil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/murrayheaton/soleil-sub001

// Package sync turns webhook notifications and manual triggers into typed
// events and drains them through registered handlers with bounded
// concurrency.
//
// Webhook ingestion and triggers only enqueue. A single consumer dequeues in
// FIFO order and dispatches each event on its own goroutine once a slot in a
// weighted semaphore of MaxConcurrentSyncs is free, so events may complete out
// of order. Failed operations are not retried.
package sync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	gosync "sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/murrayheaton/soleil-sub001/internal/audit"
	"github.com/murrayheaton/soleil-sub001/internal/logging"
	"github.com/murrayheaton/soleil-sub001/internal/metrics"
)

// Errors returned synchronously to callers.
var (
	ErrQueueFull     = errors.New("sync: event queue full")
	ErrInvalidTenant = errors.New("sync: tenant id is required")
	ErrInvalidConfig = errors.New("sync: invalid configuration")
	ErrNilHandler    = errors.New("sync: handler is nil")
)

// Handler processes one event. Returning an error marks the event failed and,
// for triggered syncs, fails the operation.
type Handler func(ctx context.Context, event Event) error

// Broadcaster receives operation lifecycle notifications.
// *broadcast.Broadcaster satisfies it.
type Broadcaster interface {
	BroadcastSyncStarted(tenantID, operationID, kind string) bool
	BroadcastSyncCompleted(tenantID, operationID string, stats map[string]int) bool
	BroadcastSyncFailed(tenantID, operationID, errMsg string) bool
}

// Config configures an Engine.
type Config struct {
	// MaxConcurrentSyncs bounds how many events are processed at once.
	MaxConcurrentSyncs int

	// QueueSize bounds the pending event queue.
	QueueSize int

	// PollInterval is the housekeeping tick of the consumer. Default: 1s.
	PollInterval time.Duration

	// OperationRetention is how long terminal operations stay queryable.
	// Zero keeps them forever.
	OperationRetention time.Duration

	// ShutdownGrace is how long Stop lets in-flight handlers finish before
	// cancelling their context. Default: 30s.
	ShutdownGrace time.Duration
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrentSyncs: 5,
		QueueSize:          1000,
		PollInterval:       time.Second,
		OperationRetention: 24 * time.Hour,
		ShutdownGrace:      30 * time.Second,
	}
}

// Option customizes an Engine.
type Option func(*Engine)

// WithOperationSink records every operation transition to sink.
func WithOperationSink(sink audit.Sink) Option {
	return func(e *Engine) { e.sink = sink }
}

// WithBroadcaster announces operation lifecycle through b.
func WithBroadcaster(b Broadcaster) Option {
	return func(e *Engine) { e.broadcaster = b }
}

// WithParsers replaces the webhook parsers. They are tried in order.
func WithParsers(parsers ...WebhookParser) Option {
	return func(e *Engine) { e.parsers = parsers }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// Stats is a snapshot of engine counters.
type Stats struct {
	EventsReceived   int64          `json:"events_received"`
	EventsProcessed  int64          `json:"events_processed"`
	EventsFailed     int64          `json:"events_failed"`
	EventsDropped    int64          `json:"events_dropped"`
	WebhooksRejected int64          `json:"webhooks_rejected"`
	HandlerErrors    int64          `json:"handler_errors"`
	QueueDepth       int            `json:"queue_depth"`
	ActiveSyncs      int64          `json:"active_syncs"`
	MaxActiveSyncs   int64          `json:"max_active_syncs"`
	Operations       map[Status]int `json:"operations"`
	Running          bool           `json:"running"`
}

// Engine is the sync event pipeline.
type Engine struct {
	cfg         Config
	parsers     []WebhookParser
	sink        audit.Sink
	broadcaster Broadcaster
	now         func() time.Time

	queue chan Event
	sem   *semaphore.Weighted
	ops   *operationTable

	handlersMu gosync.RWMutex
	handlers   map[EventType][]Handler

	runMu         gosync.Mutex
	running       bool
	cancel        context.CancelFunc
	cancelHandler context.CancelFunc
	done          chan struct{}
	workers       gosync.WaitGroup

	received      atomic.Int64
	processed     atomic.Int64
	failed        atomic.Int64
	dropped       atomic.Int64
	rejected      atomic.Int64
	handlerErrors atomic.Int64
	active        atomic.Int64
	maxActive     atomic.Int64
}

// New validates cfg and builds a stopped engine.
func New(cfg Config, opts ...Option) (*Engine, error) {
	if cfg.MaxConcurrentSyncs <= 0 {
		return nil, fmt.Errorf("%w: MaxConcurrentSyncs must be positive, got %d", ErrInvalidConfig, cfg.MaxConcurrentSyncs)
	}
	if cfg.QueueSize <= 0 {
		return nil, fmt.Errorf("%w: QueueSize must be positive, got %d", ErrInvalidConfig, cfg.QueueSize)
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.OperationRetention < 0 {
		return nil, fmt.Errorf("%w: OperationRetention must not be negative", ErrInvalidConfig)
	}
	if cfg.ShutdownGrace < 0 {
		return nil, fmt.Errorf("%w: ShutdownGrace must not be negative", ErrInvalidConfig)
	}
	if cfg.ShutdownGrace == 0 {
		cfg.ShutdownGrace = 30 * time.Second
	}

	e := &Engine{
		cfg:      cfg,
		parsers:  DefaultParsers(),
		now:      time.Now,
		queue:    make(chan Event, cfg.QueueSize),
		sem:      semaphore.NewWeighted(int64(cfg.MaxConcurrentSyncs)),
		ops:      newOperationTable(),
		handlers: make(map[EventType][]Handler),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// RegisterEventHandler adds h for eventType. Handlers for one type run in
// registration order.
func (e *Engine) RegisterEventHandler(eventType EventType, h Handler) error {
	if !eventType.Valid() {
		return fmt.Errorf("%w: %d", ErrUnknownEventType, int(eventType))
	}
	if h == nil {
		return ErrNilHandler
	}

	e.handlersMu.Lock()
	defer e.handlersMu.Unlock()
	e.handlers[eventType] = append(e.handlers[eventType], h)
	return nil
}

// HandleWebhook parses payload and enqueues the resulting event. It never
// fails: unrecognized payloads return (nil, false) and a full queue returns
// the parsed event with false.
func (e *Engine) HandleWebhook(ctx context.Context, payload map[string]any) (*Event, bool) {
	ev, ok := parsePayload(e.parsers, payload)
	if !ok {
		e.rejected.Add(1)
		logging.Ctx(ctx).Warn().
			Int("fields", len(payload)).
			Msg("Unrecognized webhook payload dropped")
		return nil, false
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = e.now().UTC()
	}

	if !e.enqueue(*ev) {
		logging.Ctx(ctx).Warn().
			Str("event_type", ev.Type.String()).
			Str("resource_id", ev.ResourceID).
			Msg("Sync queue full, webhook event dropped")
		return ev, false
	}

	logging.Ctx(ctx).Debug().
		Str("event_type", ev.Type.String()).
		Str("resource_id", ev.ResourceID).
		Str("tenant_id", ev.TenantID).
		Msg("Webhook event queued")
	return ev, true
}

// TriggerFullSync queues a full reconciliation for tenantID and returns the
// new operation id.
func (e *Engine) TriggerFullSync(ctx context.Context, tenantID string, creds Credentials) (string, error) {
	return e.trigger(ctx, KindFull, tenantID, "", creds)
}

// TriggerDeltaSync queues a reconciliation scoped to resourceID.
func (e *Engine) TriggerDeltaSync(ctx context.Context, tenantID, resourceID string, creds Credentials) (string, error) {
	return e.trigger(ctx, KindDelta, tenantID, resourceID, creds)
}

func (e *Engine) trigger(ctx context.Context, kind Kind, tenantID, resourceID string, creds Credentials) (string, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return "", ErrInvalidTenant
	}

	now := e.now().UTC()
	op := e.ops.create(kind, tenantID, resourceID, now)

	eventType := FullSyncRequested
	resourceType := ResourceFolder
	if kind == KindDelta {
		eventType = DeltaSyncRequested
		resourceType = ResourceDriveFile
	}
	ev := Event{
		Type:         eventType,
		ResourceID:   resourceID,
		ResourceType: resourceType,
		TenantID:     tenantID,
		Timestamp:    now,
		Metadata: SyncRequest{
			OperationID: op.ID,
			Kind:        kind,
			Credentials: creds,
		},
	}

	e.record(ctx, &op)
	if !e.enqueue(ev) {
		if failed, ok := e.ops.transition(op.ID, StatusFailed, ErrQueueFull.Error(), e.now().UTC()); ok {
			e.record(ctx, &failed)
		}
		logging.Ctx(ctx).Warn().
			Str("operation_id", op.ID).
			Str("tenant_id", tenantID).
			Msg("Sync queue full, operation failed")
		return "", ErrQueueFull
	}

	logging.Ctx(ctx).Info().
		Str("operation_id", op.ID).
		Str("tenant_id", tenantID).
		Str("kind", string(kind)).
		Msg("Sync operation queued")
	return op.ID, nil
}

func (e *Engine) enqueue(ev Event) bool {
	e.received.Add(1)
	metrics.SyncEvents.WithLabelValues(ev.Type.String(), "received").Inc()

	select {
	case e.queue <- ev:
		metrics.SyncQueueDepth.Set(float64(len(e.queue)))
		return true
	default:
		e.dropped.Add(1)
		metrics.SyncEvents.WithLabelValues(ev.Type.String(), "dropped").Inc()
		return false
	}
}

// Start launches the queue consumer. Calling Start on a running engine is a
// no-op.
func (e *Engine) Start(ctx context.Context) error {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	if e.running {
		return nil
	}

	handlerCtx, cancelHandler := context.WithCancel(context.WithoutCancel(ctx))
	ctx, cancel := context.WithCancel(ctx)
	e.running = true
	e.cancel = cancel
	e.cancelHandler = cancelHandler
	e.done = make(chan struct{})

	go func(done chan struct{}) {
		defer close(done)
		e.consume(ctx, handlerCtx)
	}(e.done)

	logging.Info().
		Int("max_concurrent_syncs", e.cfg.MaxConcurrentSyncs).
		Int("queue_size", e.cfg.QueueSize).
		Msg("Sync engine started")
	return nil
}

// Stop cancels the consumer, fails every operation still queued and waits
// for in-flight handlers to return. Handlers keep an uncancelled context for
// ShutdownGrace; after that their context is cancelled and Stop keeps
// waiting. Stopping a stopped engine is a no-op.
func (e *Engine) Stop() error {
	e.runMu.Lock()
	if !e.running {
		e.runMu.Unlock()
		return nil
	}
	e.running = false
	cancel, cancelHandler, done := e.cancel, e.cancelHandler, e.done
	e.runMu.Unlock()

	cancel()
	<-done
	abandoned := e.drainQueue()

	drained := make(chan struct{})
	go func() {
		e.workers.Wait()
		close(drained)
	}()

	timer := time.NewTimer(e.cfg.ShutdownGrace)
	select {
	case <-drained:
	case <-timer.C:
		logging.Warn().
			Dur("grace", e.cfg.ShutdownGrace).
			Msg("Sync handlers still running after shutdown grace, cancelling")
		cancelHandler()
		<-drained
	}
	timer.Stop()
	cancelHandler()

	logging.Info().Int("abandoned", abandoned).Msg("Sync engine stopped")
	return nil
}

// Serve runs the engine until ctx is cancelled. It implements
// suture.Service.
func (e *Engine) Serve(ctx context.Context) error {
	if err := e.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	if err := e.Stop(); err != nil {
		return err
	}
	return ctx.Err()
}

// String implements fmt.Stringer for supervisor logs.
func (e *Engine) String() string {
	return "sync-engine"
}

// consume dequeues until ctx is cancelled. Handlers run on handlerCtx, which
// Stop cancels only after the shutdown grace.
func (e *Engine) consume(ctx, handlerCtx context.Context) {
	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.housekeeping()
		case ev := <-e.queue:
			metrics.SyncQueueDepth.Set(float64(len(e.queue)))
			e.begin(handlerCtx, ev)
			if err := e.sem.Acquire(ctx, 1); err != nil {
				e.abandon(ev)
				return
			}
			e.workers.Add(1)
			go func(ev Event) {
				defer e.workers.Done()
				defer e.sem.Release(1)
				e.process(handlerCtx, ev)
			}(ev)
		}
	}
}

// begin moves a dequeued operation to in_progress.
func (e *Engine) begin(ctx context.Context, ev Event) {
	req, ok := ev.Metadata.(SyncRequest)
	if !ok {
		return
	}
	if op, ok := e.ops.transition(req.OperationID, StatusInProgress, "", e.now().UTC()); ok {
		e.record(ctx, &op)
		if e.broadcaster != nil {
			e.broadcaster.BroadcastSyncStarted(op.TenantID, op.ID, string(op.Kind))
		}
	}
}

// drainQueue abandons every event left in the queue and returns how many
// there were.
func (e *Engine) drainQueue() int {
	n := 0
	for {
		select {
		case ev := <-e.queue:
			e.abandon(ev)
			n++
		default:
			metrics.SyncQueueDepth.Set(0)
			return n
		}
	}
}

// abandon drops an event that will not be processed because the engine is
// stopping. Its operation, if any, fails.
func (e *Engine) abandon(ev Event) {
	e.dropped.Add(1)
	metrics.SyncEvents.WithLabelValues(ev.Type.String(), "dropped").Inc()

	req, ok := ev.Metadata.(SyncRequest)
	if !ok {
		return
	}
	op, ok := e.ops.transition(req.OperationID, StatusFailed, "engine stopped", e.now().UTC())
	if !ok {
		return
	}
	e.record(context.Background(), &op)
	if e.broadcaster != nil {
		e.broadcaster.BroadcastSyncFailed(op.TenantID, op.ID, op.Error)
	}
}

func (e *Engine) housekeeping() {
	metrics.SyncQueueDepth.Set(float64(len(e.queue)))
	if e.cfg.OperationRetention > 0 {
		if n := e.ops.prune(e.now().Add(-e.cfg.OperationRetention)); n > 0 {
			logging.Debug().Int("pruned", n).Msg("Pruned finished sync operations")
		}
	}
}

func (e *Engine) process(ctx context.Context, ev Event) {
	active := e.active.Add(1)
	metrics.SyncActive.Set(float64(active))
	for {
		peak := e.maxActive.Load()
		if active <= peak || e.maxActive.CompareAndSwap(peak, active) {
			break
		}
	}
	defer func() {
		metrics.SyncActive.Set(float64(e.active.Add(-1)))
	}()

	req, hasOp := ev.Metadata.(SyncRequest)
	if hasOp {
		ctx = withOperation(ctx, e.ops, req.OperationID)
	}

	start := time.Now()
	err := e.dispatch(ctx, ev)

	if err != nil {
		e.failed.Add(1)
		metrics.SyncEvents.WithLabelValues(ev.Type.String(), "failed").Inc()
	} else {
		e.processed.Add(1)
		metrics.SyncEvents.WithLabelValues(ev.Type.String(), "processed").Inc()
	}

	if hasOp {
		e.finishOperation(ctx, req, err, time.Since(start))
	}
}

// dispatch runs every handler for the event. All handlers run even when one
// fails; the joined error is returned.
func (e *Engine) dispatch(ctx context.Context, ev Event) error {
	e.handlersMu.RLock()
	handlers := append([]Handler(nil), e.handlers[ev.Type]...)
	e.handlersMu.RUnlock()

	var errs []error
	for i, h := range handlers {
		if err := e.invoke(ctx, h, ev); err != nil {
			e.handlerErrors.Add(1)
			logging.Ctx(ctx).Error().Err(err).
				Str("event_type", ev.Type.String()).
				Str("resource_id", ev.ResourceID).
				Str("tenant_id", ev.TenantID).
				Int("handler", i).
				Msg("Sync handler failed")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (e *Engine) invoke(ctx context.Context, h Handler, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(ctx, ev)
}

func (e *Engine) finishOperation(ctx context.Context, req SyncRequest, err error, elapsed time.Duration) {
	status, errMsg := StatusCompleted, ""
	if err != nil {
		status, errMsg = StatusFailed, err.Error()
	}

	op, ok := e.ops.transition(req.OperationID, status, errMsg, e.now().UTC())
	if !ok {
		return
	}
	metrics.SyncOperationDuration.WithLabelValues(string(op.Kind), string(op.Status)).Observe(elapsed.Seconds())
	e.record(ctx, &op)

	var event *zerolog.Event
	if err != nil {
		event = logging.Ctx(ctx).Warn().Err(err)
	} else {
		event = logging.Ctx(ctx).Info()
	}
	event.Str("operation_id", op.ID).
		Str("tenant_id", op.TenantID).
		Str("status", string(op.Status)).
		Dur("duration", elapsed).
		Msg("Sync operation finished")

	if e.broadcaster == nil {
		return
	}
	if err != nil {
		e.broadcaster.BroadcastSyncFailed(op.TenantID, op.ID, errMsg)
	} else {
		e.broadcaster.BroadcastSyncCompleted(op.TenantID, op.ID, op.Stats)
	}
}

// record writes op to the sink. Sink failures are logged only.
func (e *Engine) record(ctx context.Context, op *Operation) {
	if e.sink == nil {
		return
	}
	if err := e.sink.Record(context.WithoutCancel(ctx), op.auditRecord()); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("operation_id", op.ID).Msg("Failed to record sync operation")
	}
}

// GetOperation returns a copy of the operation with the given id.
func (e *Engine) GetOperation(id string) (Operation, bool) {
	return e.ops.get(id)
}

// ListOperations returns a tenant's operations, newest first. An empty
// tenantID lists every tenant.
func (e *Engine) ListOperations(tenantID string) []Operation {
	return e.ops.list(tenantID)
}

// GetStats returns a snapshot of engine counters.
func (e *Engine) GetStats() Stats {
	e.runMu.Lock()
	running := e.running
	e.runMu.Unlock()

	return Stats{
		EventsReceived:   e.received.Load(),
		EventsProcessed:  e.processed.Load(),
		EventsFailed:     e.failed.Load(),
		EventsDropped:    e.dropped.Load(),
		WebhooksRejected: e.rejected.Load(),
		HandlerErrors:    e.handlerErrors.Load(),
		QueueDepth:       len(e.queue),
		ActiveSyncs:      e.active.Load(),
		MaxActiveSyncs:   e.maxActive.Load(),
		Operations:       e.ops.countByStatus(),
		Running:          running,
	}
}

type operationKey struct{}

type operationHandle struct {
	table *operationTable
	id    string
}

func withOperation(ctx context.Context, table *operationTable, id string) context.Context {
	return context.WithValue(ctx, operationKey{}, operationHandle{table: table, id: id})
}

// AddOperationStats merges counters into the operation being processed by
// ctx. It is a no-op outside a triggered sync.
func AddOperationStats(ctx context.Context, stats map[string]int) {
	h, ok := ctx.Value(operationKey{}).(operationHandle)
	if !ok {
		return
	}
	h.table.addStats(h.id, stats)
}

// OperationIDFromContext returns the id of the operation being processed.
func OperationIDFromContext(ctx context.Context) (string, bool) {
	h, ok := ctx.Value(operationKey{}).(operationHandle)
	return h.id, ok
}
