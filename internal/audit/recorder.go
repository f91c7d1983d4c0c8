// Soleil - Real-time Chart Synchronization and Broadcast Engine
// Copyright 2026 The Soleil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/murrayheaton/soleil-sub001

package audit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/murrayheaton/soleil-sub001/internal/logging"
	"github.com/murrayheaton/soleil-sub001/internal/metrics"
)

// ErrBufferFull is returned by Recorder.Record when the write buffer is full.
var ErrBufferFull = errors.New("audit: write buffer full")

// RecorderConfig configures a Recorder.
type RecorderConfig struct {
	// BufferSize is the size of the async write buffer. Default: 1000.
	BufferSize int

	// WriteTimeout bounds each store write. Default: 5s.
	WriteTimeout time.Duration
}

// Recorder is a Sink that writes to a Store from a single background
// goroutine, so callers never wait on the store. Records for the same
// operation are written in the order they were submitted.
type Recorder struct {
	store   Store
	cfg     RecorderConfig
	ops     chan Operation
	stopCh  chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
	dropped atomic.Int64
	failed  atomic.Int64
}

// NewRecorder starts a recorder writing to store.
func NewRecorder(store Store, cfg RecorderConfig) *Recorder {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1000
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}

	r := &Recorder{
		store:  store,
		cfg:    cfg,
		ops:    make(chan Operation, cfg.BufferSize),
		stopCh: make(chan struct{}),
	}

	r.wg.Add(1)
	go r.asyncWriter()

	return r
}

// Record queues a copy of op for writing.
func (r *Recorder) Record(_ context.Context, op *Operation) error {
	if op == nil {
		return errors.New("operation cannot be nil")
	}
	select {
	case r.ops <- cloneOperation(op):
		return nil
	default:
		r.dropped.Add(1)
		logging.Warn().Str("operation_id", op.ID).Msg("Audit buffer full, dropping operation record")
		return ErrBufferFull
	}
}

func (r *Recorder) asyncWriter() {
	defer r.wg.Done()

	for {
		select {
		case <-r.stopCh:
			for {
				select {
				case op := <-r.ops:
					r.write(&op)
				default:
					return
				}
			}
		case op := <-r.ops:
			r.write(&op)
		}
	}
}

func (r *Recorder) write(op *Operation) {
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.WriteTimeout)
	defer cancel()

	err := r.store.Record(ctx, op)
	metrics.RecordAuditWrite(err)
	if err != nil {
		r.failed.Add(1)
		logging.Error().Err(err).Str("operation_id", op.ID).Msg("Failed to write audit record")
	}
}

// Dropped returns how many records were rejected because the buffer was full.
func (r *Recorder) Dropped() int64 {
	return r.dropped.Load()
}

// Failed returns how many store writes failed.
func (r *Recorder) Failed() int64 {
	return r.failed.Load()
}

// Close flushes queued records and stops the writer. It does not close the
// underlying store.
func (r *Recorder) Close() error {
	r.once.Do(func() {
		close(r.stopCh)
	})
	r.wg.Wait()
	return nil
}
