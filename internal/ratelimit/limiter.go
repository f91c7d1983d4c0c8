// Soleil - Real-time Chart Synchronization and Broadcast Engine
// Copyright 2026 The Soleil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/murrayheaton/soleil-sub001

// Package ratelimit throttles outbound calls to the content store.
//
// Limiter is a token bucket: tokens refill continuously at Rate per second up
// to Burst, and Acquire blocks only the calling goroutine until enough tokens
// are available. Dynamic adjusts the rate from upstream feedback (AIMD).
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/murrayheaton/soleil-sub001/internal/metrics"
)

var (
	// ErrInvalidRate is returned for a non-positive refill rate.
	ErrInvalidRate = errors.New("ratelimit: rate must be positive")

	// ErrInvalidBurst is returned for a non-positive burst.
	ErrInvalidBurst = errors.New("ratelimit: burst must be positive")
)

// Stats is a snapshot of limiter activity.
type Stats struct {
	TotalRequests   int64
	TotalWaitTime   time.Duration
	RateLimitHits   int64
	Rate            float64
	Burst           int
	TokensAvailable float64
}

// Limiter is a token-bucket rate limiter safe for concurrent use.
type Limiter struct {
	name    string
	burst   int
	limiter *rate.Limiter

	// statsMu guards the counters below; the bucket has its own lock.
	statsMu       sync.Mutex
	totalRequests int64
	totalWait     time.Duration
	hits          int64
}

// New creates a limiter refilling at r tokens per second with capacity burst.
// The bucket starts full.
func New(r float64, burst int) (*Limiter, error) {
	return NewNamed("default", r, burst)
}

// NewNamed is New with a name used as the metrics label.
func NewNamed(name string, r float64, burst int) (*Limiter, error) {
	if r <= 0 {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidRate, r)
	}
	if burst <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidBurst, burst)
	}
	metrics.RateLimitRate.WithLabelValues(name).Set(r)
	return &Limiter{
		name:    name,
		burst:   burst,
		limiter: rate.NewLimiter(rate.Limit(r), burst),
	}, nil
}

// Acquire takes tokens from the bucket, sleeping the caller until they are
// available, and returns how long it waited. Requests larger than the burst
// are granted in burst-sized chunks. The only error is ctx.Err() when ctx is
// cancelled while waiting; the pending reservation is then given back.
func (l *Limiter) Acquire(ctx context.Context, tokens int) (time.Duration, error) {
	if tokens <= 0 {
		tokens = 1
	}

	var waited time.Duration
	var hit bool
	for remaining := tokens; remaining > 0; {
		n := min(remaining, l.burst)

		now := time.Now()
		res := l.limiter.ReserveN(now, n)
		delay := res.DelayFrom(now)
		if delay > 0 {
			hit = true
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				res.Cancel()
				waited += time.Since(now)
				l.record(waited, hit)
				return waited, ctx.Err()
			case <-timer.C:
			}
			waited += delay
		}
		remaining -= n
	}

	l.record(waited, hit)
	return waited, nil
}

func (l *Limiter) record(waited time.Duration, hit bool) {
	l.statsMu.Lock()
	l.totalRequests++
	l.totalWait += waited
	if hit {
		l.hits++
	}
	l.statsMu.Unlock()

	metrics.RateLimitWait.WithLabelValues(l.name).Observe(waited.Seconds())
	if hit {
		metrics.RateLimitHits.WithLabelValues(l.name).Inc()
	}
}

// Rate returns the current refill rate in tokens per second.
func (l *Limiter) Rate() float64 {
	return float64(l.limiter.Limit())
}

// Burst returns the bucket capacity.
func (l *Limiter) Burst() int {
	return l.burst
}

// setRate changes the refill rate, keeping tokens accrued so far.
func (l *Limiter) setRate(r float64) {
	l.limiter.SetLimit(rate.Limit(r))
	metrics.RateLimitRate.WithLabelValues(l.name).Set(r)
}

// Stats returns a snapshot of the limiter counters.
func (l *Limiter) Stats() Stats {
	l.statsMu.Lock()
	defer l.statsMu.Unlock()
	return Stats{
		TotalRequests:   l.totalRequests,
		TotalWaitTime:   l.totalWait,
		RateLimitHits:   l.hits,
		Rate:            l.Rate(),
		Burst:           l.burst,
		TokensAvailable: l.limiter.Tokens(),
	}
}
