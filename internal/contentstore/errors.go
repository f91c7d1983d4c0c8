// Soleil - Real-time Chart Synchronization and Broadcast Engine
// Copyright 2026 The Soleil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/murrayheaton/soleil-sub001

package contentstore

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrRateLimited reports an upstream rate-limit response. Transient.
	ErrRateLimited = errors.New("contentstore: rate limited")

	// ErrTimeout reports an upstream timeout. Transient.
	ErrTimeout = errors.New("contentstore: timeout")

	// ErrCircuitOpen is returned without calling the backend while the
	// circuit breaker is open.
	ErrCircuitOpen = errors.New("contentstore: circuit open")

	// ErrNotFound reports a missing folder, file or shortcut.
	ErrNotFound = errors.New("contentstore: not found")

	// ErrInvalidID rejects identifiers that escape the store.
	ErrInvalidID = errors.New("contentstore: invalid id")
)

// RetryAfterError carries an upstream Retry-After hint.
type RetryAfterError struct {
	Err   error
	After time.Duration
}

func (e *RetryAfterError) Error() string {
	return fmt.Sprintf("%v (retry after %s)", e.Err, e.After)
}

func (e *RetryAfterError) Unwrap() error { return e.Err }

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrTimeout)
}

// resultLabel maps an error to the metric result label.
func resultLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrCircuitOpen):
		return "rejected"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}
