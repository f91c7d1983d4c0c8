// Soleil - Real-time Chart Synchronization and Broadcast Engine
// Copyright 2026 The Soleil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/murrayheaton/soleil-sub001

package api

import "errors"

var (
	// ErrMissingTenant rejects websocket upgrades without a tenant.
	ErrMissingTenant = errors.New("tenant id required")

	// ErrInvalidSignature rejects webhooks whose HMAC does not verify.
	ErrInvalidSignature = errors.New("webhook signature verification failed")
)
