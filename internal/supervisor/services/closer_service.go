// Soleil - Real-time Chart Synchronization and Broadcast Engine
// Copyright 2026 The Soleil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/murrayheaton/soleil-sub001

package services

import (
	"context"
	"fmt"
	"io"

	"github.com/thejerf/suture/v4"

	"github.com/murrayheaton/soleil-sub001/internal/logging"
)

// CloserService holds a resource open for the life of the tree and closes it
// on shutdown. Used for the audit recorder, the event forwarder and the Redis
// client.
type CloserService struct {
	closer io.Closer
	name   string
}

// NewCloserService wraps c under the given service name.
func NewCloserService(name string, c io.Closer) *CloserService {
	return &CloserService{closer: c, name: name}
}

// Serve implements suture.Service. It returns suture.ErrDoNotRestart after
// closing so a closed resource is never reused.
func (s *CloserService) Serve(ctx context.Context) error {
	<-ctx.Done()

	if err := s.closer.Close(); err != nil {
		logging.Warn().Err(err).Str("service", s.name).Msg("Close failed during shutdown")
		return fmt.Errorf("%s close: %w", s.name, err)
	}
	logging.Debug().Str("service", s.name).Msg("Closed")
	return suture.ErrDoNotRestart
}

// String implements fmt.Stringer.
func (s *CloserService) String() string {
	return s.name
}
