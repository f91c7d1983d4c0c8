// Soleil - Real-time Chart Synchronization and Broadcast Engine
// Copyright 2026 The Soleil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/murrayheaton/soleil-sub001

package ratelimit

import (
	"errors"
	"fmt"
	"sync"

	"github.com/murrayheaton/soleil-sub001/internal/logging"
)

// DynamicConfig configures an adaptive limiter.
type DynamicConfig struct {
	Name             string
	InitialRate      float64
	Burst            int
	MinRate          float64
	MaxRate          float64
	IncreaseFactor   float64 // applied after SuccessThreshold consecutive successes, >= 1
	DecreaseFactor   float64 // applied on every rate-limit error, in (0, 1]
	SuccessThreshold int
}

// DefaultDynamicConfig returns settings suited to a content store allowing
// roughly 10 requests per second.
func DefaultDynamicConfig() DynamicConfig {
	return DynamicConfig{
		Name:             "content_store",
		InitialRate:      10,
		Burst:            20,
		MinRate:          1,
		MaxRate:          50,
		IncreaseFactor:   1.1,
		DecreaseFactor:   0.5,
		SuccessThreshold: 10,
	}
}

// Validate reports configuration errors.
func (c DynamicConfig) Validate() error {
	switch {
	case c.MinRate <= 0:
		return fmt.Errorf("%w: min rate %v", ErrInvalidRate, c.MinRate)
	case c.MaxRate < c.MinRate:
		return fmt.Errorf("%w: max rate %v below min rate %v", ErrInvalidRate, c.MaxRate, c.MinRate)
	case c.InitialRate < c.MinRate || c.InitialRate > c.MaxRate:
		return fmt.Errorf("%w: initial rate %v outside [%v, %v]", ErrInvalidRate, c.InitialRate, c.MinRate, c.MaxRate)
	case c.Burst <= 0:
		return fmt.Errorf("%w: got %d", ErrInvalidBurst, c.Burst)
	case c.IncreaseFactor < 1:
		return errors.New("ratelimit: increase factor must be >= 1")
	case c.DecreaseFactor <= 0 || c.DecreaseFactor > 1:
		return errors.New("ratelimit: decrease factor must be in (0, 1]")
	case c.SuccessThreshold <= 0:
		return errors.New("ratelimit: success threshold must be positive")
	}
	return nil
}

// Dynamic is a Limiter whose rate follows upstream feedback. A streak of
// SuccessThreshold successes multiplies the rate by IncreaseFactor; every
// rate-limit error multiplies it by DecreaseFactor and resets the streak.
// The rate never leaves [MinRate, MaxRate].
type Dynamic struct {
	*Limiter

	cfg DynamicConfig

	mu      sync.Mutex
	current float64
	streak  int
}

// NewDynamic creates an adaptive limiter.
func NewDynamic(cfg DynamicConfig) (*Dynamic, error) {
	if cfg.Name == "" {
		cfg.Name = "dynamic"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	base, err := NewNamed(cfg.Name, cfg.InitialRate, cfg.Burst)
	if err != nil {
		return nil, err
	}
	return &Dynamic{Limiter: base, cfg: cfg, current: cfg.InitialRate}, nil
}

// ReportSuccess records a successful upstream call.
func (d *Dynamic) ReportSuccess() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.streak++
	if d.streak < d.cfg.SuccessThreshold {
		return
	}
	d.streak = 0

	next := min(d.current*d.cfg.IncreaseFactor, d.cfg.MaxRate)
	if next != d.current {
		d.current = next
		d.setRate(next)
		logging.Debug().Str("limiter", d.cfg.Name).Float64("rate", next).Msg("Rate limit raised")
	}
}

// ReportRateLimitError records an upstream throttling response.
func (d *Dynamic) ReportRateLimitError() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.streak = 0
	next := max(d.current*d.cfg.DecreaseFactor, d.cfg.MinRate)
	if next != d.current {
		d.current = next
		d.setRate(next)
		logging.Warn().Str("limiter", d.cfg.Name).Float64("rate", next).Msg("Rate limit lowered after upstream throttling")
	}
}

// CurrentRate returns the rate currently in force.
func (d *Dynamic) CurrentRate() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current
}
