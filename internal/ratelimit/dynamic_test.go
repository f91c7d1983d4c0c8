// Soleil - Real-time Chart Synchronization and Broadcast Engine
// Copyright 2026 The Soleil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/murrayheaton/soleil-sub001

package ratelimit

import (
	"testing"
)

func testDynamicConfig() DynamicConfig {
	return DynamicConfig{
		Name:             "test",
		InitialRate:      2,
		Burst:            5,
		MinRate:          1,
		MaxRate:          8,
		IncreaseFactor:   2,
		DecreaseFactor:   0.5,
		SuccessThreshold: 3,
	}
}

func TestDynamicConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*DynamicConfig)
	}{
		{"zero min", func(c *DynamicConfig) { c.MinRate = 0 }},
		{"max below min", func(c *DynamicConfig) { c.MaxRate = 0.5 }},
		{"initial above max", func(c *DynamicConfig) { c.InitialRate = 9 }},
		{"zero burst", func(c *DynamicConfig) { c.Burst = 0 }},
		{"increase below one", func(c *DynamicConfig) { c.IncreaseFactor = 0.9 }},
		{"decrease zero", func(c *DynamicConfig) { c.DecreaseFactor = 0 }},
		{"decrease above one", func(c *DynamicConfig) { c.DecreaseFactor = 1.5 }},
		{"zero threshold", func(c *DynamicConfig) { c.SuccessThreshold = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := testDynamicConfig()
			tt.mutate(&cfg)
			if _, err := NewDynamic(cfg); err == nil {
				t.Error("NewDynamic() = nil error, want validation error")
			}
		})
	}

	if err := DefaultDynamicConfig().Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestDynamic_IncreaseAfterStreak(t *testing.T) {
	t.Parallel()

	d, err := NewDynamic(testDynamicConfig())
	if err != nil {
		t.Fatal(err)
	}

	d.ReportSuccess()
	d.ReportSuccess()
	if got := d.CurrentRate(); got != 2 {
		t.Fatalf("rate after 2 successes = %v, want 2", got)
	}
	d.ReportSuccess()
	if got := d.CurrentRate(); got != 4 {
		t.Fatalf("rate after 3 successes = %v, want 4", got)
	}
	if got := d.Rate(); got != 4 {
		t.Errorf("underlying bucket rate = %v, want 4", got)
	}

	for i := 0; i < 9; i++ {
		d.ReportSuccess()
	}
	if got := d.CurrentRate(); got != 8 {
		t.Errorf("rate = %v, want capped at 8", got)
	}
}

func TestDynamic_DecreaseOnError(t *testing.T) {
	t.Parallel()

	cfg := testDynamicConfig()
	cfg.InitialRate = 8
	d, err := NewDynamic(cfg)
	if err != nil {
		t.Fatal(err)
	}

	want := []float64{4, 2, 1, 1}
	for i, w := range want {
		d.ReportRateLimitError()
		if got := d.CurrentRate(); got != w {
			t.Errorf("after error %d rate = %v, want %v", i+1, got, w)
		}
	}
}

func TestDynamic_ErrorResetsStreak(t *testing.T) {
	t.Parallel()

	d, err := NewDynamic(testDynamicConfig())
	if err != nil {
		t.Fatal(err)
	}

	d.ReportSuccess()
	d.ReportSuccess()
	d.ReportRateLimitError() // 2 -> 1, streak reset
	d.ReportSuccess()
	d.ReportSuccess()

	if got := d.CurrentRate(); got != 1 {
		t.Errorf("rate = %v, want 1 (streak should have been reset)", got)
	}
	d.ReportSuccess()
	if got := d.CurrentRate(); got != 2 {
		t.Errorf("rate = %v, want 2 after a full streak", got)
	}
}

func TestDynamic_RateStaysInBounds(t *testing.T) {
	t.Parallel()

	cfg := testDynamicConfig()
	d, err := NewDynamic(cfg)
	if err != nil {
		t.Fatal(err)
	}

	// Deterministic mixed feedback sequence.
	for i := 0; i < 500; i++ {
		if i%7 == 0 || i%11 == 0 {
			d.ReportRateLimitError()
		} else {
			d.ReportSuccess()
		}
		if r := d.CurrentRate(); r < cfg.MinRate || r > cfg.MaxRate {
			t.Fatalf("step %d: rate %v outside [%v, %v]", i, r, cfg.MinRate, cfg.MaxRate)
		}
	}
}
