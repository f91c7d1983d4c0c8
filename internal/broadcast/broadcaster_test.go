// Soleil - Real-time Chart Synchronization and Broadcast Engine
// Copyright 2026 The Soleil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/murrayheaton/soleil-sub001

package broadcast

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/murrayheaton/soleil-sub001/internal/logging"
	"github.com/murrayheaton/soleil-sub001/internal/websocket"
)

//nolint:gochecknoinits // init ensures consistent logging for tests
func init() {
	logging.Init(logging.Config{Level: "disabled", Output: io.Discard})
}

type sent struct {
	tenant string
	msg    []byte
}

// fakeSender records deliveries. An empty tenant marks BroadcastAll.
type fakeSender struct {
	mu    sync.Mutex
	sends []sent
}

func (f *fakeSender) BroadcastToTenant(_ context.Context, tenantID string, msg []byte) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, sent{tenant: tenantID, msg: msg})
	return 1
}

func (f *fakeSender) BroadcastAll(_ context.Context, msg []byte) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, sent{msg: msg})
	return 1
}

func (f *fakeSender) snapshot() []sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sent(nil), f.sends...)
}

type decoded struct {
	Type     string         `json:"type"`
	TenantID string         `json:"tenant_id"`
	Data     map[string]any `json:"data"`
}

func decode(t *testing.T, b []byte) decoded {
	t.Helper()
	var d decoded
	if err := json.Unmarshal(b, &d); err != nil {
		t.Fatalf("decode %s: %v", b, err)
	}
	return d
}

func TestPercentage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		progress, total int
		want            float64
	}{
		{0, 100, 0},
		{25, 100, 25},
		{1, 3, 33.3},
		{2, 3, 66.7},
		{5, 0, 0},
		{5, -1, 0},
		{100, 100, 100},
	}
	for _, tt := range tests {
		if got := Percentage(tt.progress, tt.total); got != tt.want {
			t.Errorf("Percentage(%d, %d) = %v, want %v", tt.progress, tt.total, got, tt.want)
		}
	}
}

func TestBroadcaster_ProgressOrderPerTenant(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{}
	b := New(sender, Config{QueueSize: 16})

	for _, p := range []int{0, 25, 50, 75, 100} {
		if !b.BroadcastSyncProgress("band-a", "full_sync_band-a_1", p, 100, "working") {
			t.Fatalf("progress %d rejected", p)
		}
	}

	b.Start(context.Background())
	b.Stop()

	got := sender.snapshot()
	if len(got) != 5 {
		t.Fatalf("deliveries = %d, want 5", len(got))
	}
	for i, want := range []float64{0, 25, 50, 75, 100} {
		if got[i].tenant != "band-a" {
			t.Errorf("delivery %d tenant = %q, want band-a", i, got[i].tenant)
		}
		d := decode(t, got[i].msg)
		if d.Type != string(EventSyncProgress) {
			t.Errorf("delivery %d type = %q", i, d.Type)
		}
		if pct, _ := d.Data["percentage"].(float64); pct != want {
			t.Errorf("delivery %d percentage = %v, want %v", i, d.Data["percentage"], want)
		}
	}
}

func TestBroadcaster_TenantIsolationWithRegistry(t *testing.T) {
	t.Parallel()

	reg := websocket.NewRegistry()
	a := &memChannel{}
	other := &memChannel{}
	reg.Connect(a, "band-a")
	reg.Connect(other, "band-b")

	b := New(reg, Config{})
	b.BroadcastFileAdded("band-a", FileInfo{ID: "f1", Name: "Song - Bb.pdf"})
	b.BroadcastSyncFailed("band-a", "op-1", "boom")

	b.Start(context.Background())
	b.Stop()

	if n := len(a.all()); n != 2 {
		t.Errorf("band-a received %d messages, want 2", n)
	}
	if n := len(other.all()); n != 0 {
		t.Errorf("band-b received %d messages, want 0", n)
	}

	d := decode(t, a.all()[0])
	if d.Type != string(EventFileAdded) || d.TenantID != "band-a" {
		t.Errorf("first message = %+v", d)
	}
}

type memChannel struct {
	mu   sync.Mutex
	msgs [][]byte
}

func (c *memChannel) Send(_ context.Context, msg []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msg)
	return nil
}

func (c *memChannel) Close() error { return nil }

func (c *memChannel) all() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.msgs...)
}

func TestBroadcaster_EmptyTenantGoesToAll(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{}
	b := New(sender, Config{})
	b.BroadcastSetlistUpdated("", "setlist-1", map[string]any{"songs": 3})
	b.Start(context.Background())
	b.Stop()

	got := sender.snapshot()
	if len(got) != 1 || got[0].tenant != "" {
		t.Fatalf("deliveries = %+v, want one BroadcastAll", got)
	}
}

func TestBroadcaster_QueueFullDrops(t *testing.T) {
	t.Parallel()

	b := New(&fakeSender{}, Config{QueueSize: 2})
	if !b.BroadcastSyncStarted("t", "op", "full") || !b.BroadcastSyncStarted("t", "op", "full") {
		t.Fatal("first two events should be accepted")
	}
	if b.BroadcastSyncStarted("t", "op", "full") {
		t.Fatal("third event should be dropped")
	}

	stats := b.Stats()
	if stats.Enqueued != 2 || stats.Dropped != 1 || stats.QueueDepth != 2 {
		t.Errorf("Stats() = %+v", stats)
	}
}

func TestBroadcaster_Subscribers(t *testing.T) {
	t.Parallel()

	b := New(&fakeSender{}, Config{})

	var mu sync.Mutex
	var typed, all []EventType
	unsubscribe := b.Subscribe(EventSyncCompleted, func(_ context.Context, e Event) error {
		mu.Lock()
		typed = append(typed, e.Type)
		mu.Unlock()
		return nil
	})
	b.SubscribeAll(func(_ context.Context, e Event) error {
		mu.Lock()
		all = append(all, e.Type)
		mu.Unlock()
		return nil
	})
	b.Subscribe(EventSyncCompleted, func(context.Context, Event) error {
		return errors.New("subscriber failure")
	})
	b.Subscribe(EventSyncCompleted, func(context.Context, Event) error {
		panic("subscriber panic")
	})

	b.BroadcastSyncCompleted("t", "op-1", map[string]int{"files": 2})
	b.BroadcastSyncStarted("t", "op-2", "delta")
	b.Start(context.Background())
	b.Stop()

	unsubscribe()
	b.BroadcastSyncCompleted("t", "op-3", nil)
	b.Start(context.Background())
	b.Stop()

	mu.Lock()
	defer mu.Unlock()
	if len(typed) != 1 {
		t.Errorf("typed subscriber calls = %d, want 1", len(typed))
	}
	if len(all) != 3 {
		t.Errorf("all-events subscriber calls = %d, want 3", len(all))
	}
	if got := b.Stats().SubscriberErrors; got != 4 {
		t.Errorf("SubscriberErrors = %d, want 4", got)
	}
}

func TestBroadcaster_StartIdempotentAndServe(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{}
	b := New(sender, Config{})
	b.Start(context.Background())
	b.Start(context.Background())
	b.Stop()
	b.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- b.Serve(ctx) }()

	b.BroadcastSyncStarted("t", "op", "full")
	deadline := time.Now().Add(2 * time.Second)
	for len(sender.snapshot()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Errorf("Serve() = %v, want context.Canceled", err)
	}
	if len(sender.snapshot()) != 1 {
		t.Errorf("deliveries = %d, want 1", len(sender.snapshot()))
	}
}

func TestEventType_Valid(t *testing.T) {
	t.Parallel()

	for _, et := range AllEventTypes {
		if !et.Valid() {
			t.Errorf("%q should be valid", et)
		}
	}
	if EventType("nope").Valid() {
		t.Error("unknown type reported valid")
	}
}
