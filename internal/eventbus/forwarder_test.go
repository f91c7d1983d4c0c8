// Soleil - Real-time Chart Synchronization and Broadcast Engine
// Copyright 2026 The Soleil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/murrayheaton/soleil-sub001

package eventbus

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"

	"github.com/murrayheaton/soleil-sub001/internal/broadcast"
	"github.com/murrayheaton/soleil-sub001/internal/logging"
)

//nolint:gochecknoinits // init ensures consistent logging for tests
func init() {
	logging.Init(logging.Config{Level: "disabled", Output: io.Discard})
}

type nopSender struct{}

func (nopSender) BroadcastToTenant(context.Context, string, []byte) int { return 0 }
func (nopSender) BroadcastAll(context.Context, []byte) int              { return 0 }

func receive(t *testing.T, ch <-chan *message.Message) *message.Message {
	t.Helper()
	select {
	case msg := <-ch:
		msg.Ack()
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for forwarded message")
		return nil
	}
}

func TestForwarder_PublishesBroadcastEvents(t *testing.T) {
	t.Parallel()

	pubsub := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 16}, watermill.NopLogger{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	completed, err := pubsub.Subscribe(ctx, "soleil.sync_completed")
	if err != nil {
		t.Fatal(err)
	}

	b := broadcast.New(nopSender{}, broadcast.Config{QueueSize: 8})
	f := NewForwarder(pubsub, "")
	f.Attach(b)
	b.Start(ctx)
	defer b.Stop()

	b.BroadcastSyncCompleted("band-a", "full_sync_band-a_1", map[string]int{"shortcuts_created": 2})

	msg := receive(t, completed)
	if got := msg.Metadata.Get(MetadataTenantID); got != "band-a" {
		t.Errorf("tenant metadata = %q", got)
	}
	if got := msg.Metadata.Get(MetadataEventType); got != "sync_completed" {
		t.Errorf("event type metadata = %q", got)
	}
	var ev broadcast.Event
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if ev.Type != broadcast.EventSyncCompleted || ev.TenantID != "band-a" {
		t.Errorf("event = %+v", ev)
	}
}

func TestForwarder_Topic(t *testing.T) {
	f := NewForwarder(gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{}), "bands")
	if got := f.Topic(broadcast.EventFileAdded); got != "bands.file_added" {
		t.Errorf("Topic() = %q", got)
	}
}

func TestForwarder_Close(t *testing.T) {
	t.Parallel()

	f := NewForwarder(gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{}), "")
	if err := f.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	err := f.Forward(context.Background(), broadcast.Event{Type: broadcast.EventFileAdded})
	if !errors.Is(err, ErrClosed) {
		t.Errorf("Forward() after Close = %v, want ErrClosed", err)
	}
}
