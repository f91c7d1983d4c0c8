// Soleil - Real-time Chart Synchronization and Broadcast Engine
// Copyright 2026 The Soleil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/murrayheaton/soleil-sub001

package services

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/murrayheaton/soleil-sub001/internal/logging"
)

//nolint:gochecknoinits // init ensures consistent logging for tests
func init() {
	logging.Init(logging.Config{Level: "disabled", Output: io.Discard})
}

var (
	_ suture.Service = (*HTTPServerService)(nil)
	_ suture.Service = (*CloserService)(nil)
)

type mockHTTPServer struct {
	listenErr     error
	shutdownErr   error
	shutdownCount atomic.Int32
	stopCh        chan struct{}
}

func newMockHTTPServer() *mockHTTPServer {
	return &mockHTTPServer{stopCh: make(chan struct{})}
}

func (m *mockHTTPServer) ListenAndServe() error {
	if m.listenErr != nil {
		return m.listenErr
	}
	<-m.stopCh
	return http.ErrServerClosed
}

func (m *mockHTTPServer) Shutdown(context.Context) error {
	m.shutdownCount.Add(1)
	close(m.stopCh)
	return m.shutdownErr
}

func TestNewHTTPServerService_DefaultTimeout(t *testing.T) {
	for _, timeout := range []time.Duration{0, -time.Second} {
		svc := NewHTTPServerService(newMockHTTPServer(), timeout)
		if svc.shutdownTimeout != 10*time.Second {
			t.Errorf("timeout %v: got %v, want 10s", timeout, svc.shutdownTimeout)
		}
	}
	if got := NewHTTPServerService(newMockHTTPServer(), time.Second).String(); got != "http-server" {
		t.Errorf("String() = %q", got)
	}
}

func TestHTTPServerService_Serve(t *testing.T) {
	t.Run("shuts down on cancel", func(t *testing.T) {
		server := newMockHTTPServer()
		svc := NewHTTPServerService(server, time.Second)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- svc.Serve(ctx) }()

		time.Sleep(20 * time.Millisecond)
		cancel()

		select {
		case err := <-done:
			if !errors.Is(err, context.Canceled) {
				t.Errorf("err = %v, want context.Canceled", err)
			}
		case <-time.After(time.Second):
			t.Fatal("Serve did not return")
		}
		if server.shutdownCount.Load() != 1 {
			t.Errorf("shutdown calls = %d, want 1", server.shutdownCount.Load())
		}
	})

	t.Run("listen failure", func(t *testing.T) {
		server := newMockHTTPServer()
		server.listenErr = errors.New("address in use")
		svc := NewHTTPServerService(server, time.Second)

		err := svc.Serve(context.Background())
		if err == nil || !errors.Is(err, server.listenErr) {
			t.Errorf("err = %v, want wrapped listen error", err)
		}
	})

	t.Run("shutdown failure", func(t *testing.T) {
		server := newMockHTTPServer()
		server.shutdownErr = errors.New("stuck connections")
		svc := NewHTTPServerService(server, time.Second)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if err := svc.Serve(ctx); !errors.Is(err, server.shutdownErr) {
			t.Errorf("err = %v, want wrapped shutdown error", err)
		}
	})
}

type fakeCloser struct {
	closed atomic.Int32
	err    error
}

func (f *fakeCloser) Close() error {
	f.closed.Add(1)
	return f.err
}

func TestCloserService(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantErr error
	}{
		{"clean close", nil, suture.ErrDoNotRestart},
		{"close error", errors.New("flush failed"), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &fakeCloser{err: tt.err}
			svc := NewCloserService("audit-recorder", c)
			if svc.String() != "audit-recorder" {
				t.Errorf("String() = %q", svc.String())
			}

			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			err := svc.Serve(ctx)

			if c.closed.Load() != 1 {
				t.Errorf("Close calls = %d, want 1", c.closed.Load())
			}
			switch {
			case tt.wantErr != nil && !errors.Is(err, tt.wantErr):
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			case tt.err != nil && !errors.Is(err, tt.err):
				t.Errorf("err = %v, want wrapped %v", err, tt.err)
			}
		})
	}
}
