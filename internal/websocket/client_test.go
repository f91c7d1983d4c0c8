// Soleil - Real-time Chart Synchronization and Broadcast Engine
// Copyright 2026 The Soleil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/murrayheaton/soleil-sub001

package websocket

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

func startServer(t *testing.T, reg *Registry) *httptest.Server {
	t.Helper()
	resolve := func(r *http.Request) (string, error) {
		tenant := r.URL.Query().Get("tenant")
		if tenant == "" {
			return "", errors.New("missing tenant")
		}
		return tenant, nil
	}
	server := httptest.NewServer(Handler(reg, resolve, HandlerConfig{AllowedOrigins: []string{"http://app.example"}}))
	t.Cleanup(server.Close)
	return server
}

func dial(t *testing.T, server *httptest.Server, query string, origin string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/?" + query
	header := http.Header{}
	if origin != "" {
		header.Set("Origin", origin)
	}
	return websocket.DefaultDialer.Dial(url, header)
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatal(err)
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage error = %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("invalid message %s: %v", data, err)
	}
	return msg
}

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestHandler_ConnectAndBroadcast(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	server := startServer(t, reg)

	conn, _, err := dial(t, server, "tenant=band-7", "http://app.example")
	if err != nil {
		t.Fatalf("dial error = %v", err)
	}
	defer conn.Close()

	hello := readMessage(t, conn)
	if hello.Type != MessageTypeConnected || hello.TenantID != "band-7" {
		t.Fatalf("first message = %+v, want connected for band-7", hello)
	}

	payload, _ := NewMessage("file_added", "band-7", map[string]string{"file_id": "f1"}).Encode()
	if n := reg.BroadcastToTenant(context.Background(), "band-7", payload); n != 1 {
		t.Fatalf("delivered = %d, want 1", n)
	}
	msg := readMessage(t, conn)
	if msg.Type != "file_added" {
		t.Errorf("Type = %q, want file_added", msg.Type)
	}
}

func TestHandler_PingPong(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	server := startServer(t, reg)

	conn, _, err := dial(t, server, "tenant=band-1", "http://app.example")
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	readMessage(t, conn) // connected

	if err := conn.WriteJSON(Message{Type: MessageTypePing}); err != nil {
		t.Fatal(err)
	}
	if msg := readMessage(t, conn); msg.Type != MessageTypePong {
		t.Errorf("reply type = %q, want pong", msg.Type)
	}
}

func TestHandler_ClientDisconnectUnregisters(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	server := startServer(t, reg)

	conn, _, err := dial(t, server, "tenant=band-2", "http://app.example")
	if err != nil {
		t.Fatal(err)
	}
	readMessage(t, conn)
	waitFor(t, func() bool { return reg.Stats().Total == 1 }, "registration")

	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	conn.Close()

	waitFor(t, func() bool { return reg.Stats().Total == 0 }, "unregistration")
}

func TestHandler_Rejections(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	server := startServer(t, reg)

	tests := []struct {
		name       string
		query      string
		origin     string
		wantStatus int
	}{
		{"missing tenant", "", "http://app.example", http.StatusUnauthorized},
		{"missing origin", "tenant=a", "", http.StatusForbidden},
		{"foreign origin", "tenant=a", "http://evil.example", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, resp, err := dial(t, server, tt.query, tt.origin)
			if err == nil {
				t.Fatal("dial succeeded, want rejection")
			}
			if resp == nil || resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %v, want %d", resp, tt.wantStatus)
			}
		})
	}
	if reg.Stats().Total != 0 {
		t.Error("rejected requests must not register connections")
	}
}

func TestClient_SendAfterClose(t *testing.T) {
	t.Parallel()

	c := &Client{send: make(chan []byte, 1), done: make(chan struct{})}
	if err := c.Send(context.Background(), []byte("a")); err != nil {
		t.Fatalf("Send error = %v", err)
	}
	if err := c.Send(context.Background(), []byte("b")); !errors.Is(err, ErrSendBufferFull) {
		t.Errorf("Send on full buffer = %v, want ErrSendBufferFull", err)
	}

	_ = c.Close()
	_ = c.Close()
	if err := c.Send(context.Background(), []byte("c")); !errors.Is(err, ErrClientClosed) {
		t.Errorf("Send after Close = %v, want ErrClientClosed", err)
	}
	select {
	case <-c.Done():
	default:
		t.Error("Done not closed")
	}
}
