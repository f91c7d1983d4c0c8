// Soleil - Real-time Chart Synchronization and Broadcast Engine
// Copyright 2026 The Soleil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/murrayheaton/soleil-sub001

package websocket

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/murrayheaton/soleil-sub001/internal/logging"
)

// TenantResolver returns the tenant of an authenticated upgrade request.
type TenantResolver func(r *http.Request) (string, error)

// HandlerConfig configures the upgrade handler.
type HandlerConfig struct {
	// AllowedOrigins lists accepted Origin headers; "*" accepts any.
	// Requests without an Origin header are rejected.
	AllowedOrigins []string
}

// Handler upgrades requests to websocket connections and registers them
// under the tenant returned by resolve.
func Handler(reg *Registry, resolve TenantResolver, cfg HandlerConfig) http.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		HandshakeTimeout: 10 * time.Second,
		CheckOrigin:      originChecker(cfg.AllowedOrigins),
	}

	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, err := resolve(r)
		if err != nil || tenantID == "" {
			logging.Ctx(r.Context()).Warn().Err(err).Msg("websocket connection rejected: no tenant")
			http.Error(w, "tenant required", http.StatusUnauthorized)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logging.Ctx(r.Context()).Warn().Err(err).Msg("websocket upgrade failed")
			return
		}

		client := NewClient(conn)
		id := reg.Connect(client, tenantID)
		client.Start(func() { reg.Disconnect(id) })

		if hello, err := NewMessage(MessageTypeConnected, tenantID, map[string]string{"connection_id": id}).Encode(); err == nil {
			_ = reg.Send(context.Background(), id, hello)
		}
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			logging.Warn().Msg("websocket connection rejected: missing Origin header")
			return false
		}
		for _, a := range allowed {
			if a == "*" || a == origin {
				return true
			}
		}
		logging.Warn().Str("origin", origin).Msg("websocket connection rejected from unauthorized origin")
		return false
	}
}
