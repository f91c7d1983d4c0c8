// Soleil - Real-time Chart Synchronization and Broadcast Engine
// Copyright 2026 The Soleil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/murrayheaton/soleil-sub001

package websocket

import (
	"time"

	"github.com/goccy/go-json"
)

// Message types handled by the transport itself.
const (
	MessageTypePing      = "ping"
	MessageTypePong      = "pong"
	MessageTypeConnected = "connected"
)

// Message is the JSON envelope written to clients.
type Message struct {
	Type      string      `json:"type"`
	TenantID  string      `json:"tenant_id,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// NewMessage builds a message stamped with the current UTC time.
func NewMessage(msgType, tenantID string, data interface{}) Message {
	return Message{
		Type:      msgType,
		TenantID:  tenantID,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}

// Encode marshals the message to JSON.
func (m Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}
