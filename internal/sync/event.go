// Soleil - Real-time Chart Synchronization and Broadcast Engine
// Copyright 2026 The Soleil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/murrayheaton/soleil-sub001

package sync

import (
	"errors"
	"fmt"
	"time"
)

// ErrUnknownEventType is returned for event types outside the known set.
var ErrUnknownEventType = errors.New("sync: unknown event type")

// EventType is the kind of change a SyncEvent represents.
type EventType int

// Known event types.
const (
	FileCreated EventType = iota + 1
	FileUpdated
	FileDeleted
	SheetUpdated
	FullSyncRequested
	DeltaSyncRequested
)

var eventTypeNames = map[EventType]string{
	FileCreated:        "file_created",
	FileUpdated:        "file_updated",
	FileDeleted:        "file_deleted",
	SheetUpdated:       "sheet_updated",
	FullSyncRequested:  "full_sync_requested",
	DeltaSyncRequested: "delta_sync_requested",
}

// AllEventTypes lists every known event type in declaration order.
var AllEventTypes = []EventType{
	FileCreated,
	FileUpdated,
	FileDeleted,
	SheetUpdated,
	FullSyncRequested,
	DeltaSyncRequested,
}

func (t EventType) String() string {
	if name, ok := eventTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("EventType(%d)", int(t))
}

// Valid reports whether t is a known event type.
func (t EventType) Valid() bool {
	_, ok := eventTypeNames[t]
	return ok
}

// MarshalText implements encoding.TextMarshaler.
func (t EventType) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownEventType, int(t))
	}
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *EventType) UnmarshalText(b []byte) error {
	parsed, err := ParseEventType(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ParseEventType maps a name such as "file_updated" to its EventType.
func ParseEventType(s string) (EventType, error) {
	for t, name := range eventTypeNames {
		if name == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownEventType, s)
}

// Resource types carried on events.
const (
	ResourceDriveFile   = "drive_file"
	ResourceSpreadsheet = "spreadsheet"
	ResourceFolder      = "folder"
)

// Event is a normalized change notification. Events are values; handlers
// receive copies.
type Event struct {
	Type         EventType `json:"type"`
	ResourceID   string    `json:"resource_id"`
	ResourceType string    `json:"resource_type"`
	TenantID     string    `json:"tenant_id,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
	Metadata     Metadata  `json:"metadata,omitempty"`
}

// Metadata is the per-variant payload of an Event. The concrete type is one
// of FileChange, SheetChange or SyncRequest; handlers switch on it.
type Metadata interface {
	metadata()
}

// FileChange accompanies FileCreated, FileUpdated and FileDeleted.
type FileChange struct {
	State       string `json:"state"`
	ChannelID   string `json:"channel_id,omitempty"`
	Changed     string `json:"changed,omitempty"`
	ResourceURI string `json:"resource_uri,omitempty"`
}

// SheetChange accompanies SheetUpdated.
type SheetChange struct {
	SheetName string `json:"sheet_name,omitempty"`
	Range     string `json:"range,omitempty"`
}

// Credentials are opaque content-store credentials passed through to
// handlers. The engine never inspects them.
type Credentials map[string]string

// SyncRequest accompanies FullSyncRequested and DeltaSyncRequested.
type SyncRequest struct {
	OperationID string      `json:"operation_id"`
	Kind        Kind        `json:"kind"`
	Credentials Credentials `json:"-"`
}

func (FileChange) metadata()  {}
func (SheetChange) metadata() {}
func (SyncRequest) metadata() {}
