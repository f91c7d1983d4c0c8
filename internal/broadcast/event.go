// Soleil - Real-time Chart Synchronization and Broadcast Engine
// Copyright 2026 The Soleil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/murrayheaton/soleil-sub001

package broadcast

import (
	"math"
	"time"
)

// EventType identifies an outbound event.
type EventType string

// Outbound event types. The string values are the wire "type" field.
const (
	EventSyncStarted    EventType = "sync_started"
	EventSyncProgress   EventType = "sync_progress"
	EventSyncCompleted  EventType = "sync_completed"
	EventSyncFailed     EventType = "sync_failed"
	EventFileAdded      EventType = "file_added"
	EventFileUpdated    EventType = "file_updated"
	EventFileRemoved    EventType = "file_removed"
	EventSetlistUpdated EventType = "setlist_updated"
)

// AllEventTypes lists every outbound event type.
var AllEventTypes = []EventType{
	EventSyncStarted,
	EventSyncProgress,
	EventSyncCompleted,
	EventSyncFailed,
	EventFileAdded,
	EventFileUpdated,
	EventFileRemoved,
	EventSetlistUpdated,
}

// Valid reports whether t is a known event type.
func (t EventType) Valid() bool {
	for _, known := range AllEventTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Event is a queued outbound event. An empty TenantID means every tenant.
type Event struct {
	Type      EventType      `json:"type"`
	TenantID  string         `json:"tenant_id,omitempty"`
	Payload   map[string]any `json:"payload"`
	Timestamp time.Time      `json:"timestamp"`
}

// FileInfo describes a file in file_* events.
type FileInfo struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	MimeType string `json:"mime_type,omitempty"`
	FolderID string `json:"folder_id,omitempty"`
}

// Percentage returns progress/total as a percentage rounded to one decimal.
// A zero or negative total yields 0.
func Percentage(progress, total int) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(float64(progress)/float64(total)*1000) / 10
}
