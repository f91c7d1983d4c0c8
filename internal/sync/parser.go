// Soleil - Real-time Chart Synchronization and Broadcast Engine
// Copyright 2026 The Soleil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/murrayheaton/soleil-sub001

package sync

import (
	"strings"
	"time"
)

// WebhookParser turns one provider payload shape into an Event. It returns
// false when the payload is not its shape or is malformed. Parsers must be
// pure: the same payload always yields an equal Event.
type WebhookParser func(payload map[string]any) (*Event, bool)

// DefaultParsers returns the built-in parsers in match order.
func DefaultParsers() []WebhookParser {
	return []WebhookParser{ParseDriveWebhook, ParseSheetWebhook}
}

// ParseDriveWebhook recognizes file-store change notifications, identified by
// resourceId and resourceState. "sync" handshakes are not changes and are
// rejected.
func ParseDriveWebhook(payload map[string]any) (*Event, bool) {
	resourceID := stringField(payload, "resourceId")
	state := strings.ToLower(stringField(payload, "resourceState"))
	if resourceID == "" || state == "" {
		return nil, false
	}

	var eventType EventType
	switch state {
	case "add", "create", "exists":
		eventType = FileCreated
	case "update", "change":
		eventType = FileUpdated
	case "remove", "trash", "delete":
		eventType = FileDeleted
	default:
		return nil, false
	}

	return &Event{
		Type:         eventType,
		ResourceID:   resourceID,
		ResourceType: ResourceDriveFile,
		TenantID:     stringField(payload, "tenantId"),
		Timestamp:    payloadTime(payload),
		Metadata: FileChange{
			State:       state,
			ChannelID:   stringField(payload, "channelId"),
			Changed:     stringField(payload, "changed"),
			ResourceURI: stringField(payload, "resourceUri"),
		},
	}, true
}

// ParseSheetWebhook recognizes spreadsheet change notifications, identified
// by spreadsheetId.
func ParseSheetWebhook(payload map[string]any) (*Event, bool) {
	sheetID := stringField(payload, "spreadsheetId")
	if sheetID == "" {
		return nil, false
	}

	return &Event{
		Type:         SheetUpdated,
		ResourceID:   sheetID,
		ResourceType: ResourceSpreadsheet,
		TenantID:     stringField(payload, "tenantId"),
		Timestamp:    payloadTime(payload),
		Metadata: SheetChange{
			SheetName: stringField(payload, "sheetName"),
			Range:     stringField(payload, "range"),
		},
	}, true
}

// parsePayload tries each parser in order and returns the first match.
func parsePayload(parsers []WebhookParser, payload map[string]any) (*Event, bool) {
	if len(payload) == 0 {
		return nil, false
	}
	for _, parse := range parsers {
		if ev, ok := parse(payload); ok {
			return ev, true
		}
	}
	return nil, false
}

func stringField(payload map[string]any, key string) string {
	switch v := payload[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case []string:
		return strings.TrimSpace(strings.Join(v, ","))
	default:
		return ""
	}
}

// payloadTime reads timestamp or eventTime as RFC3339. Missing or invalid
// values yield the zero time so parsing stays deterministic.
func payloadTime(payload map[string]any) time.Time {
	for _, key := range []string{"timestamp", "eventTime"} {
		if s := stringField(payload, key); s != "" {
			if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
				return t.UTC()
			}
		}
	}
	return time.Time{}
}
