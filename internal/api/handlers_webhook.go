// Soleil - Real-time Chart Synchronization and Broadcast Engine
// Copyright 2026 The Soleil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/murrayheaton/soleil-sub001

package api

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strings"

	"github.com/goccy/go-json"

	"github.com/murrayheaton/soleil-sub001/internal/logging"
)

// googHeaders maps push-notification headers to payload keys. Body fields
// take precedence.
var googHeaders = map[string]string{
	"X-Goog-Resource-State": "resourceState",
	"X-Goog-Resource-Id":    "resourceId",
	"X-Goog-Resource-Uri":   "resourceUri",
	"X-Goog-Channel-Id":     "channelId",
	"X-Goog-Changed":        "changed",
	HeaderTenantID:          "tenantId",
}

// Webhook accepts a file store or spreadsheet notification.
// POST /api/v1/webhooks/drive, POST /api/v1/webhooks/sheets
//
// Any well-formed notification is acknowledged with 202, including ones the
// engine does not act on, so the sender does not retry them.
func (router *Router) Webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, router.cfg.MaxBodyBytes))
	if err != nil {
		WriteBadRequest(w, r, "Failed to read request body")
		return
	}

	if router.cfg.WebhookSecret != "" {
		signature := r.Header.Get(HeaderSignature)
		if signature == "" || !verifyWebhookSignature(body, signature, router.cfg.WebhookSecret) {
			logging.Ctx(r.Context()).Warn().Str("path", r.URL.Path).Msg("Webhook signature rejected")
			NewResponseWriter(w, r).Unauthorized(ErrInvalidSignature.Error())
			return
		}
	}

	payload := make(map[string]any)
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &payload); err != nil {
			logging.Ctx(r.Context()).Warn().Err(err).Str("path", r.URL.Path).Msg("Malformed webhook body")
			WriteBadRequest(w, r, "Webhook body must be a JSON object")
			return
		}
		if payload == nil {
			payload = make(map[string]any)
		}
	}
	mergeHeaders(payload, r.Header)

	ev, accepted := router.engine.HandleWebhook(r.Context(), payload)

	resp := map[string]any{"accepted": accepted}
	if ev != nil {
		resp["event_type"] = ev.Type.String()
		resp["resource_id"] = ev.ResourceID
	}
	NewResponseWriter(w, r).Accepted(resp)
}

func mergeHeaders(payload map[string]any, h http.Header) {
	for header, key := range googHeaders {
		if _, ok := payload[key]; ok {
			continue
		}
		if v := h.Get(header); v != "" {
			payload[key] = v
		}
	}
}

// verifyWebhookSignature checks a hex HMAC-SHA256 of body, with or without
// a "sha256=" prefix.
func verifyWebhookSignature(body []byte, signature, secret string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	signature = strings.TrimPrefix(signature, "sha256=")
	return hmac.Equal([]byte(strings.ToLower(signature)), []byte(expected))
}
