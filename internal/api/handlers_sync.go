// Soleil - Real-time Chart Synchronization and Broadcast Engine
// Copyright 2026 The Soleil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/murrayheaton/soleil-sub001

package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/murrayheaton/soleil-sub001/internal/logging"
	syncengine "github.com/murrayheaton/soleil-sub001/internal/sync"
	"github.com/murrayheaton/soleil-sub001/internal/validation"
)

// FullSyncRequest is the body of POST /api/v1/sync/full.
type FullSyncRequest struct {
	TenantID    string            `json:"tenant_id" validate:"required,identifier"`
	Credentials map[string]string `json:"credentials,omitempty"`
}

// DeltaSyncRequest is the body of POST /api/v1/sync/delta.
type DeltaSyncRequest struct {
	TenantID    string            `json:"tenant_id" validate:"required,identifier"`
	ResourceID  string            `json:"resource_id" validate:"required,identifier"`
	Credentials map[string]string `json:"credentials,omitempty"`
}

// TriggerFullSync queues a full reconciliation.
// POST /api/v1/sync/full
func (router *Router) TriggerFullSync(w http.ResponseWriter, r *http.Request) {
	var req FullSyncRequest
	if !router.decodeAndValidate(w, r, &req) {
		return
	}
	id, err := router.engine.TriggerFullSync(r.Context(), req.TenantID, req.Credentials)
	router.respondTrigger(w, r, id, err)
}

// TriggerDeltaSync queues a reconciliation for one changed resource.
// POST /api/v1/sync/delta
func (router *Router) TriggerDeltaSync(w http.ResponseWriter, r *http.Request) {
	var req DeltaSyncRequest
	if !router.decodeAndValidate(w, r, &req) {
		return
	}
	id, err := router.engine.TriggerDeltaSync(r.Context(), req.TenantID, req.ResourceID, req.Credentials)
	router.respondTrigger(w, r, id, err)
}

// GetOperation returns one sync operation.
// GET /api/v1/sync/operations/{id}
func (router *Router) GetOperation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	op, ok := router.engine.GetOperation(id)
	if !ok {
		WriteNotFound(w, r, "Operation not found: "+id)
		return
	}
	WriteSuccess(w, r, op)
}

// ListOperations returns recent operations, newest first.
// GET /api/v1/sync/operations?tenant_id=...
func (router *Router) ListOperations(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, r, router.engine.ListOperations(r.URL.Query().Get("tenant_id")))
}

// Stats returns engine counters plus every registered status section.
// GET /api/v1/sync/stats
func (router *Router) Stats(w http.ResponseWriter, r *http.Request) {
	stats := map[string]any{
		"engine": router.engine.GetStats(),
	}
	if router.registry != nil {
		stats["connections"] = router.registry.Stats()
	}
	for name, fn := range router.status {
		stats[name] = fn()
	}
	WriteSuccess(w, r, stats)
}

func (router *Router) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, router.cfg.MaxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		WriteBadRequest(w, r, "Request body must be a JSON object")
		return false
	}
	if verr := validation.ValidateStruct(dst); verr != nil {
		apiErr := verr.ToAPIError()
		NewResponseWriter(w, r).ValidationError(apiErr.Message, apiErr.Details)
		return false
	}
	return true
}

func (router *Router) respondTrigger(w http.ResponseWriter, r *http.Request, id string, err error) {
	switch {
	case err == nil:
		NewResponseWriter(w, r).Accepted(map[string]string{"operation_id": id})
	case errors.Is(err, syncengine.ErrQueueFull):
		logging.Ctx(r.Context()).Warn().Err(err).Str("operation_id", id).Msg("Sync trigger dropped")
		NewResponseWriter(w, r).Unavailable("Sync queue is full, retry later", nil)
	case errors.Is(err, syncengine.ErrInvalidTenant):
		WriteBadRequest(w, r, err.Error())
	default:
		logging.Ctx(r.Context()).Error().Err(err).Msg("Sync trigger failed")
		NewResponseWriter(w, r).InternalError("Failed to queue sync")
	}
}
