// Soleil - Real-time Chart Synchronization and Broadcast Engine
// Copyright 2026 The Soleil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/murrayheaton/soleil-sub001

package api

import (
	"context"
	"net/http"
	"time"
)

// HealthStatus is the body of GET /health.
type HealthStatus struct {
	Status        string            `json:"status"`
	EngineRunning bool              `json:"engine_running"`
	Connections   int               `json:"connections"`
	Checks        map[string]string `json:"checks,omitempty"`
	Uptime        float64           `json:"uptime_seconds"`
}

// Health reports liveness plus registered dependency checks. Any failing
// check or a stopped engine answers 503.
// GET /health
func (router *Router) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	health := HealthStatus{
		Status:        "healthy",
		EngineRunning: router.engine.GetStats().Running,
		Uptime:        time.Since(router.started).Seconds(),
	}
	if router.registry != nil {
		health.Connections = router.registry.Stats().Total
	}
	if !health.EngineRunning {
		health.Status = "degraded"
	}

	if len(router.checks) > 0 {
		health.Checks = make(map[string]string, len(router.checks))
		for name, check := range router.checks {
			if err := check(ctx); err != nil {
				health.Checks[name] = err.Error()
				health.Status = "degraded"
				continue
			}
			health.Checks[name] = "ok"
		}
	}

	if health.Status != "healthy" {
		NewResponseWriter(w, r).Unavailable("one or more components are unhealthy", health)
		return
	}
	WriteSuccess(w, r, health)
}
