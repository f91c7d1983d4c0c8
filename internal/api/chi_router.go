// Soleil - Real-time Chart Synchronization and Broadcast Engine
// Copyright 2026 The Soleil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/murrayheaton/soleil-sub001

// Package api is the HTTP adapter of the sync engine: webhook ingress, manual
// sync triggers, operation queries, the websocket endpoint and health.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	syncengine "github.com/murrayheaton/soleil-sub001/internal/sync"
	"github.com/murrayheaton/soleil-sub001/internal/websocket"
)

// Request headers understood by the adapter.
const (
	HeaderTenantID  = "X-Tenant-ID"
	HeaderSignature = "X-Webhook-Signature"
)

// Engine is the sync engine surface used by the handlers.
type Engine interface {
	HandleWebhook(ctx context.Context, payload map[string]any) (*syncengine.Event, bool)
	TriggerFullSync(ctx context.Context, tenantID string, creds syncengine.Credentials) (string, error)
	TriggerDeltaSync(ctx context.Context, tenantID, resourceID string, creds syncengine.Credentials) (string, error)
	GetOperation(id string) (syncengine.Operation, bool)
	ListOperations(tenantID string) []syncengine.Operation
	GetStats() syncengine.Stats
}

// HealthCheck reports the health of one dependency. A nil error is healthy.
type HealthCheck func(ctx context.Context) error

// StatusFunc contributes a named section to the stats response.
type StatusFunc func() any

// Config configures the router.
type Config struct {
	CORSOrigins []string

	// WebhookSecret enables HMAC-SHA256 verification of X-Webhook-Signature.
	WebhookSecret string

	WebhookRateLimitRequests int
	WebhookRateLimitWindow   time.Duration

	// MaxBodyBytes caps request bodies. Default: 1 MiB.
	MaxBodyBytes int64
}

// Option configures optional router collaborators.
type Option func(*Router)

// WithHealthCheck adds a dependency check to /health.
func WithHealthCheck(name string, check HealthCheck) Option {
	return func(r *Router) { r.checks[name] = check }
}

// WithStatus adds a section to /api/v1/sync/stats.
func WithStatus(name string, fn StatusFunc) Option {
	return func(r *Router) { r.status[name] = fn }
}

// Router wires handlers to routes.
type Router struct {
	engine   Engine
	registry *websocket.Registry
	cfg      Config
	mw       *ChiMiddleware
	checks   map[string]HealthCheck
	status   map[string]StatusFunc
	started  time.Time
}

// NewRouter creates the router.
func NewRouter(engine Engine, registry *websocket.Registry, cfg Config, opts ...Option) *Router {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}

	mwCfg := DefaultChiMiddlewareConfig()
	mwCfg.CORSAllowedOrigins = cfg.CORSOrigins
	if cfg.WebhookRateLimitRequests > 0 {
		mwCfg.RateLimitRequests = cfg.WebhookRateLimitRequests
		mwCfg.RateLimitWindow = cfg.WebhookRateLimitWindow
	}

	r := &Router{
		engine:   engine,
		registry: registry,
		cfg:      cfg,
		mw:       NewChiMiddleware(mwCfg),
		checks:   make(map[string]HealthCheck),
		status:   make(map[string]StatusFunc),
		started:  time.Now(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Handler builds the route tree.
func (router *Router) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDWithLogging())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(router.mw.CORS())

	r.Get("/health", router.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/ws", websocket.Handler(router.registry, ResolveTenant, websocket.HandlerConfig{
		AllowedOrigins: router.cfg.CORSOrigins,
	}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(PrometheusMetrics())
		r.Use(chimiddleware.Compress(5, "application/json"))

		r.Route("/webhooks", func(r chi.Router) {
			r.Use(router.mw.RateLimitWebhooks())
			r.Post("/drive", router.Webhook)
			r.Post("/sheets", router.Webhook)
		})

		r.Route("/sync", func(r chi.Router) {
			r.Post("/full", router.TriggerFullSync)
			r.Post("/delta", router.TriggerDeltaSync)
			r.Get("/operations", router.ListOperations)
			r.Get("/operations/{id}", router.GetOperation)
			r.Get("/stats", router.Stats)
		})
	})

	return r
}

// ResolveTenant reads the tenant from the X-Tenant-ID header or the tenant
// query parameter. Authentication happens in front of this service.
func ResolveTenant(r *http.Request) (string, error) {
	if t := r.Header.Get(HeaderTenantID); t != "" {
		return t, nil
	}
	if t := r.URL.Query().Get("tenant"); t != "" {
		return t, nil
	}
	return "", ErrMissingTenant
}
