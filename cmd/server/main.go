// Soleil - Real-time Chart Synchronization and Broadcast Engine
// Copyright 2026 The Soleil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/murrayheaton/soleil-sub001

// Package main runs the chart synchronization server.
//
// Components are built in dependency order and handed to a suture tree:
//
//  1. Configuration (koanf: defaults, config.yaml, environment)
//  2. Audit store and asynchronous recorder (AUDIT_DSN)
//  3. WebSocket registry and event broadcaster
//  4. Sync engine
//  5. Content store client: dynamic rate limiter, listing cache, circuit
//     breaker, optional Redis tier
//  6. File synchronizer and reconciler, registered on the engine
//  7. Optional NATS forwarder and folder watcher
//  8. HTTP API
//
// SIGINT and SIGTERM cancel the tree; each layer shuts down within
// HTTP_SHUTDOWN_TIMEOUT.
package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/murrayheaton/soleil-sub001/internal/api"
	"github.com/murrayheaton/soleil-sub001/internal/audit"
	"github.com/murrayheaton/soleil-sub001/internal/broadcast"
	"github.com/murrayheaton/soleil-sub001/internal/cache"
	"github.com/murrayheaton/soleil-sub001/internal/config"
	"github.com/murrayheaton/soleil-sub001/internal/contentstore"
	"github.com/murrayheaton/soleil-sub001/internal/eventbus"
	"github.com/murrayheaton/soleil-sub001/internal/filesync"
	"github.com/murrayheaton/soleil-sub001/internal/logging"
	"github.com/murrayheaton/soleil-sub001/internal/ratelimit"
	"github.com/murrayheaton/soleil-sub001/internal/supervisor"
	"github.com/murrayheaton/soleil-sub001/internal/supervisor/services"
	syncengine "github.com/murrayheaton/soleil-sub001/internal/sync"
	"github.com/murrayheaton/soleil-sub001/internal/watch"
	"github.com/murrayheaton/soleil-sub001/internal/websocket"
)

//nolint:gocyclo // Main initialization function with sequential setup steps
func main() {
	cfg, err := config.LoadWithKoanf()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
	})
	logging.Info().
		Str("addr", cfg.Server.Addr()).
		Str("content_store", cfg.ContentStore.Root).
		Bool("nats", cfg.NATS.Enabled).
		Bool("redis", cfg.Redis.Enabled).
		Bool("watch", cfg.Watch.Enabled).
		Msg("Starting chart sync server")

	if path := config.ConfigFilePath(); path != "" {
		watchLogLevel(path)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Audit
	store, err := audit.Open(ctx, cfg.Audit.DSN)
	if err != nil {
		logging.Fatal().Err(err).Str("dsn", redactDSN(cfg.Audit.DSN)).Msg("Failed to open audit store")
	}
	defer func() {
		if err := store.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing audit store")
		}
	}()
	recorder := audit.NewRecorder(store, audit.RecorderConfig{})
	defer func() {
		_ = recorder.Close()
	}()

	// Real-time delivery
	registry := websocket.NewRegistry()
	defer registry.Close()
	broadcaster := broadcast.New(registry, broadcast.Config{QueueSize: cfg.Broadcast.QueueSize})

	// Engine
	engine, err := syncengine.New(syncengine.Config{
		MaxConcurrentSyncs: cfg.Sync.MaxConcurrentSyncs,
		QueueSize:          cfg.Sync.QueueSize,
		PollInterval:       cfg.Sync.PollInterval,
		OperationRetention: cfg.Sync.OperationRetention,
		ShutdownGrace:      cfg.Sync.ShutdownGrace,
	},
		syncengine.WithOperationSink(recorder),
		syncengine.WithBroadcaster(broadcaster),
	)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create sync engine")
	}

	// Content store
	limiter, err := ratelimit.NewDynamic(ratelimit.DynamicConfig{
		Name:             "content_store",
		InitialRate:      cfg.RateLimit.Rate,
		Burst:            cfg.RateLimit.Burst,
		MinRate:          cfg.RateLimit.MinRate,
		MaxRate:          cfg.RateLimit.MaxRate,
		IncreaseFactor:   cfg.RateLimit.IncreaseFactor,
		DecreaseFactor:   cfg.RateLimit.DecreaseFactor,
		SuccessThreshold: cfg.RateLimit.SuccessThreshold,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Invalid rate limit configuration")
	}

	listingCache := cache.NewManager(cache.Config{
		Name:            "listings",
		MaxSize:         cfg.Cache.MaxSize,
		DefaultTTL:      cfg.Cache.DefaultTTL,
		CleanupInterval: cfg.Cache.CleanupInterval,
	})

	backend, err := contentstore.NewLocalBackend(cfg.ContentStore.Root)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open content store")
	}

	var clientOpts []contentstore.Option
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = contentstore.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logging.Fatal().Err(err).Str("addr", cfg.Redis.Addr).Msg("Failed to connect to Redis")
		}
		clientOpts = append(clientOpts, contentstore.WithSharedCache(contentstore.NewRedisListingCache(redisClient)))
		logging.Info().Str("addr", cfg.Redis.Addr).Msg("Shared listing cache enabled")
	}

	storeClient := contentstore.NewClient(backend, limiter, listingCache, contentstore.Config{
		Name:               "content-store",
		MaxRetries:         cfg.ContentStore.MaxRetries,
		RetryBaseDelay:     cfg.ContentStore.RetryBaseDelay,
		BreakerMaxFailures: cfg.ContentStore.BreakerMaxFailures,
		BreakerTimeout:     cfg.ContentStore.BreakerTimeout,
		SharedTTL:          cfg.Redis.ListingTTL,
	}, clientOpts...)

	// Reconciliation
	directory, err := filesync.LoadDirectory(cfg.ContentStore.TenantsFile)
	if err != nil {
		logging.Fatal().Err(err).Str("path", cfg.ContentStore.TenantsFile).Msg("Failed to load tenant directory")
	}
	synchronizer := filesync.New(storeClient, filesync.InstrumentKeyResolver(filesync.DefaultInstrumentKeys), filesync.Config{
		MaxConcurrentSyncs: cfg.ContentStore.FileSyncConcurrent,
		Classifier:         filesync.Classifier{ParseKey: filesync.ParseChartKey},
	})
	if err := filesync.NewReconciler(synchronizer, directory, broadcaster).Register(engine); err != nil {
		logging.Fatal().Err(err).Msg("Failed to register reconciler")
	}

	// Supervisor tree
	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	tree.AddStorageService(listingCache)
	if redisClient != nil {
		tree.AddStorageService(services.NewCloserService("redis-client", redisClient))
	}
	tree.AddMessagingService(broadcaster)
	tree.AddMessagingService(engine)

	if cfg.NATS.Enabled {
		publisher, err := eventbus.NewNATSPublisher(eventbus.NATSConfig{URL: cfg.NATS.URL}, eventbus.NewLogger())
		if err != nil {
			logging.Fatal().Err(err).Str("url", cfg.NATS.URL).Msg("Failed to connect to NATS")
		}
		forwarder := eventbus.NewForwarder(publisher, cfg.NATS.TopicPrefix)
		forwarder.Attach(broadcaster)
		tree.AddMessagingService(services.NewCloserService("event-forwarder", forwarder))
		logging.Info().Str("url", cfg.NATS.URL).Msg("Forwarding events to NATS JetStream")
	}

	if cfg.Watch.Enabled {
		folders, err := sourceFolders(ctx, directory)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to list tenant folders")
		}
		watcher, err := watch.New(backend, engine, watch.Config{
			Folders:  folders,
			TenantID: cfg.Watch.TenantID,
			Debounce: cfg.Watch.Debounce,
		})
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to create folder watcher")
		}
		tree.AddMessagingService(watcher)
	}

	// HTTP
	router := api.NewRouter(engine, registry, api.Config{
		CORSOrigins:              cfg.Server.CORSOrigins,
		WebhookSecret:            cfg.Webhooks.Secret,
		WebhookRateLimitRequests: cfg.Webhooks.RateLimitRequests,
		WebhookRateLimitWindow:   cfg.Webhooks.RateLimitWindow,
	},
		api.WithHealthCheck("audit", func(ctx context.Context) error {
			_, err := store.List(ctx, audit.Filter{Limit: 1})
			return err
		}),
		api.WithHealthCheck("content_store", func(context.Context) error {
			if state := storeClient.BreakerState(); state == "open" {
				return errors.New("circuit breaker open")
			}
			return nil
		}),
		api.WithStatus("broadcast", func() any { return broadcaster.Stats() }),
		api.WithStatus("content_store", func() any {
			return map[string]any{
				"breaker":      storeClient.BreakerState(),
				"rate":         limiter.CurrentRate(),
				"cache_size":   listingCache.Len(),
				"cache_hits":   listingCache.HitRate(),
				"audit_failed": recorder.Failed(),
				"audit_drops":  recorder.Dropped(),
			}
		}),
	)

	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router.Handler(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))

	logging.Info().Str("addr", server.Addr).Msg("Serving")
	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("Supervisor tree stopped with error")
	}

	if report, err := tree.UnstoppedServiceReport(); err == nil && len(report) > 0 {
		for _, svc := range report {
			logging.Warn().Str("service", svc.Name).Msg("Service did not stop within timeout")
		}
	}
	logging.Info().Msg("Shutdown complete")
}

// sourceFolders lists every tenant's source folder once.
func sourceFolders(ctx context.Context, dir filesync.Directory) ([]string, error) {
	tenants, err := dir.Tenants(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(tenants))
	folders := make([]string, 0, len(tenants))
	for _, t := range tenants {
		if _, ok := seen[t.SourceFolder]; ok || t.SourceFolder == "" {
			continue
		}
		seen[t.SourceFolder] = struct{}{}
		folders = append(folders, t.SourceFolder)
	}
	return folders, nil
}

// watchLogLevel applies logging.level changes from the config file.
func watchLogLevel(path string) {
	err := config.WatchConfigFile(path, func() {
		cfg, err := config.LoadWithKoanf()
		if err != nil {
			logging.Warn().Err(err).Str("path", path).Msg("Ignoring invalid config change")
			return
		}
		logging.SetLevelString(cfg.Logging.Level)
		logging.Info().Str("level", cfg.Logging.Level).Msg("Log level reloaded")
	})
	if err != nil {
		logging.Warn().Err(err).Str("path", path).Msg("Config file watch unavailable")
	}
}

func redactDSN(dsn string) string {
	if len(dsn) > 12 {
		return dsn[:12] + "..."
	}
	return dsn
}
