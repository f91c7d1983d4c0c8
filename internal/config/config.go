// Soleil - Real-time Chart Synchronization and Broadcast Engine
// Copyright 2026 The Soleil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/murrayheaton/soleil-sub001

// Package config loads the engine configuration.
//
// Configuration is layered with koanf: built-in defaults, then an optional
// YAML file, then environment variables. Later layers win.
//
//	cfg, err := config.LoadWithKoanf()
//	if err != nil {
//	    logging.Fatal().Err(err).Msg("Invalid configuration")
//	}
package config

import (
	"fmt"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server       ServerConfig       `koanf:"server"`
	Sync         SyncConfig         `koanf:"sync"`
	RateLimit    RateLimitConfig    `koanf:"rate_limit"`
	Cache        CacheConfig        `koanf:"cache"`
	Broadcast    BroadcastConfig    `koanf:"broadcast"`
	ContentStore ContentStoreConfig `koanf:"content_store"`
	Audit        AuditConfig        `koanf:"audit"`
	NATS         NATSConfig         `koanf:"nats"`
	Redis        RedisConfig        `koanf:"redis"`
	Webhooks     WebhooksConfig     `koanf:"webhooks"`
	Watch        WatchConfig        `koanf:"watch"`
	Logging      LoggingConfig      `koanf:"logging"`
}

// ServerConfig configures the HTTP adapter.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	CORSOrigins     []string      `koanf:"cors_origins"`
}

// Addr returns host:port for net/http.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// SyncConfig configures the sync engine queue and worker bound.
type SyncConfig struct {
	MaxConcurrentSyncs int           `koanf:"max_concurrent"`
	QueueSize          int           `koanf:"queue_size"`
	PollInterval       time.Duration `koanf:"poll_interval"`
	OperationRetention time.Duration `koanf:"operation_retention"`
	ShutdownGrace      time.Duration `koanf:"shutdown_grace"`
}

// RateLimitConfig configures the adaptive limiter in front of the content store.
type RateLimitConfig struct {
	Rate             float64 `koanf:"rate"`
	Burst            int     `koanf:"burst"`
	MinRate          float64 `koanf:"min_rate"`
	MaxRate          float64 `koanf:"max_rate"`
	IncreaseFactor   float64 `koanf:"increase_factor"`
	DecreaseFactor   float64 `koanf:"decrease_factor"`
	SuccessThreshold int     `koanf:"success_threshold"`
}

// CacheConfig configures the in-process metadata cache.
type CacheConfig struct {
	MaxSize         int           `koanf:"max_size"`
	DefaultTTL      time.Duration `koanf:"default_ttl"`
	CleanupInterval time.Duration `koanf:"cleanup_interval"`
}

// BroadcastConfig configures the event broadcaster.
type BroadcastConfig struct {
	QueueSize int `koanf:"queue_size"`
}

// ContentStoreConfig configures access to the shared file store.
type ContentStoreConfig struct {
	// Backend selects the implementation. Only "local" ships with the engine.
	Backend            string        `koanf:"backend"`
	Root               string        `koanf:"root"`
	MaxRetries         int           `koanf:"max_retries"`
	RetryBaseDelay     time.Duration `koanf:"retry_base_delay"`
	BreakerMaxFailures uint32        `koanf:"breaker_max_failures"`
	BreakerTimeout     time.Duration `koanf:"breaker_timeout"`
	FileSyncConcurrent int           `koanf:"filesync_concurrent"`

	// TenantsFile is a JSON array of bands with their source and member folders.
	TenantsFile string `koanf:"tenants_file"`
}

// AuditConfig selects where sync operation records are written.
// DSN schemes: memory:, badger:/path, duckdb:/path, postgres://...
type AuditConfig struct {
	DSN string `koanf:"dsn"`
}

// NATSConfig configures event forwarding to an external NATS JetStream broker.
type NATSConfig struct {
	Enabled     bool   `koanf:"enabled"`
	URL         string `koanf:"url"`
	TopicPrefix string `koanf:"topic_prefix"`
}

// RedisConfig configures the shared listing cache.
type RedisConfig struct {
	Enabled    bool          `koanf:"enabled"`
	Addr       string        `koanf:"addr"`
	Password   string        `koanf:"password"`
	DB         int           `koanf:"db"`
	ListingTTL time.Duration `koanf:"listing_ttl"`
}

// WebhooksConfig configures webhook ingress.
type WebhooksConfig struct {
	// Secret enables HMAC-SHA256 verification of X-Webhook-Signature when set.
	Secret            string        `koanf:"secret"`
	RateLimitRequests int           `koanf:"rate_limit_requests"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
}

// WatchConfig configures the local folder watcher.
type WatchConfig struct {
	Enabled  bool          `koanf:"enabled"`
	TenantID string        `koanf:"tenant_id"`
	Debounce time.Duration `koanf:"debounce"`
}

// LoggingConfig configures zerolog output.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}
