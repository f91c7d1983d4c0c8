// Soleil - Real-time Chart Synchronization and Broadcast Engine
// Copyright 2026 The Soleil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/murrayheaton/soleil-sub001

package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/murrayheaton/soleil-sub001/internal/logging"
)

// Validate checks the loaded configuration for values the engine cannot run with.
func (c *Config) Validate() error {
	validators := []func() error{
		c.validateServer,
		c.validateSync,
		c.validateRateLimit,
		c.validateCache,
		c.validateContentStore,
		c.validateAudit,
		c.validateNATS,
		c.validateRedis,
		c.validateWebhooks,
		c.validateLogging,
	}
	for _, v := range validators {
		if err := v(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.ShutdownTimeout < 0 {
		return errors.New("HTTP_SHUTDOWN_TIMEOUT must not be negative")
	}
	return nil
}

func (c *Config) validateSync() error {
	if c.Sync.MaxConcurrentSyncs <= 0 {
		return fmt.Errorf("SYNC_MAX_CONCURRENT must be positive, got %d", c.Sync.MaxConcurrentSyncs)
	}
	if c.Sync.QueueSize <= 0 {
		return fmt.Errorf("SYNC_QUEUE_SIZE must be positive, got %d", c.Sync.QueueSize)
	}
	if c.Sync.PollInterval <= 0 {
		return errors.New("SYNC_POLL_INTERVAL must be positive")
	}
	if c.Sync.OperationRetention < 0 {
		return errors.New("SYNC_OPERATION_RETENTION must not be negative")
	}
	if c.Sync.ShutdownGrace < 0 {
		return errors.New("SYNC_SHUTDOWN_GRACE must not be negative")
	}
	return nil
}

func (c *Config) validateRateLimit() error {
	r := c.RateLimit
	switch {
	case r.Rate <= 0:
		return fmt.Errorf("RATE_LIMIT_RATE must be positive, got %v", r.Rate)
	case r.Burst <= 0:
		return fmt.Errorf("RATE_LIMIT_BURST must be positive, got %d", r.Burst)
	case r.MinRate <= 0:
		return fmt.Errorf("RATE_LIMIT_MIN_RATE must be positive, got %v", r.MinRate)
	case r.MaxRate < r.MinRate:
		return fmt.Errorf("RATE_LIMIT_MAX_RATE (%v) must be >= RATE_LIMIT_MIN_RATE (%v)", r.MaxRate, r.MinRate)
	case r.Rate < r.MinRate || r.Rate > r.MaxRate:
		return fmt.Errorf("RATE_LIMIT_RATE (%v) must be within [%v, %v]", r.Rate, r.MinRate, r.MaxRate)
	case r.IncreaseFactor < 1:
		return fmt.Errorf("RATE_LIMIT_INCREASE must be >= 1, got %v", r.IncreaseFactor)
	case r.DecreaseFactor <= 0 || r.DecreaseFactor > 1:
		return fmt.Errorf("RATE_LIMIT_DECREASE must be in (0, 1], got %v", r.DecreaseFactor)
	case r.SuccessThreshold <= 0:
		return fmt.Errorf("RATE_LIMIT_SUCCESS_STREAK must be positive, got %d", r.SuccessThreshold)
	}
	return nil
}

func (c *Config) validateCache() error {
	if c.Cache.MaxSize <= 0 {
		return fmt.Errorf("CACHE_MAX_SIZE must be positive, got %d", c.Cache.MaxSize)
	}
	if c.Cache.DefaultTTL <= 0 {
		return errors.New("CACHE_DEFAULT_TTL must be positive")
	}
	if c.Cache.CleanupInterval <= 0 {
		return errors.New("CACHE_CLEANUP_INTERVAL must be positive")
	}
	if c.Broadcast.QueueSize <= 0 {
		return fmt.Errorf("BROADCAST_QUEUE_SIZE must be positive, got %d", c.Broadcast.QueueSize)
	}
	return nil
}

func (c *Config) validateContentStore() error {
	cs := c.ContentStore
	if cs.Backend != "local" {
		return fmt.Errorf("CONTENT_STORE_BACKEND %q is not supported (supported: local)", cs.Backend)
	}
	if cs.Root == "" {
		return errors.New("CONTENT_STORE_ROOT is required")
	}
	if cs.MaxRetries < 1 {
		return fmt.Errorf("CONTENT_STORE_MAX_RETRIES must be at least 1, got %d", cs.MaxRetries)
	}
	if cs.FileSyncConcurrent <= 0 {
		return fmt.Errorf("FILESYNC_MAX_CONCURRENT must be positive, got %d", cs.FileSyncConcurrent)
	}
	if cs.TenantsFile == "" {
		return errors.New("CONTENT_STORE_TENANTS is required")
	}
	return nil
}

func (c *Config) validateAudit() error {
	dsn := c.Audit.DSN
	for _, prefix := range []string{"memory:", "badger:", "duckdb:", "postgres://", "postgresql://"} {
		if strings.HasPrefix(dsn, prefix) {
			return nil
		}
	}
	return fmt.Errorf("AUDIT_DSN %q has an unsupported scheme", dsn)
}

func (c *Config) validateNATS() error {
	if !c.NATS.Enabled {
		return nil
	}
	u, err := url.Parse(c.NATS.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("NATS_URL %q is not a valid URL", c.NATS.URL)
	}
	if c.NATS.TopicPrefix == "" {
		return errors.New("NATS_TOPIC_PREFIX is required when NATS_ENABLED=true")
	}
	return nil
}

func (c *Config) validateRedis() error {
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return errors.New("REDIS_ADDR is required when REDIS_ENABLED=true")
	}
	return nil
}

func (c *Config) validateWebhooks() error {
	if c.Webhooks.RateLimitRequests < 0 {
		return errors.New("WEBHOOK_RATE_LIMIT_REQUESTS must not be negative")
	}
	if c.Webhooks.RateLimitRequests > 0 && c.Webhooks.RateLimitWindow <= 0 {
		return errors.New("WEBHOOK_RATE_LIMIT_WINDOW must be positive when rate limiting is enabled")
	}
	return nil
}

func (c *Config) validateLogging() error {
	if !logging.ValidLevel(c.Logging.Level) {
		return fmt.Errorf("LOG_LEVEL %q is invalid", c.Logging.Level)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.Logging.Format)
	}
	return nil
}
