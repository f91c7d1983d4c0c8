// Soleil - Real-time Chart Synchronization and Broadcast Engine
// Copyright 2026 The Soleil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/murrayheaton/soleil-sub001

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists config file locations in priority order.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/soleil/config.yaml",
	"/etc/soleil/config.yml",
}

// ConfigPathEnvVar overrides the config file location.
const ConfigPathEnvVar = "CONFIG_PATH"

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			CORSOrigins:     []string{"*"},
		},
		Sync: SyncConfig{
			MaxConcurrentSyncs: 5,
			QueueSize:          1000,
			PollInterval:       time.Second,
			OperationRetention: 24 * time.Hour,
			// Stays under the supervisor shutdown timeout.
			ShutdownGrace: 8 * time.Second,
		},
		// The content store allows roughly 10 requests per second per user.
		RateLimit: RateLimitConfig{
			Rate:             10,
			Burst:            20,
			MinRate:          1,
			MaxRate:          50,
			IncreaseFactor:   1.1,
			DecreaseFactor:   0.5,
			SuccessThreshold: 10,
		},
		Cache: CacheConfig{
			MaxSize:         10000,
			DefaultTTL:      5 * time.Minute,
			CleanupInterval: time.Minute,
		},
		Broadcast: BroadcastConfig{
			QueueSize: 1000,
		},
		ContentStore: ContentStoreConfig{
			Backend:            "local",
			Root:               "/data/store",
			MaxRetries:         5,
			RetryBaseDelay:     time.Second,
			BreakerMaxFailures: 5,
			BreakerTimeout:     30 * time.Second,
			FileSyncConcurrent: 5,
			TenantsFile:        "/data/tenants.json",
		},
		Audit: AuditConfig{
			DSN: "memory:",
		},
		NATS: NATSConfig{
			Enabled:     false,
			URL:         "nats://127.0.0.1:4222",
			TopicPrefix: "soleil",
		},
		Redis: RedisConfig{
			Enabled:    false,
			Addr:       "127.0.0.1:6379",
			ListingTTL: 5 * time.Minute,
		},
		Webhooks: WebhooksConfig{
			RateLimitRequests: 300,
			RateLimitWindow:   time.Minute,
		},
		Watch: WatchConfig{
			Enabled:  false,
			Debounce: 250 * time.Millisecond,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadWithKoanf loads configuration from defaults, the optional config file
// and the environment, in that order, then validates it.
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// ConfigFilePath returns the config file LoadWithKoanf reads, or "" when
// none exists.
func ConfigFilePath() string {
	return findConfigFile()
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

var sliceConfigPaths = []string{
	"server.cors_origins",
}

// processSliceFields splits comma-separated env values for slice fields.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings maps lower-cased environment variable names to koanf paths.
// Unmapped variables are ignored.
var envMappings = map[string]string{
	"http_host":             "server.host",
	"http_port":             "server.port",
	"http_read_timeout":     "server.read_timeout",
	"http_write_timeout":    "server.write_timeout",
	"http_shutdown_timeout": "server.shutdown_timeout",
	"cors_origins":          "server.cors_origins",

	"sync_max_concurrent":       "sync.max_concurrent",
	"sync_queue_size":           "sync.queue_size",
	"sync_poll_interval":        "sync.poll_interval",
	"sync_operation_retention":  "sync.operation_retention",
	"sync_shutdown_grace":       "sync.shutdown_grace",
	"rate_limit_rate":           "rate_limit.rate",
	"rate_limit_burst":          "rate_limit.burst",
	"rate_limit_min_rate":       "rate_limit.min_rate",
	"rate_limit_max_rate":       "rate_limit.max_rate",
	"rate_limit_increase":       "rate_limit.increase_factor",
	"rate_limit_decrease":       "rate_limit.decrease_factor",
	"rate_limit_success_streak": "rate_limit.success_threshold",

	"cache_max_size":         "cache.max_size",
	"cache_default_ttl":      "cache.default_ttl",
	"cache_cleanup_interval": "cache.cleanup_interval",
	"broadcast_queue_size":   "broadcast.queue_size",

	"content_store_backend":       "content_store.backend",
	"content_store_root":          "content_store.root",
	"content_store_max_retries":   "content_store.max_retries",
	"content_store_retry_delay":   "content_store.retry_base_delay",
	"content_store_breaker_fails": "content_store.breaker_max_failures",
	"content_store_breaker_reset": "content_store.breaker_timeout",
	"filesync_max_concurrent":     "content_store.filesync_concurrent",
	"content_store_tenants":       "content_store.tenants_file",
	"audit_dsn":                   "audit.dsn",
	"nats_enabled":                "nats.enabled",
	"nats_url":                    "nats.url",
	"nats_topic_prefix":           "nats.topic_prefix",
	"redis_enabled":               "redis.enabled",
	"redis_addr":                  "redis.addr",
	"redis_password":              "redis.password",
	"redis_db":                    "redis.db",
	"redis_listing_ttl":           "redis.listing_ttl",
	"webhook_secret":              "webhooks.secret",
	"webhook_rate_limit_requests": "webhooks.rate_limit_requests",
	"webhook_rate_limit_window":   "webhooks.rate_limit_window",
	"watch_enabled":               "watch.enabled",
	"watch_tenant_id":             "watch.tenant_id",
	"watch_debounce":              "watch.debounce",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc maps an environment variable to its koanf path, e.g.
// SYNC_MAX_CONCURRENT -> sync.max_concurrent.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}

// WatchConfigFile calls callback whenever the file at path changes.
// Callers must synchronize access to any configuration they reload.
func WatchConfigFile(path string, callback func()) error {
	return file.Provider(path).Watch(func(_ interface{}, err error) {
		if err != nil {
			return
		}
		callback()
	})
}
