// Soleil - Real-time Chart Synchronization and Broadcast Engine
// Copyright 2026 The Soleil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/murrayheaton/soleil-sub001

// Package cache provides the TTL + LRU metadata cache in front of the content store.
//
// Entries expire lazily on Get and eagerly through a background sweep. When the
// cache is full, inserting a new key evicts the least recently accessed entry.
package cache

import (
	"context"
	"crypto/sha256"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/murrayheaton/soleil-sub001/internal/logging"
	"github.com/murrayheaton/soleil-sub001/internal/metrics"
)

// Config configures a Manager.
type Config struct {
	// Name labels metrics and logs.
	Name string

	// MaxSize is the entry cap. Default: 10000.
	MaxSize int

	// DefaultTTL applies to Set. Default: 5m.
	DefaultTTL time.Duration

	// CleanupInterval is the eager sweep period. Default: 1m.
	CleanupInterval time.Duration
}

// DefaultConfig returns the default cache configuration.
func DefaultConfig() Config {
	return Config{
		Name:            "default",
		MaxSize:         10000,
		DefaultTTL:      5 * time.Minute,
		CleanupInterval: time.Minute,
	}
}

// Stats is a snapshot of cache counters.
type Stats struct {
	Hits        int64
	Misses      int64
	Evictions   int64
	Size        int
	LastCleanup time.Time
}

// EntryInfo is the metadata of a cached entry.
type EntryInfo struct {
	CreatedAt    time.Time
	TTL          time.Duration
	AccessCount  int64
	LastAccessed time.Time
}

// Manager is a thread-safe TTL cache with LRU eviction behind a size cap.
// A single mutex guards the map and the access-order list; no I/O happens
// while it is held.
type Manager struct {
	cfg Config
	now func() time.Time

	mu          sync.Mutex
	items       map[string]*entry
	order       accessList
	hits        int64
	misses      int64
	evictions   int64
	lastCleanup time.Time

	runMu   sync.Mutex
	cancel  context.CancelFunc
	stopped chan struct{}
}

// NewManager creates a cache. Zero config fields take their defaults.
func NewManager(cfg Config) *Manager {
	def := DefaultConfig()
	if cfg.Name == "" {
		cfg.Name = def.Name
	}
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = def.MaxSize
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = def.DefaultTTL
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = def.CleanupInterval
	}

	m := &Manager{
		cfg:   cfg,
		now:   time.Now,
		items: make(map[string]*entry, min(cfg.MaxSize, 1024)),
	}
	m.order.init()
	return m
}

// Get returns the cached value. An expired entry is removed and counts as a miss.
func (m *Manager) Get(key string) (any, bool) {
	m.mu.Lock()
	now := m.now()

	e, ok := m.items[key]
	if !ok {
		m.misses++
		m.mu.Unlock()
		metrics.CacheMisses.WithLabelValues(m.cfg.Name).Inc()
		return nil, false
	}
	if e.expired(now) {
		m.removeLocked(e)
		m.misses++
		m.evictions++
		size := len(m.items)
		m.mu.Unlock()
		m.recordExpired(1, size)
		metrics.CacheMisses.WithLabelValues(m.cfg.Name).Inc()
		return nil, false
	}

	e.accessCount++
	e.lastAccessed = now
	m.order.moveToFront(e)
	m.hits++
	value := e.value
	m.mu.Unlock()

	metrics.CacheHits.WithLabelValues(m.cfg.Name).Inc()
	return value, true
}

// Peek returns an entry's metadata without counting an access.
func (m *Manager) Peek(key string) (EntryInfo, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.items[key]
	if !ok || e.expired(m.now()) {
		return EntryInfo{}, false
	}
	return EntryInfo{
		CreatedAt:    e.createdAt,
		TTL:          e.ttl,
		AccessCount:  e.accessCount,
		LastAccessed: e.lastAccessed,
	}, true
}

// Set stores value under key with the default TTL.
func (m *Manager) Set(key string, value any) {
	m.SetWithTTL(key, value, m.cfg.DefaultTTL)
}

// SetWithTTL stores value under key. A non-positive ttl uses the default.
func (m *Manager) SetWithTTL(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = m.cfg.DefaultTTL
	}

	m.mu.Lock()
	now := m.now()

	if e, ok := m.items[key]; ok {
		e.value = value
		e.createdAt = now
		e.ttl = ttl
		e.lastAccessed = now
		m.order.moveToFront(e)
		m.mu.Unlock()
		return
	}

	evicted := 0
	for len(m.items) >= m.cfg.MaxSize {
		oldest := m.order.back()
		if oldest == nil {
			break
		}
		m.removeLocked(oldest)
		m.evictions++
		evicted++
	}

	e := &entry{
		key:          key,
		value:        value,
		createdAt:    now,
		ttl:          ttl,
		lastAccessed: now,
	}
	m.items[key] = e
	m.order.pushFront(e)
	size := len(m.items)
	m.mu.Unlock()

	if evicted > 0 {
		metrics.CacheEvictions.WithLabelValues(m.cfg.Name, "capacity").Add(float64(evicted))
	}
	metrics.CacheEntries.WithLabelValues(m.cfg.Name).Set(float64(size))
}

// Delete removes key and reports whether it was present.
func (m *Manager) Delete(key string) bool {
	m.mu.Lock()
	e, ok := m.items[key]
	if ok {
		m.removeLocked(e)
	}
	size := len(m.items)
	m.mu.Unlock()

	if ok {
		metrics.CacheEntries.WithLabelValues(m.cfg.Name).Set(float64(size))
	}
	return ok
}

// InvalidatePrefix removes every key starting with prefix and returns the count.
func (m *Manager) InvalidatePrefix(prefix string) int {
	m.mu.Lock()
	removed := 0
	for key, e := range m.items {
		if strings.HasPrefix(key, prefix) {
			m.removeLocked(e)
			removed++
		}
	}
	size := len(m.items)
	m.mu.Unlock()

	if removed > 0 {
		metrics.CacheEntries.WithLabelValues(m.cfg.Name).Set(float64(size))
	}
	return removed
}

// Clear removes all entries. Counters are kept.
func (m *Manager) Clear() {
	m.mu.Lock()
	m.items = make(map[string]*entry, min(m.cfg.MaxSize, 1024))
	m.order.init()
	m.mu.Unlock()

	metrics.CacheEntries.WithLabelValues(m.cfg.Name).Set(0)
}

// Len returns the number of entries, including expired ones not yet swept.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// Stats returns a snapshot of the cache counters.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{
		Hits:        m.hits,
		Misses:      m.misses,
		Evictions:   m.evictions,
		Size:        len(m.items),
		LastCleanup: m.lastCleanup,
	}
}

// HitRate returns hits as a percentage of lookups, 0 when there were none.
func (m *Manager) HitRate() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := m.hits + m.misses
	if total == 0 {
		return 0
	}
	return float64(m.hits) / float64(total) * 100
}

// CleanupExpired sweeps all expired entries and returns how many were removed.
func (m *Manager) CleanupExpired() int {
	m.mu.Lock()
	now := m.now()
	removed := 0
	for e := m.order.back(); e != nil; {
		prev := m.order.prev(e)
		if e.expired(now) {
			m.removeLocked(e)
			removed++
		}
		e = prev
	}
	m.evictions += int64(removed)
	m.lastCleanup = now
	size := len(m.items)
	m.mu.Unlock()

	m.recordExpired(removed, size)
	return removed
}

func (m *Manager) recordExpired(n, size int) {
	if n == 0 {
		return
	}
	metrics.CacheEvictions.WithLabelValues(m.cfg.Name, "expired").Add(float64(n))
	metrics.CacheEntries.WithLabelValues(m.cfg.Name).Set(float64(size))
}

// removeLocked must be called with mu held.
func (m *Manager) removeLocked(e *entry) {
	m.order.remove(e)
	delete(m.items, e.key)
}

// Start launches the background sweep. Calling Start on a running cache is a no-op.
func (m *Manager) Start(ctx context.Context) {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if m.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	m.cancel = cancel
	m.stopped = done

	go func() {
		defer close(done)
		m.sweepLoop(ctx)
	}()
}

// Stop cancels the background sweep and waits for it to exit.
func (m *Manager) Stop() {
	m.runMu.Lock()
	cancel, done := m.cancel, m.stopped
	m.cancel, m.stopped = nil, nil
	m.runMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Serve runs the sweep in the calling goroutine until ctx is cancelled.
// It implements suture.Service.
func (m *Manager) Serve(ctx context.Context) error {
	m.sweepLoop(ctx)
	return ctx.Err()
}

func (m *Manager) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.CleanupExpired(); n > 0 {
				logging.Debug().Str("cache", m.cfg.Name).Int("removed", n).Msg("Swept expired cache entries")
			}
		}
	}
}

// String implements fmt.Stringer for supervisor logs.
func (m *Manager) String() string {
	return "cache-" + m.cfg.Name
}

// GenerateKey builds a compact, stable key from a method name and parameters.
func GenerateKey(method string, params interface{}) string {
	data, err := json.Marshal(params)
	if err != nil {
		return fmt.Sprintf("%s:%v", method, params)
	}
	hash := sha256.Sum256(data)
	return fmt.Sprintf("%s:%x", method, hash[:16])
}
