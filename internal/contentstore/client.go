// Soleil - Real-time Chart Synchronization and Broadcast Engine
// Copyright 2026 The Soleil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/murrayheaton/soleil-sub001

// Package contentstore is the throttled, cached client for the shared file
// store that holds band charts.
//
// Every backend call waits on the adaptive rate limiter and runs through a
// circuit breaker. Transient failures are retried with exponential backoff.
// Folder listings are cached under a key that includes the folder's listing
// generation, so a changed folder is never served from a stale entry.
package contentstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/sync/singleflight"

	"github.com/murrayheaton/soleil-sub001/internal/cache"
	"github.com/murrayheaton/soleil-sub001/internal/filesync"
	"github.com/murrayheaton/soleil-sub001/internal/logging"
	"github.com/murrayheaton/soleil-sub001/internal/metrics"
	"github.com/murrayheaton/soleil-sub001/internal/ratelimit"
)

// Backend is the content store API surface.
type Backend interface {
	ListFiles(ctx context.Context, folderID string) ([]filesync.File, error)
	ListShortcuts(ctx context.Context, folderID string) ([]filesync.Shortcut, error)
	CreateShortcut(ctx context.Context, folderID string, file filesync.File) (filesync.Shortcut, error)
	DeleteShortcut(ctx context.Context, shortcutID string) error

	// FolderGeneration returns a marker that changes whenever the folder's
	// listing changes.
	FolderGeneration(ctx context.Context, folderID string) (string, error)
}

// SharedCache is a cache tier shared between processes.
type SharedCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Config configures a Client.
type Config struct {
	// Name labels the circuit breaker.
	Name string

	// MaxRetries is the attempt cap per call. Default: 5.
	MaxRetries int

	// RetryBaseDelay is the first backoff, doubled per attempt. Default: 1s.
	RetryBaseDelay time.Duration

	// BreakerMaxFailures opens the circuit after this many consecutive
	// failures. Default: 5.
	BreakerMaxFailures uint32

	// BreakerTimeout is how long the circuit stays open. Default: 30s.
	BreakerTimeout time.Duration

	// SharedTTL is the lifetime of listings in the shared cache. Default: 5m.
	SharedTTL time.Duration
}

func (c *Config) applyDefaults() {
	if c.Name == "" {
		c.Name = "content-store"
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 5
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = time.Second
	}
	if c.BreakerMaxFailures == 0 {
		c.BreakerMaxFailures = 5
	}
	if c.BreakerTimeout <= 0 {
		c.BreakerTimeout = 30 * time.Second
	}
	if c.SharedTTL <= 0 {
		c.SharedTTL = 5 * time.Minute
	}
}

// Option configures optional Client collaborators.
type Option func(*Client)

// WithSharedCache adds a second cache tier behind the in-process cache.
func WithSharedCache(s SharedCache) Option {
	return func(c *Client) { c.shared = s }
}

// Client implements filesync.Store on top of a Backend.
type Client struct {
	backend Backend
	limiter *ratelimit.Dynamic
	cache   *cache.Manager
	shared  SharedCache
	breaker *breaker
	cfg     Config

	group singleflight.Group

	owners *shortcutOwners
}

var _ filesync.Store = (*Client)(nil)

// NewClient creates a client. limiter and c are required.
func NewClient(backend Backend, limiter *ratelimit.Dynamic, c *cache.Manager, cfg Config, opts ...Option) *Client {
	cfg.applyDefaults()
	client := &Client{
		backend: backend,
		limiter: limiter,
		cache:   c,
		breaker: newBreaker(cfg.Name, cfg.BreakerMaxFailures, cfg.BreakerTimeout),
		cfg:     cfg,
		owners:  newShortcutOwners(),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// ListFiles lists the files in folderID.
func (c *Client) ListFiles(ctx context.Context, folderID string) ([]filesync.File, error) {
	files, err := cachedListing(ctx, c, folderID, "files", func(ctx context.Context) ([]filesync.File, error) {
		return c.backend.ListFiles(ctx, folderID)
	})
	if err != nil {
		return nil, err
	}
	return append([]filesync.File(nil), files...), nil
}

// ListShortcuts lists the shortcuts in folderID.
func (c *Client) ListShortcuts(ctx context.Context, folderID string) ([]filesync.Shortcut, error) {
	shortcuts, err := cachedListing(ctx, c, folderID, "shortcuts", func(ctx context.Context) ([]filesync.Shortcut, error) {
		return c.backend.ListShortcuts(ctx, folderID)
	})
	if err != nil {
		return nil, err
	}
	c.owners.replace(folderID, shortcuts)
	return append([]filesync.Shortcut(nil), shortcuts...), nil
}

// CreateShortcut creates a shortcut to file in folderID.
func (c *Client) CreateShortcut(ctx context.Context, folderID string, file filesync.File) (filesync.Shortcut, error) {
	var sc filesync.Shortcut
	err := c.call(ctx, "create_shortcut", func(ctx context.Context) error {
		var err error
		sc, err = c.backend.CreateShortcut(ctx, folderID, file)
		return err
	})
	if err != nil {
		return filesync.Shortcut{}, err
	}

	c.owners.add(folderID, sc.ID)
	c.invalidate(folderID)
	return sc, nil
}

// DeleteShortcut deletes a shortcut.
func (c *Client) DeleteShortcut(ctx context.Context, shortcutID string) error {
	err := c.call(ctx, "delete_shortcut", func(ctx context.Context) error {
		return c.backend.DeleteShortcut(ctx, shortcutID)
	})
	if err != nil {
		return err
	}

	if folderID, known := c.owners.remove(shortcutID); known {
		c.invalidate(folderID)
	} else {
		c.cache.InvalidatePrefix("listing:")
	}
	return nil
}

// BreakerState reports the circuit breaker state: closed, half-open or open.
func (c *Client) BreakerState() string {
	return stateToString(c.breaker.state())
}

func (c *Client) invalidate(folderID string) {
	c.cache.InvalidatePrefix(listingPrefix(folderID))
}

func listingPrefix(folderID string) string {
	return "listing:" + folderID + ":"
}

// cachedListing serves a listing from the local cache, then the shared cache,
// then the backend. Concurrent misses for the same key share one fetch.
func cachedListing[T any](ctx context.Context, c *Client, folderID, kind string, fetch func(context.Context) ([]T, error)) ([]T, error) {
	var gen string
	err := c.call(ctx, "folder_generation", func(ctx context.Context) error {
		var err error
		gen, err = c.backend.FolderGeneration(ctx, folderID)
		return err
	})
	if err != nil {
		return nil, err
	}

	key := listingPrefix(folderID) + gen + ":" + kind
	if v, ok := c.cache.Get(key); ok {
		if items, ok := v.([]T); ok {
			return items, nil
		}
	}

	v, err, shared := c.group.Do(key, func() (any, error) {
		if items, ok := sharedGet[T](ctx, c, key); ok {
			c.cache.Set(key, items)
			return items, nil
		}

		var items []T
		err := c.call(ctx, "list_"+kind, func(ctx context.Context) error {
			var err error
			items, err = fetch(ctx)
			return err
		})
		if err != nil {
			return nil, err
		}
		c.cache.Set(key, items)
		c.sharedSet(ctx, key, items)
		return items, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		logging.Ctx(ctx).Debug().Str("key", key).Msg("Listing fetch shared with concurrent caller")
	}
	return v.([]T), nil
}

func sharedGet[T any](ctx context.Context, c *Client, key string) ([]T, bool) {
	if c.shared == nil {
		return nil, false
	}
	data, ok, err := c.shared.Get(ctx, key)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("Shared listing cache read failed")
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var items []T
	if err := json.Unmarshal(data, &items); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("Discarding undecodable shared listing")
		return nil, false
	}
	return items, true
}

func (c *Client) sharedSet(ctx context.Context, key string, items any) {
	if c.shared == nil {
		return
	}
	data, err := json.Marshal(items)
	if err != nil {
		return
	}
	if err := c.shared.Set(ctx, key, data, c.cfg.SharedTTL); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("Shared listing cache write failed")
	}
}

// call runs fn against the backend behind the rate limiter and circuit
// breaker, retrying transient failures with exponential backoff.
func (c *Client) call(ctx context.Context, op string, fn func(context.Context) error) error {
	delay := c.cfg.RetryBaseDelay

	for attempt := 1; ; attempt++ {
		if _, err := c.limiter.Acquire(ctx, 1); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}

		start := time.Now()
		err := c.breaker.execute(func() error { return fn(ctx) })
		metrics.RecordContentStoreCall(op, resultLabel(err), time.Since(start))

		if err == nil {
			c.limiter.ReportSuccess()
			return nil
		}
		if !IsTransient(err) || errors.Is(err, ErrCircuitOpen) {
			return fmt.Errorf("%s: %w", op, err)
		}
		if errors.Is(err, ErrRateLimited) {
			c.limiter.ReportRateLimitError()
		}
		if attempt >= c.cfg.MaxRetries {
			return fmt.Errorf("%s: giving up after %d attempts: %w", op, attempt, err)
		}

		wait := delay
		var ra *RetryAfterError
		if errors.As(err, &ra) && ra.After > wait {
			wait = ra.After
		}

		logging.Ctx(ctx).Warn().
			Err(err).
			Str("operation", op).
			Int("attempt", attempt).
			Dur("backoff", wait).
			Msg("Transient content store error, retrying")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%s: %w", op, ctx.Err())
		case <-timer.C:
		}
		delay *= 2
	}
}

// shortcutOwners maps shortcut ids to the folder they were last listed in so
// a delete invalidates only that folder. Each listing replaces the folder's
// previous entries, which keeps the index no larger than the live listings.
type shortcutOwners struct {
	mu       sync.Mutex
	owner    map[string]string
	byFolder map[string]map[string]struct{}
}

func newShortcutOwners() *shortcutOwners {
	return &shortcutOwners{
		owner:    make(map[string]string),
		byFolder: make(map[string]map[string]struct{}),
	}
}

func (o *shortcutOwners) replace(folderID string, shortcuts []filesync.Shortcut) {
	o.mu.Lock()
	defer o.mu.Unlock()

	for id := range o.byFolder[folderID] {
		if o.owner[id] == folderID {
			delete(o.owner, id)
		}
	}
	delete(o.byFolder, folderID)
	if len(shortcuts) == 0 {
		return
	}

	ids := make(map[string]struct{}, len(shortcuts))
	for _, sc := range shortcuts {
		if prev, ok := o.owner[sc.ID]; ok && prev != folderID {
			delete(o.byFolder[prev], sc.ID)
		}
		o.owner[sc.ID] = folderID
		ids[sc.ID] = struct{}{}
	}
	o.byFolder[folderID] = ids
}

func (o *shortcutOwners) add(folderID, shortcutID string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if prev, ok := o.owner[shortcutID]; ok && prev != folderID {
		delete(o.byFolder[prev], shortcutID)
	}
	o.owner[shortcutID] = folderID
	if o.byFolder[folderID] == nil {
		o.byFolder[folderID] = make(map[string]struct{})
	}
	o.byFolder[folderID][shortcutID] = struct{}{}
}

func (o *shortcutOwners) remove(shortcutID string) (string, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	folderID, ok := o.owner[shortcutID]
	if !ok {
		return "", false
	}
	delete(o.owner, shortcutID)
	if ids := o.byFolder[folderID]; ids != nil {
		delete(ids, shortcutID)
		if len(ids) == 0 {
			delete(o.byFolder, folderID)
		}
	}
	return folderID, true
}

func (o *shortcutOwners) size() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.owner)
}
