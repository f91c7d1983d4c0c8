// Soleil - Real-time Chart Synchronization and Broadcast Engine
// Copyright 2026 The Soleil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/murrayheaton/soleil-sub001

// Package watch turns filesystem changes in local source folders into file
// store webhook notifications.
package watch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/murrayheaton/soleil-sub001/internal/contentstore"
	"github.com/murrayheaton/soleil-sub001/internal/logging"
	syncengine "github.com/murrayheaton/soleil-sub001/internal/sync"
)

// Resource states emitted in payloads.
const (
	StateAdd    = "add"
	StateUpdate = "update"
	StateRemove = "remove"
)

// WebhookSink receives webhook payloads. *sync.Engine satisfies it.
type WebhookSink interface {
	HandleWebhook(ctx context.Context, payload map[string]any) (*syncengine.Event, bool)
}

// Resolver maps folder ids to directories and paths back to ids.
// *contentstore.LocalBackend satisfies it.
type Resolver interface {
	Path(id string) (string, error)
	ID(path string) (string, bool)
}

// Config configures a Watcher.
type Config struct {
	// Folders are the folder ids to watch.
	Folders []string

	// TenantID is stamped on every payload. Empty fans out to all tenants.
	TenantID string

	// Debounce coalesces bursts of changes to one path. Default: 250ms.
	Debounce time.Duration
}

// Watcher watches folders and forwards debounced changes.
type Watcher struct {
	resolver Resolver
	sink     WebhookSink
	cfg      Config
	now      func() time.Time

	mu      sync.Mutex
	pending map[string]*pendingChange
}

type pendingChange struct {
	state string
	timer *time.Timer
}

// New creates a watcher.
func New(resolver Resolver, sink WebhookSink, cfg Config) (*Watcher, error) {
	if len(cfg.Folders) == 0 {
		return nil, errors.New("watch: no folders configured")
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 250 * time.Millisecond
	}
	return &Watcher{
		resolver: resolver,
		sink:     sink,
		cfg:      cfg,
		now:      time.Now,
		pending:  make(map[string]*pendingChange),
	}, nil
}

// Serve watches until ctx is cancelled.
func (w *Watcher) Serve(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create folder watcher: %w", err)
	}
	defer fw.Close()

	for _, folder := range w.cfg.Folders {
		dir, err := w.resolver.Path(folder)
		if err != nil {
			return err
		}
		if err := fw.Add(dir); err != nil {
			return fmt.Errorf("watch folder %s: %w", folder, err)
		}
	}

	log := logging.Ctx(ctx).With().Str("component", w.String()).Logger()
	log.Info().Strs("folders", w.cfg.Folders).Msg("Watching source folders")

	defer w.stopTimers()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			w.handle(ctx, ev)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("Folder watcher error")
		}
	}
}

func (w *Watcher) String() string {
	return "folder-watcher"
}

// handle schedules a notification for one filesystem event.
func (w *Watcher) handle(ctx context.Context, ev fsnotify.Event) {
	state := stateFor(ev.Op)
	name := filepath.Base(ev.Name)
	if state == "" || strings.HasPrefix(name, ".") || strings.HasSuffix(name, contentstore.ShortcutSuffix) {
		return
	}
	id, ok := w.resolver.ID(ev.Name)
	if !ok {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if p, ok := w.pending[id]; ok {
		p.state = mergeState(p.state, state)
		p.timer.Reset(w.cfg.Debounce)
		return
	}
	p := &pendingChange{state: state}
	p.timer = time.AfterFunc(w.cfg.Debounce, func() { w.fire(ctx, id) })
	w.pending[id] = p
}

func (w *Watcher) fire(ctx context.Context, id string) {
	w.mu.Lock()
	p, ok := w.pending[id]
	delete(w.pending, id)
	w.mu.Unlock()
	if !ok || ctx.Err() != nil {
		return
	}

	payload := map[string]any{
		"resourceId":    id,
		"resourceState": p.state,
		"timestamp":     w.now().UTC().Format(time.RFC3339Nano),
	}
	if w.cfg.TenantID != "" {
		payload["tenantId"] = w.cfg.TenantID
	}
	if _, accepted := w.sink.HandleWebhook(ctx, payload); !accepted {
		logging.Ctx(ctx).Warn().Str("resource_id", id).Str("state", p.state).Msg("Folder change not accepted by sync engine")
	}
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for id, p := range w.pending {
		p.timer.Stop()
		delete(w.pending, id)
	}
}

func stateFor(op fsnotify.Op) string {
	switch {
	case op.Has(fsnotify.Remove), op.Has(fsnotify.Rename):
		return StateRemove
	case op.Has(fsnotify.Create):
		return StateAdd
	case op.Has(fsnotify.Write):
		return StateUpdate
	default:
		return ""
	}
}

// mergeState folds a new change into a pending one. A file written right
// after creation is still new.
func mergeState(prev, next string) string {
	if prev == StateAdd && next == StateUpdate {
		return StateAdd
	}
	return next
}
