// Soleil - Real-time Chart Synchronization and Broadcast Engine
// Copyright 2026 The Soleil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/murrayheaton/soleil-sub001

// Package filesync reconciles a shared source folder against per-user target
// folders of shortcuts.
//
// Each target sees the source files whose key it may read plus every audio
// file and placeholder. Reconciliation is incremental: only missing
// shortcuts are created and only stale or duplicate ones deleted.
package filesync

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/murrayheaton/soleil-sub001/internal/logging"
	"github.com/murrayheaton/soleil-sub001/internal/metrics"
)

// Config configures a Synchronizer.
type Config struct {
	// MaxConcurrentSyncs bounds how many targets are reconciled at once.
	// Default: 5.
	MaxConcurrentSyncs int

	// Classifier derives missing file attributes. The zero value detects
	// audio and placeholders but no keys.
	Classifier Classifier
}

// ProgressFunc is called after each target finishes.
type ProgressFunc func(done, total int, target Target)

// Synchronizer reconciles targets against a source listing.
type Synchronizer struct {
	store   Store
	resolve KeyResolver
	cfg     Config
}

// New creates a synchronizer.
func New(store Store, resolve KeyResolver, cfg Config) *Synchronizer {
	if cfg.MaxConcurrentSyncs <= 0 {
		cfg.MaxConcurrentSyncs = 5
	}
	if resolve == nil {
		resolve = func([]string) map[string]struct{} { return nil }
	}
	return &Synchronizer{store: store, resolve: resolve, cfg: cfg}
}

// SyncFolder lists sourceFolderID and reconciles every target against it.
func (s *Synchronizer) SyncFolder(ctx context.Context, sourceFolderID string, targets []Target, progress ProgressFunc) (Result, error) {
	source, err := s.store.ListFiles(ctx, sourceFolderID)
	if err != nil {
		return Result{}, fmt.Errorf("list source folder %s: %w", sourceFolderID, err)
	}
	return s.SyncSourceToTargetsWithProgress(ctx, source, targets, progress), nil
}

// SyncSourceToTargets reconciles every target against source. Targets run in
// parallel up to MaxConcurrentSyncs; a failing target is reported in
// Result.Errors and never stops the others.
func (s *Synchronizer) SyncSourceToTargets(ctx context.Context, source []File, targets []Target) Result {
	return s.SyncSourceToTargetsWithProgress(ctx, source, targets, nil)
}

// SyncSourceToTargetsWithProgress is SyncSourceToTargets with a callback per
// finished target. Callbacks are serialized and see done strictly increasing,
// so progress must not block.
func (s *Synchronizer) SyncSourceToTargetsWithProgress(ctx context.Context, source []File, targets []Target, progress ProgressFunc) Result {
	source = s.cfg.Classifier.ClassifyAll(source)

	var (
		mu     sync.Mutex
		result = Result{FilesProcessed: len(source)}
		done   int
	)

	var g errgroup.Group
	g.SetLimit(s.cfg.MaxConcurrentSyncs)

	for _, target := range targets {
		g.Go(func() error {
			created, deleted, err := s.syncTarget(ctx, source, target)

			mu.Lock()
			result.TargetsProcessed++
			result.ShortcutsCreated += created
			result.ShortcutsDeleted += deleted
			if err != nil {
				result.Errors = append(result.Errors, &TargetError{UserID: target.UserID, FolderID: target.FolderID, Err: err})
			}
			done++
			if progress != nil {
				progress(done, len(targets), target)
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return result
}

// syncTarget applies the plan for one target and returns how many shortcuts
// it created and deleted before any error.
func (s *Synchronizer) syncTarget(ctx context.Context, source []File, target Target) (created, deleted int, err error) {
	log := logging.Ctx(ctx).With().
		Str("user_id", target.UserID).
		Str("folder_id", target.FolderID).
		Logger()

	defer func() {
		if err != nil {
			metrics.FileSyncTargetErrors.Inc()
			log.Warn().Err(err).Msg("Target sync failed")
		}
	}()

	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}

	existing, err := s.store.ListShortcuts(ctx, target.FolderID)
	if err != nil {
		return 0, 0, fmt.Errorf("list shortcuts: %w", err)
	}

	plan := BuildPlan(source, existing, s.resolve(target.Instruments))
	if plan.Empty() {
		log.Debug().Msg("Target already in sync")
		return 0, 0, nil
	}

	for _, sc := range plan.Delete {
		if err := s.store.DeleteShortcut(ctx, sc.ID); err != nil {
			return created, deleted, fmt.Errorf("delete shortcut %s: %w", sc.ID, err)
		}
		deleted++
		metrics.FileSyncShortcuts.WithLabelValues("deleted").Inc()
	}
	for _, f := range plan.Create {
		if _, err := s.store.CreateShortcut(ctx, target.FolderID, f); err != nil {
			return created, deleted, fmt.Errorf("create shortcut for %s: %w", f.ID, err)
		}
		created++
		metrics.FileSyncShortcuts.WithLabelValues("created").Inc()
	}

	log.Debug().Int("created", created).Int("deleted", deleted).Msg("Target reconciled")
	return created, deleted, nil
}
