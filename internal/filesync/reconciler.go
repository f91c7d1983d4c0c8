// Soleil - Real-time Chart Synchronization and Broadcast Engine
// Copyright 2026 The Soleil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/murrayheaton/soleil-sub001

package filesync

import (
	"context"
	"errors"
	"fmt"

	"github.com/murrayheaton/soleil-sub001/internal/broadcast"
	"github.com/murrayheaton/soleil-sub001/internal/logging"
	syncengine "github.com/murrayheaton/soleil-sub001/internal/sync"
)

// ErrAllTargetsFailed fails an operation in which no target could be
// reconciled.
var ErrAllTargetsFailed = errors.New("filesync: every target failed")

// Notifier receives reconciliation progress and file changes.
// *broadcast.Broadcaster satisfies it.
type Notifier interface {
	BroadcastSyncProgress(tenantID, operationID string, progress, total int, message string) bool
	BroadcastFileAdded(tenantID string, file broadcast.FileInfo) bool
	BroadcastFileUpdated(tenantID string, file broadcast.FileInfo) bool
	BroadcastFileRemoved(tenantID string, file broadcast.FileInfo) bool
}

// Reconciler connects sync engine events to the synchronizer.
type Reconciler struct {
	sync   *Synchronizer
	dir    Directory
	notify Notifier
}

// NewReconciler creates a reconciler. notify may be nil.
func NewReconciler(s *Synchronizer, dir Directory, notify Notifier) *Reconciler {
	return &Reconciler{sync: s, dir: dir, notify: notify}
}

// Register installs the reconciler's handlers on engine.
func (r *Reconciler) Register(engine *syncengine.Engine) error {
	registrations := []struct {
		eventType syncengine.EventType
		handler   syncengine.Handler
	}{
		{syncengine.FullSyncRequested, r.HandleSyncRequest},
		{syncengine.DeltaSyncRequested, r.HandleSyncRequest},
		{syncengine.FileCreated, r.HandleFileChange},
		{syncengine.FileUpdated, r.HandleFileChange},
		{syncengine.FileDeleted, r.HandleFileChange},
	}
	for _, reg := range registrations {
		if err := engine.RegisterEventHandler(reg.eventType, reg.handler); err != nil {
			return fmt.Errorf("register %s handler: %w", reg.eventType, err)
		}
	}
	return nil
}

// HandleSyncRequest reconciles every target of the requesting tenant. Delta
// requests re-list the whole source folder.
func (r *Reconciler) HandleSyncRequest(ctx context.Context, ev syncengine.Event) error {
	tenant, err := r.dir.Tenant(ctx, ev.TenantID)
	if err != nil {
		return err
	}

	opID, _ := syncengine.OperationIDFromContext(ctx)
	progress := func(done, total int, target Target) {
		if r.notify != nil {
			r.notify.BroadcastSyncProgress(tenant.ID, opID, done, total, "reconciled "+target.UserID)
		}
	}

	res, err := r.sync.SyncFolder(ctx, tenant.SourceFolder, tenant.Targets, progress)
	if err != nil {
		return err
	}
	syncengine.AddOperationStats(ctx, res.Stats())
	return outcome(res)
}

// HandleFileChange reconciles the tenants affected by a file notification and
// announces the change. Events without a tenant fan out to every tenant.
func (r *Reconciler) HandleFileChange(ctx context.Context, ev syncengine.Event) error {
	tenants, err := r.affectedTenants(ctx, ev.TenantID)
	if err != nil {
		return err
	}

	var errs []error
	for _, tenant := range tenants {
		if err := r.reconcileTenant(ctx, tenant, ev); err != nil {
			errs = append(errs, fmt.Errorf("tenant %s: %w", tenant.ID, err))
		}
	}
	return errors.Join(errs...)
}

func (r *Reconciler) affectedTenants(ctx context.Context, tenantID string) ([]Tenant, error) {
	if tenantID != "" {
		t, err := r.dir.Tenant(ctx, tenantID)
		if err != nil {
			return nil, err
		}
		return []Tenant{t}, nil
	}
	return r.dir.Tenants(ctx)
}

func (r *Reconciler) reconcileTenant(ctx context.Context, tenant Tenant, ev syncengine.Event) error {
	source, err := r.sync.store.ListFiles(ctx, tenant.SourceFolder)
	if err != nil {
		return fmt.Errorf("list source folder %s: %w", tenant.SourceFolder, err)
	}

	info := broadcast.FileInfo{ID: ev.ResourceID, FolderID: tenant.SourceFolder}
	found := false
	for _, f := range source {
		if f.ID == ev.ResourceID {
			info.Name, info.MimeType = f.Name, f.MimeType
			found = true
			break
		}
	}
	if !found && ev.Type != syncengine.FileDeleted {
		// Not in this tenant's folder.
		logging.Ctx(ctx).Debug().
			Str("tenant_id", tenant.ID).
			Str("resource_id", ev.ResourceID).
			Msg("Changed file not in tenant source folder")
		return nil
	}

	res := r.sync.SyncSourceToTargets(ctx, source, tenant.Targets)
	if err := outcome(res); err != nil {
		return err
	}

	if r.notify != nil {
		switch ev.Type {
		case syncengine.FileCreated:
			r.notify.BroadcastFileAdded(tenant.ID, info)
		case syncengine.FileUpdated:
			r.notify.BroadcastFileUpdated(tenant.ID, info)
		case syncengine.FileDeleted:
			r.notify.BroadcastFileRemoved(tenant.ID, info)
		}
	}
	return nil
}

// outcome fails only when targets existed and none succeeded.
func outcome(res Result) error {
	if res.TargetsProcessed == 0 || len(res.Errors) < res.TargetsProcessed {
		return nil
	}
	errs := make([]error, 0, len(res.Errors)+1)
	errs = append(errs, ErrAllTargetsFailed)
	for _, e := range res.Errors {
		errs = append(errs, e)
	}
	return errors.Join(errs...)
}
