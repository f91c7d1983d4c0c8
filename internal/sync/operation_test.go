// Soleil - Real-time Chart Synchronization and Broadcast Engine
// Copyright 2026 The Soleil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/murrayheaton/soleil-sub001

package sync

import (
	"testing"
	"time"
)

func TestOperationTable_IDs(t *testing.T) {
	t.Parallel()

	table := newOperationTable()
	now := time.Unix(1767225600, 0)

	first := table.create(KindFull, "1", "", now)
	second := table.create(KindFull, "1", "", now)
	third := table.create(KindFull, "1", "", now)
	other := table.create(KindDelta, "1", "file-1", now)

	if first.ID != "full_sync_1_1767225600" {
		t.Errorf("first id = %q", first.ID)
	}
	if second.ID != "full_sync_1_1767225600-1" || third.ID != "full_sync_1_1767225600-2" {
		t.Errorf("collision ids = %q, %q", second.ID, third.ID)
	}
	if other.ID != "delta_sync_1_1767225600" {
		t.Errorf("delta id = %q", other.ID)
	}
	if first.Status != StatusPending {
		t.Errorf("Status = %q, want pending", first.Status)
	}
}

func TestOperationTable_Transitions(t *testing.T) {
	t.Parallel()

	table := newOperationTable()
	now := time.Unix(1000, 0)
	op := table.create(KindFull, "band", "", now)

	if _, ok := table.transition(op.ID, StatusInProgress, "", now); !ok {
		t.Fatal("pending -> in_progress rejected")
	}
	table.addStats(op.ID, map[string]int{"files": 2})
	table.addStats(op.ID, map[string]int{"files": 1, "targets": 4})

	done, ok := table.transition(op.ID, StatusCompleted, "", now.Add(time.Second))
	if !ok {
		t.Fatal("in_progress -> completed rejected")
	}
	if done.CompletedAt == nil || !done.CompletedAt.Equal(now.Add(time.Second)) {
		t.Errorf("CompletedAt = %v", done.CompletedAt)
	}
	if done.Stats["files"] != 3 || done.Stats["targets"] != 4 {
		t.Errorf("Stats = %v", done.Stats)
	}

	if _, ok := table.transition(op.ID, StatusFailed, "late", now); ok {
		t.Error("terminal operation must not transition")
	}
	table.addStats(op.ID, map[string]int{"files": 10})
	if got, _ := table.get(op.ID); got.Stats["files"] != 3 || got.Status != StatusCompleted {
		t.Errorf("terminal operation changed: %+v", got)
	}
	if _, ok := table.transition("missing", StatusFailed, "", now); ok {
		t.Error("unknown operation transitioned")
	}
}

func TestOperationTable_ListAndPrune(t *testing.T) {
	t.Parallel()

	table := newOperationTable()
	base := time.Unix(5000, 0)

	a1 := table.create(KindFull, "a", "", base)
	a2 := table.create(KindDelta, "a", "f", base.Add(time.Minute))
	table.create(KindFull, "b", "", base.Add(2*time.Minute))

	list := table.list("a")
	if len(list) != 2 || list[0].ID != a2.ID {
		t.Errorf("list(a) = %+v", list)
	}
	if len(table.list("")) != 3 {
		t.Errorf("list(all) = %d, want 3", len(table.list("")))
	}

	table.transition(a1.ID, StatusFailed, "boom", base.Add(time.Second))
	if n := table.prune(base.Add(time.Hour)); n != 1 {
		t.Errorf("prune() = %d, want 1", n)
	}
	if _, ok := table.get(a1.ID); ok {
		t.Error("pruned operation still present")
	}

	counts := table.countByStatus()
	if counts[StatusPending] != 2 || counts[StatusFailed] != 0 {
		t.Errorf("countByStatus() = %v", counts)
	}
}

func TestOperation_AuditRecord(t *testing.T) {
	t.Parallel()

	done := time.Unix(10, 0)
	op := Operation{ID: "x", TenantID: "t", Kind: KindFull, Status: StatusFailed, CompletedAt: &done, Stats: map[string]int{"a": 1}, Error: "e"}
	rec := op.auditRecord()
	if rec.Kind != "full" || rec.Status != "failed" || rec.Error != "e" || rec.Stats["a"] != 1 {
		t.Errorf("auditRecord() = %+v", rec)
	}
	rec.Stats["a"] = 5
	if op.Stats["a"] != 1 {
		t.Error("auditRecord shares the stats map")
	}
}
