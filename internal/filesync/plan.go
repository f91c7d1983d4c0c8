// Soleil - Real-time Chart Synchronization and Broadcast Engine
// Copyright 2026 The Soleil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/murrayheaton/soleil-sub001

package filesync

// Plan is the difference between a target folder and what it should hold.
type Plan struct {
	Create []File
	Delete []Shortcut
}

// Empty reports whether the plan changes nothing.
func (p Plan) Empty() bool {
	return len(p.Create) == 0 && len(p.Delete) == 0
}

// Wanted reports whether a target with the given accessible keys should see f.
// Audio and placeholders are visible to everyone.
func Wanted(f File, accessible map[string]struct{}) bool {
	if f.IsAudio || f.IsPlaceholder {
		return true
	}
	if f.Key == "" {
		return false
	}
	_, ok := accessible[f.Key]
	return ok
}

// BuildPlan diffs existing shortcuts against the desired subset of source.
// A shortcut is kept when it is the first one pointing at a wanted file;
// stale shortcuts and duplicates are deleted. Wanted files with no shortcut
// are created in source order.
func BuildPlan(source []File, existing []Shortcut, accessible map[string]struct{}) Plan {
	desired := make(map[string]struct{}, len(source))
	for _, f := range source {
		if Wanted(f, accessible) {
			desired[f.ID] = struct{}{}
		}
	}

	var plan Plan
	linked := make(map[string]struct{}, len(existing))
	for _, sc := range existing {
		if _, want := desired[sc.TargetFileID]; !want {
			plan.Delete = append(plan.Delete, sc)
			continue
		}
		if _, dup := linked[sc.TargetFileID]; dup {
			plan.Delete = append(plan.Delete, sc)
			continue
		}
		linked[sc.TargetFileID] = struct{}{}
	}

	created := make(map[string]struct{})
	for _, f := range source {
		if _, want := desired[f.ID]; !want {
			continue
		}
		if _, ok := linked[f.ID]; ok {
			continue
		}
		if _, ok := created[f.ID]; ok {
			continue
		}
		created[f.ID] = struct{}{}
		plan.Create = append(plan.Create, f)
	}
	return plan
}
