// Soleil - Real-time Chart Synchronization and Broadcast Engine
// Copyright 2026 The Soleil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/murrayheaton/soleil-sub001

package filesync

import (
	"context"
	"fmt"
	"time"
)

// File is an entry of a source folder listing.
type File struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	MimeType      string    `json:"mime_type,omitempty"`
	Key           string    `json:"key,omitempty"`
	IsPlaceholder bool      `json:"is_placeholder,omitempty"`
	IsAudio       bool      `json:"is_audio,omitempty"`
	ModifiedTime  time.Time `json:"modified_time"`
}

// Shortcut is a link in a target folder pointing at a source file.
type Shortcut struct {
	ID           string `json:"id"`
	TargetFileID string `json:"target_file_id"`
	Name         string `json:"name"`
}

// Target is one user's derived folder.
type Target struct {
	UserID      string   `json:"user_id"`
	Instruments []string `json:"instruments"`
	FolderID    string   `json:"folder_id"`
}

// TargetError records a failed target.
type TargetError struct {
	UserID   string
	FolderID string
	Err      error
}

func (e *TargetError) Error() string {
	return fmt.Sprintf("target %s (folder %s): %v", e.UserID, e.FolderID, e.Err)
}

func (e *TargetError) Unwrap() error {
	return e.Err
}

// Result summarizes one SyncSourceToTargets call.
type Result struct {
	TargetsProcessed int            `json:"targets_processed"`
	FilesProcessed   int            `json:"files_processed"`
	ShortcutsCreated int            `json:"shortcuts_created"`
	ShortcutsDeleted int            `json:"shortcuts_deleted"`
	Errors           []*TargetError `json:"-"`
}

// Stats flattens the result into operation counters.
func (r Result) Stats() map[string]int {
	return map[string]int{
		"targets_processed": r.TargetsProcessed,
		"files_processed":   r.FilesProcessed,
		"shortcuts_created": r.ShortcutsCreated,
		"shortcuts_deleted": r.ShortcutsDeleted,
		"target_errors":     len(r.Errors),
	}
}

// Store is the content-store surface the synchronizer needs.
type Store interface {
	ListFiles(ctx context.Context, folderID string) ([]File, error)
	ListShortcuts(ctx context.Context, folderID string) ([]Shortcut, error)
	CreateShortcut(ctx context.Context, folderID string, file File) (Shortcut, error)
	DeleteShortcut(ctx context.Context, shortcutID string) error
}

// KeyResolver maps a user's instruments to the set of chart keys they may
// read. It must be pure.
type KeyResolver func(instruments []string) map[string]struct{}
