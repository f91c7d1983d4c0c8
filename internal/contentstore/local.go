// Soleil - Real-time Chart Synchronization and Broadcast Engine
// Copyright 2026 The Soleil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/murrayheaton/soleil-sub001

package contentstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/goccy/go-json"

	"github.com/murrayheaton/soleil-sub001/internal/filesync"
)

// ShortcutSuffix marks shortcut stub files in a LocalBackend folder.
const ShortcutSuffix = ".shortcut.json"

// LocalBackend is a Backend on a directory tree. Folder ids are slash paths
// relative to the root, file and shortcut ids are slash paths of the files.
// Member folders are created on the first shortcut.
type LocalBackend struct {
	root string
}

var _ Backend = (*LocalBackend)(nil)

type shortcutStub struct {
	TargetFileID string `json:"target_file_id"`
	Name         string `json:"name"`
}

// NewLocalBackend creates a backend rooted at root, creating it if needed.
func NewLocalBackend(root string) (*LocalBackend, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve content store root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("create content store root: %w", err)
	}
	return &LocalBackend{root: abs}, nil
}

// Root returns the absolute root directory.
func (b *LocalBackend) Root() string {
	return b.root
}

// Path resolves an id to a filesystem path inside the root.
func (b *LocalBackend) Path(id string) (string, error) {
	clean := path.Clean("/" + id)
	if id == "" || clean == "/" || strings.Contains(id, "\\") {
		return "", fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	if clean != "/"+strings.TrimSuffix(id, "/") {
		return "", fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return filepath.Join(b.root, filepath.FromSlash(clean[1:])), nil
}

// ID converts a filesystem path inside the root back to an id.
func (b *LocalBackend) ID(p string) (string, bool) {
	rel, err := filepath.Rel(b.root, p)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

// ListFiles lists regular files in folderID, skipping hidden files and
// shortcut stubs.
func (b *LocalBackend) ListFiles(_ context.Context, folderID string) ([]filesync.File, error) {
	dir, entries, err := b.readDir(folderID)
	if err != nil {
		return nil, err
	}

	files := make([]filesync.File, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || strings.HasSuffix(name, ShortcutSuffix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if !info.Mode().IsRegular() {
			continue
		}
		files = append(files, filesync.File{
			ID:           path.Join(folderID, name),
			Name:         name,
			MimeType:     detectMIME(filepath.Join(dir, name)),
			ModifiedTime: info.ModTime(),
		})
	}
	return files, nil
}

// ListShortcuts lists the shortcut stubs in folderID. A missing folder has no
// shortcuts.
func (b *LocalBackend) ListShortcuts(_ context.Context, folderID string) ([]filesync.Shortcut, error) {
	dir, entries, err := b.readDir(folderID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var shortcuts []filesync.Shortcut
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ShortcutSuffix) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read shortcut %s: %w", e.Name(), err)
		}
		var stub shortcutStub
		if err := json.Unmarshal(data, &stub); err != nil {
			return nil, fmt.Errorf("decode shortcut %s: %w", e.Name(), err)
		}
		shortcuts = append(shortcuts, filesync.Shortcut{
			ID:           path.Join(folderID, e.Name()),
			TargetFileID: stub.TargetFileID,
			Name:         stub.Name,
		})
	}
	return shortcuts, nil
}

// CreateShortcut writes a stub pointing at file into folderID.
func (b *LocalBackend) CreateShortcut(_ context.Context, folderID string, file filesync.File) (filesync.Shortcut, error) {
	dir, err := b.Path(folderID)
	if err != nil {
		return filesync.Shortcut{}, err
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return filesync.Shortcut{}, fmt.Errorf("create folder %s: %w", folderID, err)
	}

	name := file.Name
	if name == "" {
		name = path.Base(file.ID)
	}
	data, err := json.Marshal(shortcutStub{TargetFileID: file.ID, Name: name})
	if err != nil {
		return filesync.Shortcut{}, err
	}

	base := strings.TrimPrefix(name, ".")
	for n := 1; ; n++ {
		stubName := base + ShortcutSuffix
		if n > 1 {
			stubName = fmt.Sprintf("%s-%d%s", base, n, ShortcutSuffix)
		}
		f, err := os.OpenFile(filepath.Join(dir, stubName), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return filesync.Shortcut{}, fmt.Errorf("create shortcut in %s: %w", folderID, err)
		}
		_, werr := f.Write(data)
		if cerr := f.Close(); werr == nil {
			werr = cerr
		}
		if werr != nil {
			return filesync.Shortcut{}, fmt.Errorf("write shortcut in %s: %w", folderID, werr)
		}
		return filesync.Shortcut{ID: path.Join(folderID, stubName), TargetFileID: file.ID, Name: name}, nil
	}
}

// DeleteShortcut removes a shortcut stub.
func (b *LocalBackend) DeleteShortcut(_ context.Context, shortcutID string) error {
	if !strings.HasSuffix(shortcutID, ShortcutSuffix) {
		return fmt.Errorf("%w: %q is not a shortcut", ErrInvalidID, shortcutID)
	}
	p, err := b.Path(shortcutID)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: shortcut %s", ErrNotFound, shortcutID)
		}
		return fmt.Errorf("delete shortcut %s: %w", shortcutID, err)
	}
	return nil
}

// FolderGeneration derives a generation from the directory mtime and entry
// count. A missing folder has generation "0.0".
func (b *LocalBackend) FolderGeneration(_ context.Context, folderID string) (string, error) {
	dir, entries, err := b.readDir(folderID)
	if errors.Is(err, ErrNotFound) {
		return "0.0", nil
	}
	if err != nil {
		return "", err
	}
	info, err := os.Stat(dir)
	if err != nil {
		return "", fmt.Errorf("stat folder %s: %w", folderID, err)
	}
	return fmt.Sprintf("%d.%d", info.ModTime().UnixNano(), len(entries)), nil
}

func (b *LocalBackend) readDir(folderID string) (string, []os.DirEntry, error) {
	dir, err := b.Path(folderID)
	if err != nil {
		return "", nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return dir, nil, fmt.Errorf("%w: folder %s", ErrNotFound, folderID)
		}
		return dir, nil, fmt.Errorf("read folder %s: %w", folderID, err)
	}
	return dir, entries, nil
}

func detectMIME(p string) string {
	mt, err := mimetype.DetectFile(p)
	if err != nil {
		return ""
	}
	return mt.String()
}
