// Soleil - Real-time Chart Synchronization and Broadcast Engine
// Copyright 2026 The Soleil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/murrayheaton/soleil-sub001

package filesync

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/goccy/go-json"
)

// ErrUnknownTenant is returned for tenants the directory does not know.
var ErrUnknownTenant = errors.New("filesync: unknown tenant")

// Tenant is a band: one source folder shared by many member targets.
type Tenant struct {
	ID           string   `json:"id"`
	SourceFolder string   `json:"source_folder"`
	Targets      []Target `json:"targets"`
}

// Directory resolves tenants to their folders. Profile storage implements it
// in production.
type Directory interface {
	Tenant(ctx context.Context, id string) (Tenant, error)
	Tenants(ctx context.Context) ([]Tenant, error)
}

// StaticDirectory is an immutable in-memory Directory.
type StaticDirectory struct {
	tenants map[string]Tenant
}

// NewStaticDirectory indexes tenants by id.
func NewStaticDirectory(tenants []Tenant) *StaticDirectory {
	d := &StaticDirectory{tenants: make(map[string]Tenant, len(tenants))}
	for _, t := range tenants {
		d.tenants[t.ID] = t
	}
	return d
}

// LoadDirectory reads a JSON array of tenants from path.
func LoadDirectory(path string) (*StaticDirectory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tenant directory: %w", err)
	}
	var tenants []Tenant
	if err := json.Unmarshal(data, &tenants); err != nil {
		return nil, fmt.Errorf("parse tenant directory %s: %w", path, err)
	}
	for i, t := range tenants {
		if t.ID == "" || t.SourceFolder == "" {
			return nil, fmt.Errorf("tenant directory %s: entry %d needs id and source_folder", path, i)
		}
	}
	return NewStaticDirectory(tenants), nil
}

// Tenant returns the tenant with the given id.
func (d *StaticDirectory) Tenant(_ context.Context, id string) (Tenant, error) {
	t, ok := d.tenants[id]
	if !ok {
		return Tenant{}, fmt.Errorf("%w: %s", ErrUnknownTenant, id)
	}
	return t, nil
}

// Tenants returns every tenant sorted by id.
func (d *StaticDirectory) Tenants(context.Context) ([]Tenant, error) {
	out := make([]Tenant, 0, len(d.tenants))
	for _, t := range d.tenants {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
