// Soleil - Real-time Chart Synchronization and Broadcast Engine
// Copyright 2026 The Soleil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/murrayheaton/soleil-sub001

package audit

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrInvalidDSN is returned by Open for DSNs it cannot interpret.
var ErrInvalidDSN = errors.New("audit: invalid dsn")

// Open builds a Store from a DSN:
//
//	memory:               in-memory store
//	badger:/var/lib/x     BadgerDB directory
//	duckdb:/var/lib/x.db  DuckDB file (duckdb: alone is in-memory)
//	postgres://...        PostgreSQL
func Open(ctx context.Context, dsn string) (Store, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidDSN)
	}
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDSN, err)
	}

	switch scheme := strings.ToLower(parsed.Scheme); scheme {
	case "memory", "mem":
		return NewMemoryStore(0), nil
	case "badger":
		path := dsnPath(parsed)
		if path == "" {
			return nil, fmt.Errorf("%w: badger requires a directory", ErrInvalidDSN)
		}
		return OpenBadgerStore(path)
	case "duckdb":
		return OpenDuckDBStore(ctx, dsnPath(parsed))
	case "postgres", "postgresql":
		return OpenPostgresStore(ctx, dsn)
	default:
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidDSN, scheme)
	}
}

func dsnPath(parsed *url.URL) string {
	path := strings.TrimSpace(parsed.Path)
	if path == "" {
		path = strings.TrimSpace(parsed.Opaque)
	}
	if path == "" {
		path = strings.TrimSpace(parsed.Host)
	}
	return path
}
