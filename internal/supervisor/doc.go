// Soleil - Real-time Chart Synchronization and Broadcast Engine
// Copyright 2026 The Soleil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/murrayheaton/soleil-sub001

/*
Package supervisor runs the long-lived parts of the sync service under a
suture v4 tree.

	RootSupervisor ("soleil")
	├── StorageSupervisor ("storage-layer")
	│   ├── listing cache sweeper
	│   └── audit recorder (closed on shutdown)
	├── MessagingSupervisor ("messaging-layer")
	│   ├── sync engine
	│   ├── broadcaster
	│   ├── folder watcher (if WATCH_ENABLED)
	│   └── event forwarder (if NATS_ENABLED, closed on shutdown)
	└── APISupervisor ("api-layer")
	    └── HTTP server

A crashing watcher is restarted with backoff without touching the HTTP
server. Supervisor events are logged through sutureslog on top of the
zerolog slog adapter.

Components that already expose Serve(ctx) error are added directly. The
services subpackage adapts the rest: *http.Server and resources that only
need Close on shutdown.
*/
package supervisor
