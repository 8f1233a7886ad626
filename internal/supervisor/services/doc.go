// Trailkeeper - Background Location Telemetry Capture and Change Feed
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trailkeeper

/*
Package services provides suture.Service wrappers for Trailkeeper components.

Components with their own lifecycle (ListenAndServe, RunWithContext, an
already started embedded server, an adapter with Launch and StopUpdate) are
adapted here to suture's context-aware Serve. Components that already
implement Serve, such as the ingest writer and the date aggregate, are added
to the tree directly.

# Available Services

  - HTTPServerService: ListenAndServe with graceful Shutdown on cancel
  - WebSocketHubService: runs the hub until the context ends
  - DateBroadcastService: pushes date aggregate replacements to the hub
  - EmbeddedNATSService: shuts down the embedded NATS server on cancel
  - LocationService: attaches the ingest sink, launches the adapter, stops
    continuous updates on shutdown
  - StoreMaintenanceService: periodic value log GC

Each wrapper returns ctx.Err() on a clean shutdown so the supervisor does
not count it as a failure.
*/
package services
