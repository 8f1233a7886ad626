// Trailkeeper - Background Location Telemetry Capture and Change Feed
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trailkeeper

// Package main is the entry point for the Trailkeeper server.
//
// Trailkeeper captures location fixes from a sensing platform in the
// background, appends them to a durable BadgerDB log, and serves a reactive
// change feed over HTTP and WebSocket: a per-day count of recorded fixes
// and, per selected day, the ordered list of fixes with incremental
// insert/delete/modify updates.
//
// # Startup Order
//
//  1. Configuration: defaults, optional config.yaml, then environment
//     variables (Koanf v2), validated before use
//  2. Logging: zerolog, json or console
//  3. Store: BadgerDB location log, replaying the record index
//  4. Ingestion: in-process Watermill bus and the single store writer
//  5. Platform: simulator or NATS (optionally an embedded NATS server)
//  6. Feed: executor, observation engine, date aggregate, WebSocket hub
//  7. HTTP: chi router on /api/v1 plus /metrics
//
// Everything long running is added to the suture supervisor tree; the
// location adapter is launched only after the writer has subscribed so no
// early batch is published into an empty bus.
//
// # Platform Drivers
//
// The simulator driver needs no device. With a non-zero
// SIMULATOR_INTERVAL it walks from the configured start
// point and emits one fix per interval:
//
//	export LOCATION_DRIVER=simulator
//	export SIMULATOR_AUTHORIZATION=always
//	export SIMULATOR_INTERVAL=30s
//	./trailkeeper
//
// The nats driver exchanges fixes, authorization changes and commands with a
// device bridge over NATS core subjects under the configured prefix:
//
//	export LOCATION_DRIVER=nats
//	export NATS_EMBEDDED_SERVER=true
//	./trailkeeper
//
// # Signal Handling
//
// SIGINT and SIGTERM cancel the tree. The HTTP server drains within the
// configured shutdown timeout, continuous updates are stopped, and the
// adapter, bus and store are closed after every service has returned.
package main
