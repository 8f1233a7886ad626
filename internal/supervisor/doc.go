// Trailkeeper - Background Location Telemetry Capture and Change Feed
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trailkeeper

/*
Package supervisor runs every long-lived Trailkeeper component under a
suture v4 tree:

	RootSupervisor ("trailkeeper")
	├── DataSupervisor ("data-layer")
	│   ├── ingest-writer
	│   ├── date-aggregate
	│   ├── feed-executor
	│   └── store-maintenance
	├── MessagingSupervisor ("messaging-layer")
	│   ├── embedded-nats (optional)
	│   ├── location-source
	│   ├── location-simulator (simulator driver only)
	│   ├── websocket-hub
	│   └── date-broadcast
	└── APISupervisor ("api-layer")
	    └── http-server

A crashed service is restarted with backoff without touching its
siblings. Supervisor events are logged through sutureslog on the slog
bridge of the logging package.

Services that do not already implement suture.Service are adapted by the
wrappers in the services subpackage.
*/
package supervisor
