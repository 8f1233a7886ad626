// Trailkeeper - Background Location Telemetry Capture and Change Feed
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trailkeeper

/*
Package api serves the HTTP surface: health probes, capture status, the
day index, per-day location snapshots, sensing controls, the websocket
change feed and Prometheus metrics.

Routes:

	GET  /api/v1/health/live
	GET  /api/v1/health/ready
	GET  /api/v1/status
	GET  /api/v1/dates
	GET  /api/v1/days/{day}/locations
	POST /api/v1/location/start
	POST /api/v1/location/stop
	POST /api/v1/location/significant/start
	POST /api/v1/location/significant/stop
	GET  /api/v1/ws
	GET  /metrics

Every JSON response uses the APIResponse envelope. Day keys are yyyyMMdd
in the configured feed time zone.
*/
package api
