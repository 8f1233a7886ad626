// Trailkeeper - Background Location Telemetry Capture and Change Feed
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trailkeeper

/*
Package websocket pushes the live day index and per-day location lists to
browser clients.

The Hub owns the client set and broadcasts the date aggregate (one entry
per local calendar day with its fix count). Each Client owns a
view.LocationList; a client selects a day and from then on receives the
day's rows followed by incremental diffs.

Client to server frames:

	{"type": "ping"}
	{"type": "select_day", "data": "20200601"}

Server to client frames:

	dates               []DateAggregateEntry, sent on connect and on change
	locations_initial   full row list of the selected day
	locations_changed   deletions, insertions, modifications of one diff
	subscription_error  the day subscription failed and will not recover
	pong, error

Each client has two goroutines:
  - readPump: reads frames and handles select_day
  - writePump: writes queued frames and sends pings

Delivery never blocks the feed. A client whose send buffer is full is
disconnected and has to reconnect to resynchronize.
*/
package websocket
