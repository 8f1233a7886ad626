// Trailkeeper - Background Location Telemetry Capture and Change Feed
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trailkeeper

package websocket

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	wsClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "trailkeeper_websocket_clients",
		Help: "Connected websocket clients",
	})

	wsBroadcasts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trailkeeper_websocket_broadcasts_total",
		Help: "Broadcast messages by type",
	}, []string{"type"})

	wsSlowClients = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trailkeeper_websocket_slow_clients_total",
		Help: "Clients disconnected because their send buffer was full",
	})

	wsDaySelections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trailkeeper_websocket_day_selections_total",
		Help: "select_day requests handled",
	})
)
