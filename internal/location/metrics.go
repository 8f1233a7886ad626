// Trailkeeper - Background Location Telemetry Capture and Change Feed
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trailkeeper

package location

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	locationState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "trailkeeper_location_state",
		Help: "Adapter tracking state (0 unauthorized, 1 pending, 2 standard, 3 significant only, 4 stopped)",
	})

	authorizationRequests = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trailkeeper_location_authorization_requests_total",
		Help: "Authorization requests sent to the platform",
	})

	authorizationChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trailkeeper_location_authorization_changes_total",
		Help: "Authorization change callbacks by status",
	}, []string{"status"})

	trackingStarts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trailkeeper_location_tracking_starts_total",
		Help: "Continuous tracking registrations",
	})

	fixesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trailkeeper_location_fixes_received_total",
		Help: "Fixes received from the platform",
	})

	batchesDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trailkeeper_location_batches_delivered_total",
		Help: "Fix batches handed to ingestion",
	})

	batchesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trailkeeper_location_batches_dropped_total",
		Help: "Fix batches dropped from the pre-attach buffer",
	})

	pendingBatches = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "trailkeeper_location_pending_batches",
		Help: "Fix batches buffered before a sink is attached",
	})

	sensingFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trailkeeper_location_sensing_failures_total",
		Help: "Failure callbacks from the platform",
	})

	pauseEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trailkeeper_location_pause_events_total",
		Help: "Platform pause and resume callbacks",
	}, []string{"event"})
)
