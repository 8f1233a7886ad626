// Trailkeeper - Background Location Telemetry Capture and Change Feed
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trailkeeper

package feed

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	feedSubscriptionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "trailkeeper_feed_subscriptions_active",
		Help: "Live change-feed subscriptions",
	})

	feedChangesDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trailkeeper_feed_changes_delivered_total",
		Help: "Change notifications handed to subscription handlers",
	}, []string{"type"})
)
