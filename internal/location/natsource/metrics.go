// Trailkeeper - Background Location Telemetry Capture and Change Feed
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trailkeeper

package natsource

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	messagesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trailkeeper_natsource_messages_received_total",
		Help: "Device messages received by subject",
	}, []string{"subject"})

	messagesRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trailkeeper_natsource_messages_rejected_total",
		Help: "Device messages discarded as malformed or invalid",
	}, []string{"subject"})

	commandsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trailkeeper_natsource_commands_sent_total",
		Help: "Control commands published to the device",
	}, []string{"command"})

	commandsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trailkeeper_natsource_commands_failed_total",
		Help: "Control commands that could not be published",
	})
)
