// Trailkeeper - Background Location Telemetry Capture and Change Feed
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trailkeeper

package ingest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ingestBatchesPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trailkeeper_ingest_batches_published_total",
		Help: "Fix batches published to the ingest bus",
	})

	ingestPublishFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trailkeeper_ingest_publish_failures_total",
		Help: "Fix batches that could not be published",
	})

	ingestBatchesWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trailkeeper_ingest_batches_written_total",
		Help: "Fix batches committed to the store",
	})

	ingestBatchesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trailkeeper_ingest_batches_dropped_total",
		Help: "Fix batches dropped after a failed append",
	})

	ingestDecodeErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trailkeeper_ingest_decode_errors_total",
		Help: "Bus messages that could not be decoded",
	})

	ingestWriteLag = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "trailkeeper_ingest_write_lag_seconds",
		Help:    "Time between receiving a batch and stamping it for write",
		Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5},
	})

	breakerState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "trailkeeper_ingest_breaker_state",
		Help: "Store append breaker state (0 closed, 1 half-open, 2 open)",
	})
)
