// Trailkeeper - Background Location Telemetry Capture and Change Feed
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trailkeeper

package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	storeAppendsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trailkeeper_store_appends_total",
		Help: "Committed append batches",
	})

	storeAppendFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trailkeeper_store_append_failures_total",
		Help: "Append batches that failed to commit",
	})

	storeRecordsAppended = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trailkeeper_store_records_appended_total",
		Help: "Records committed by append",
	})

	storeRecordsDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trailkeeper_store_records_deleted_total",
		Help: "Records removed by delete",
	})

	storeAppendLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "trailkeeper_store_append_latency_seconds",
		Help:    "Append transaction latency",
		Buckets: prometheus.DefBuckets,
	})

	storeRecords = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "trailkeeper_store_records",
		Help: "Records currently stored",
	})

	storeListeners = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "trailkeeper_store_listeners",
		Help: "Registered mutation listeners",
	})

	storeGCRuns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trailkeeper_store_gc_runs_total",
		Help: "Value log GC passes",
	})
)
