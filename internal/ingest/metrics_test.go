// Trailkeeper - Background Location Telemetry Capture and Change Feed
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trailkeeper

package ingest

import (
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sony/gobreaker/v2"
)

func TestMetrics_Writer(t *testing.T) {
	t.Run("written batch", func(t *testing.T) {
		app := &fakeAppender{}
		bus, _ := startWriter(t, app, WriterConfig{})
		before := testutil.ToFloat64(ingestBatchesWritten)
		beforePublished := testutil.ToFloat64(ingestBatchesPublished)

		if err := NewPublisher(bus.Publisher(), "").DeliverFixes(sampleFixes(2)); err != nil {
			t.Fatalf("DeliverFixes: %v", err)
		}

		if got := testutil.ToFloat64(ingestBatchesWritten) - before; got != 1 {
			t.Errorf("expected written counter +1, got %v", got)
		}
		if got := testutil.ToFloat64(ingestBatchesPublished) - beforePublished; got != 1 {
			t.Errorf("expected published counter +1, got %v", got)
		}
	})

	t.Run("breaker open drops", func(t *testing.T) {
		app := &fakeAppender{fail: true}
		bus, _ := startWriter(t, app, WriterConfig{BreakerFailures: 2, BreakerTimeout: time.Hour})
		pub := NewPublisher(bus.Publisher(), "")
		before := testutil.ToFloat64(ingestBatchesDropped)

		for range 4 {
			if err := pub.DeliverFixes(sampleFixes(1)); err != nil {
				t.Fatalf("DeliverFixes: %v", err)
			}
		}

		if got := testutil.ToFloat64(ingestBatchesDropped) - before; got != 4 {
			t.Errorf("expected dropped counter +4, got %v", got)
		}
		if got := testutil.ToFloat64(breakerState); got != float64(gobreaker.StateOpen) {
			t.Errorf("expected breaker gauge %v, got %v", float64(gobreaker.StateOpen), got)
		}
	})

	t.Run("malformed payload", func(t *testing.T) {
		bus, _ := startWriter(t, &fakeAppender{}, WriterConfig{})
		before := testutil.ToFloat64(ingestDecodeErrors)

		msg := message.NewMessage(uuid.NewString(), []byte("{"))
		if err := bus.Publisher().Publish(DefaultTopic, msg); err != nil {
			t.Fatalf("publish: %v", err)
		}
		// A following good batch acts as a barrier for the bad one.
		if err := NewPublisher(bus.Publisher(), "").DeliverFixes(sampleFixes(1)); err != nil {
			t.Fatalf("DeliverFixes: %v", err)
		}

		if got := testutil.ToFloat64(ingestDecodeErrors) - before; got != 1 {
			t.Errorf("expected decode error counter +1, got %v", got)
		}
	})
}
