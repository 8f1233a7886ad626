// Trailkeeper - Background Location Telemetry Capture and Change Feed
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trailkeeper

package location_test

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/tomtom215/trailkeeper/internal/location"
	"github.com/tomtom215/trailkeeper/internal/location/simulator"
)

// counterValue reads an unlabelled counter from the default registry.
func counterValue(t *testing.T, name string) float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name || mf.GetType() != dto.MetricType_COUNTER {
			continue
		}
		var sum float64
		for _, m := range mf.GetMetric() {
			sum += m.GetCounter().GetValue()
		}
		return sum
	}
	return 0
}

func TestMetrics_BufferOverflow(t *testing.T) {
	const dropped = "trailkeeper_location_batches_dropped_total"
	const received = "trailkeeper_location_fixes_received_total"

	p := simulator.New(location.AuthorizedAlways)
	a := newAdapter(t, p, location.LaunchNormal)
	_ = a.StartUpdate()

	beforeDropped := counterValue(t, dropped)
	beforeReceived := counterValue(t, received)

	p.Emit(fixAt(1, 1))
	p.Emit(fixAt(2, 2))
	p.Emit(fixAt(3, 3))

	if after := counterValue(t, dropped); after <= beforeDropped {
		t.Error("Expected dropped batch counter to increment")
	}
	if after := counterValue(t, received); after-beforeReceived < 3 {
		t.Errorf("Expected at least 3 more received fixes, got %v", after-beforeReceived)
	}
}

func TestMetrics_AuthorizationAndFailures(t *testing.T) {
	const requests = "trailkeeper_location_authorization_requests_total"
	const starts = "trailkeeper_location_tracking_starts_total"
	const failures = "trailkeeper_location_sensing_failures_total"

	p := simulator.New(location.NotDetermined)
	a := newAdapter(t, p, location.LaunchNormal)

	beforeRequests := counterValue(t, requests)
	beforeStarts := counterValue(t, starts)
	beforeFailures := counterValue(t, failures)

	if err := a.StartUpdate(); err != nil {
		t.Fatalf("StartUpdate: %v", err)
	}
	p.SetAuthorization(location.AuthorizedAlways)
	p.Fail(errors.New("no signal"))

	if counterValue(t, requests) <= beforeRequests {
		t.Error("Expected authorization request counter to increment")
	}
	if counterValue(t, starts) <= beforeStarts {
		t.Error("Expected tracking start counter to increment")
	}
	if counterValue(t, failures) <= beforeFailures {
		t.Error("Expected sensing failure counter to increment")
	}
}
