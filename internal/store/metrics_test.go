// Trailkeeper - Background Location Telemetry Capture and Change Feed
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trailkeeper

package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tomtom215/trailkeeper/internal/models"
)

func TestMetrics_Append(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	t.Run("successful append", func(t *testing.T) {
		beforeAppends := testutil.ToFloat64(storeAppendsTotal)
		beforeRecords := testutil.ToFloat64(storeRecordsAppended)

		if err := s.Append(ctx, []models.Fix{fixAt(time.Unix(1, 0)), fixAt(time.Unix(2, 0))}, time.Now()); err != nil {
			t.Fatalf("append: %v", err)
		}

		if got := testutil.ToFloat64(storeAppendsTotal) - beforeAppends; got != 1 {
			t.Errorf("expected appends counter +1, got %v", got)
		}
		if got := testutil.ToFloat64(storeRecordsAppended) - beforeRecords; got != 2 {
			t.Errorf("expected records counter +2, got %v", got)
		}
		if got := testutil.ToFloat64(storeRecords); got != float64(s.Count()) {
			t.Errorf("expected records gauge %d, got %v", s.Count(), got)
		}
	})

	t.Run("failed append", func(t *testing.T) {
		beforeFailures := testutil.ToFloat64(storeAppendFailures)
		beforeAppends := testutil.ToFloat64(storeAppendsTotal)

		s.writeHook = func([]models.LocationRecord) error { return errors.New("disk full") }
		defer func() { s.writeHook = nil }()
		if err := s.Append(ctx, []models.Fix{fixAt(time.Unix(3, 0))}, time.Now()); err == nil {
			t.Fatal("expected append to fail")
		}

		if got := testutil.ToFloat64(storeAppendFailures) - beforeFailures; got != 1 {
			t.Errorf("expected failure counter +1, got %v", got)
		}
		if testutil.ToFloat64(storeAppendsTotal) != beforeAppends {
			t.Error("expected a failed append not to count as committed")
		}
	})

	t.Run("out of range timestamp", func(t *testing.T) {
		before := testutil.ToFloat64(storeAppendFailures)

		if err := s.Append(ctx, []models.Fix{fixAt(time.Time{})}, time.Now()); err == nil {
			t.Fatal("expected append to fail")
		}

		if got := testutil.ToFloat64(storeAppendFailures) - before; got != 1 {
			t.Errorf("expected failure counter +1, got %v", got)
		}
	})
}

func TestMetrics_Listeners(t *testing.T) {
	s := setupTestStore(t)

	_, cancel, err := s.FetchAll().Observe(func(Mutation) {})
	if err != nil {
		t.Fatalf("observe: %v", err)
	}
	if got := testutil.ToFloat64(storeListeners); got != 1 {
		t.Errorf("expected listeners gauge 1, got %v", got)
	}
	cancel()
	if got := testutil.ToFloat64(storeListeners); got != 0 {
		t.Errorf("expected listeners gauge 0 after cancel, got %v", got)
	}
}
