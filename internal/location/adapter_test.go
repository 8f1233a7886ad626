// Trailkeeper - Background Location Telemetry Capture and Change Feed
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trailkeeper

package location_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/trailkeeper/internal/location"
	"github.com/tomtom215/trailkeeper/internal/location/simulator"
	"github.com/tomtom215/trailkeeper/internal/models"
)

type batchCollector struct {
	mu      sync.Mutex
	batches [][]models.Fix
}

func (c *batchCollector) DeliverFixes(fixes []models.Fix) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.batches = append(c.batches, fixes)
	return nil
}

func (c *batchCollector) snapshot() [][]models.Fix {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]models.Fix(nil), c.batches...)
}

func newAdapter(t *testing.T, p *simulator.Platform, reason location.LaunchReason) *location.Adapter {
	t.Helper()
	a := location.New(p, location.LaunchContext{Reason: reason}, location.Config{
		Options:        location.DefaultOptions(),
		PendingBatches: 2,
	})
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func fixAt(lat float64, sec int64) models.Fix {
	return models.NewFix(lat, 139.7, time.Unix(sec, 0).UTC())
}

func TestAdapter_GrantStartsTrackingOnce(t *testing.T) {
	t.Parallel()

	p := simulator.New(location.NotDetermined)
	a := newAdapter(t, p, location.LaunchNormal)

	if got := a.State(); got != location.Unauthorized {
		t.Fatalf("expected initial state unauthorized, got %s", got)
	}
	if err := a.StartUpdate(); err != nil {
		t.Fatalf("StartUpdate: %v", err)
	}
	if got := a.State(); got != location.AuthorizationPending {
		t.Fatalf("expected authorization_pending, got %s", got)
	}

	p.SetAuthorization(location.AuthorizedAlways)
	if got := a.State(); got != location.StandardTracking {
		t.Fatalf("expected standard_tracking after grant, got %s", got)
	}

	p.SetAuthorization(location.AuthorizedAlways)
	if err := a.StartUpdate(); err != nil {
		t.Fatalf("repeated StartUpdate: %v", err)
	}

	calls := p.Calls()
	if calls.RequestAuthorization != 1 {
		t.Errorf("expected 1 authorization request, got %d", calls.RequestAuthorization)
	}
	if calls.StartUpdating != 1 {
		t.Errorf("expected 1 start of continuous updates, got %d", calls.StartUpdating)
	}
	if calls.StartSignificant != 1 {
		t.Errorf("expected significant-change monitoring started once, got %d", calls.StartSignificant)
	}
}

func TestAdapter_SynchronousAnswerDoesNotDeadlock(t *testing.T) {
	t.Parallel()

	p := simulator.New(location.NotDetermined)
	p.AnswerRequests(location.AuthorizedAlways)
	a := newAdapter(t, p, location.LaunchNormal)

	done := make(chan error, 1)
	go func() { done <- a.StartUpdate() }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("StartUpdate: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("StartUpdate deadlocked on a synchronous authorization callback")
	}

	if got := a.State(); got != location.StandardTracking {
		t.Fatalf("expected standard_tracking, got %s", got)
	}
	if got := p.Calls().StartUpdating; got != 1 {
		t.Errorf("expected 1 start, got %d", got)
	}
}

func TestAdapter_WhenInUseCountsAsGrant(t *testing.T) {
	t.Parallel()

	p := simulator.New(location.NotDetermined)
	p.AnswerRequests(location.AuthorizedWhenInUse)
	a := newAdapter(t, p, location.LaunchNormal)

	if err := a.Launch(); err != nil {
		t.Fatalf("Launch: %v", err)
	}
	if got := a.State(); got != location.StandardTracking {
		t.Fatalf("expected standard_tracking, got %s", got)
	}
}

func TestAdapter_DenialIsTerminal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		initial location.AuthorizationStatus
		answer  location.AuthorizationStatus
		request int
	}{
		{name: "denied at startup", initial: location.Denied, request: 0},
		{name: "restricted at startup", initial: location.Restricted, request: 0},
		{name: "denied when asked", initial: location.NotDetermined, answer: location.Denied, request: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			p := simulator.New(tt.initial)
			if tt.answer != location.NotDetermined {
				p.AnswerRequests(tt.answer)
			}
			a := newAdapter(t, p, location.LaunchNormal)

			_ = a.StartUpdate()
			if got := a.State(); got != location.Unauthorized {
				t.Fatalf("expected unauthorized, got %s", got)
			}

			err := a.StartUpdate()
			if !errors.Is(err, location.ErrAuthorizationDenied) {
				t.Fatalf("expected ErrAuthorizationDenied, got %v", err)
			}

			p.SetAuthorization(location.AuthorizedAlways)
			if got := a.State(); got != location.Unauthorized {
				t.Errorf("expected grant after denial to be ignored, got %s", got)
			}

			calls := p.Calls()
			if calls.StartUpdating != 0 {
				t.Errorf("expected no tracking start, got %d", calls.StartUpdating)
			}
			if calls.RequestAuthorization != tt.request {
				t.Errorf("expected %d authorization requests, got %d", tt.request, calls.RequestAuthorization)
			}
			if !a.Status().Denied {
				t.Error("expected status to report denial")
			}
		})
	}
}

func TestAdapter_RevocationStopsTracking(t *testing.T) {
	t.Parallel()

	p := simulator.New(location.AuthorizedAlways)
	a := newAdapter(t, p, location.LaunchNormal)
	if err := a.StartUpdate(); err != nil {
		t.Fatalf("StartUpdate: %v", err)
	}

	p.SetAuthorization(location.Denied)
	if got := a.State(); got != location.Unauthorized {
		t.Fatalf("expected unauthorized after revocation, got %s", got)
	}
	if p.Updating() {
		t.Error("expected continuous updates stopped after revocation")
	}
}

func TestAdapter_SignificantChangeLaunch(t *testing.T) {
	t.Parallel()

	p := simulator.New(location.AuthorizedAlways)
	a := newAdapter(t, p, location.LaunchSignificantLocationChange)

	if got := a.State(); got != location.SignificantChangeOnly {
		t.Fatalf("expected significant_change_only, got %s", got)
	}
	if err := a.Launch(); err != nil {
		t.Fatalf("Launch: %v", err)
	}

	calls := p.Calls()
	if calls.StartSignificant != 1 {
		t.Errorf("expected significant monitoring started, got %d", calls.StartSignificant)
	}
	if calls.StartUpdating != 0 || calls.RequestAuthorization != 0 {
		t.Errorf("expected no continuous tracking or request, got %+v", calls)
	}

	if err := a.StopSignificantChangeMonitoring(); err != nil {
		t.Fatalf("StopSignificantChangeMonitoring: %v", err)
	}
	if got := a.State(); got != location.Stopped {
		t.Errorf("expected stopped, got %s", got)
	}
}

func TestAdapter_SignificantLaunchKeepsStateWhileRequesting(t *testing.T) {
	t.Parallel()

	p := simulator.New(location.NotDetermined)
	a := newAdapter(t, p, location.LaunchSignificantLocationChange)
	if err := a.Launch(); err != nil {
		t.Fatalf("Launch: %v", err)
	}

	for range 2 {
		if err := a.StartUpdate(); err != nil {
			t.Fatalf("StartUpdate: %v", err)
		}
	}
	if got := a.State(); got != location.SignificantChangeOnly {
		t.Fatalf("expected significant_change_only while the request is outstanding, got %s", got)
	}
	if calls := p.Calls(); calls.RequestAuthorization != 1 || calls.StartUpdating != 0 {
		t.Fatalf("expected one request and no continuous updates, got %+v", calls)
	}

	p.SetAuthorization(location.AuthorizedAlways)
	if got := a.State(); got != location.StandardTracking {
		t.Fatalf("expected standard_tracking after grant, got %s", got)
	}
	if calls := p.Calls(); calls.StartUpdating != 1 {
		t.Errorf("expected continuous updates started once, got %d", calls.StartUpdating)
	}
}

func TestAdapter_NormalLaunchWhenGranted(t *testing.T) {
	t.Parallel()

	p := simulator.New(location.AuthorizedAlways)
	a := newAdapter(t, p, location.LaunchNormal)

	if got := a.State(); got != location.Stopped {
		t.Fatalf("expected stopped before launch, got %s", got)
	}
	if err := a.Launch(); err != nil {
		t.Fatalf("Launch: %v", err)
	}
	if got := a.State(); got != location.StandardTracking {
		t.Fatalf("expected standard_tracking, got %s", got)
	}
	if !p.Updating() || !p.Monitoring() {
		t.Error("expected continuous updates and significant monitoring running")
	}
}

func TestAdapter_ConfiguresPlatform(t *testing.T) {
	t.Parallel()

	p := simulator.New(location.NotDetermined)
	newAdapter(t, p, location.LaunchNormal)

	opts := p.Options()
	if opts != location.DefaultOptions() {
		t.Errorf("expected default options applied, got %+v", opts)
	}
	if opts.DesiredAccuracy != 3000 || opts.DistanceFilter != 100 {
		t.Errorf("expected 3000m accuracy and 100m filter, got %v/%v", opts.DesiredAccuracy, opts.DistanceFilter)
	}
	if opts.PausesAutomatically || !opts.AllowsBackgroundUpdates {
		t.Errorf("expected background delivery without auto pause, got %+v", opts)
	}
}

func TestAdapter_ServicesDisabled(t *testing.T) {
	t.Parallel()

	p := simulator.New(location.AuthorizedAlways)
	p.SetServicesEnabled(false)
	a := newAdapter(t, p, location.LaunchNormal)

	err := a.StartUpdate()
	if !errors.Is(err, location.ErrSensingUnavailable) {
		t.Fatalf("expected ErrSensingUnavailable, got %v", err)
	}
	if p.Calls().StartUpdating != 0 {
		t.Error("expected no tracking start with services disabled")
	}
}

func TestAdapter_SignificantUnavailable(t *testing.T) {
	t.Parallel()

	p := simulator.New(location.AuthorizedAlways)
	p.SetSignificantChangeAvailable(false)
	a := newAdapter(t, p, location.LaunchNormal)

	if err := a.StartUpdate(); err != nil {
		t.Fatalf("StartUpdate: %v", err)
	}
	calls := p.Calls()
	if calls.StartUpdating != 1 || calls.StartSignificant != 0 {
		t.Errorf("expected continuous updates only, got %+v", calls)
	}
}

func TestAdapter_StopThenRestart(t *testing.T) {
	t.Parallel()

	p := simulator.New(location.AuthorizedAlways)
	a := newAdapter(t, p, location.LaunchNormal)

	_ = a.StartUpdate()
	if err := a.StopUpdate(); err != nil {
		t.Fatalf("StopUpdate: %v", err)
	}
	if got := a.State(); got != location.Stopped {
		t.Fatalf("expected stopped, got %s", got)
	}
	if !p.Monitoring() {
		t.Error("expected significant monitoring untouched by StopUpdate")
	}

	_ = a.StartUpdate()
	if got := p.Calls().StartUpdating; got != 2 {
		t.Errorf("expected restart after stop, got %d starts", got)
	}
}

func TestAdapter_BuffersUntilSinkAttached(t *testing.T) {
	t.Parallel()

	p := simulator.New(location.AuthorizedAlways)
	a := newAdapter(t, p, location.LaunchNormal)
	_ = a.StartUpdate()

	p.Emit(fixAt(1, 1))
	p.Emit(fixAt(2, 2))
	p.Emit(fixAt(3, 3), fixAt(4, 4))

	st := a.Status()
	if st.PendingBatches != 2 {
		t.Fatalf("expected 2 buffered batches, got %d", st.PendingBatches)
	}
	if st.DroppedBatches != 1 {
		t.Fatalf("expected oldest batch dropped, got %d", st.DroppedBatches)
	}

	sink := &batchCollector{}
	a.AttachSink(sink)
	p.Emit(fixAt(5, 5))

	got := sink.snapshot()
	if len(got) != 3 {
		t.Fatalf("expected 3 delivered batches, got %d", len(got))
	}
	wantFirst := []float64{2, 3, 5}
	for i, lat := range wantFirst {
		if got[i][0].Latitude != lat {
			t.Errorf("batch %d: expected first latitude %v, got %v", i, lat, got[i][0].Latitude)
		}
	}
	if len(got[1]) != 2 {
		t.Errorf("expected batch kept whole, got %d fixes", len(got[1]))
	}
	if st := a.Status(); st.PendingBatches != 0 || !st.SinkAttached || st.FixesReceived != 5 {
		t.Errorf("unexpected status after attach: %+v", st)
	}
}

func TestAdapter_SinkErrorDoesNotStopDelivery(t *testing.T) {
	t.Parallel()

	p := simulator.New(location.AuthorizedAlways)
	a := newAdapter(t, p, location.LaunchNormal)
	_ = a.StartUpdate()

	var calls int
	a.AttachSink(location.SinkFunc(func(fixes []models.Fix) error {
		calls++
		if calls == 1 {
			return errors.New("bus closed")
		}
		return nil
	}))

	p.Emit(fixAt(1, 1))
	p.Emit(fixAt(2, 2))
	if calls != 2 {
		t.Errorf("expected both batches offered to the sink, got %d", calls)
	}
}

func TestAdapter_FailuresAndPauses(t *testing.T) {
	t.Parallel()

	p := simulator.New(location.AuthorizedAlways)
	a := newAdapter(t, p, location.LaunchNormal)
	_ = a.StartUpdate()

	for range 5 {
		p.Fail(errors.New("kCLErrorLocationUnknown"))
	}
	st := a.Status()
	if st.LastFailure != "kCLErrorLocationUnknown" {
		t.Errorf("expected last failure recorded, got %q", st.LastFailure)
	}
	if st.State != location.StandardTracking {
		t.Errorf("expected failures to leave state alone, got %s", st.State)
	}

	p.Pause()
	if !a.Status().Paused {
		t.Error("expected paused after pause callback")
	}
	p.Resume()
	if a.Status().Paused {
		t.Error("expected resumed after resume callback")
	}
}

func TestAdapter_CloseUnregistersDelegate(t *testing.T) {
	t.Parallel()

	p := simulator.New(location.AuthorizedAlways)
	a := newAdapter(t, p, location.LaunchNormal)
	_ = a.StartUpdate()

	if !p.HasDelegate() {
		t.Fatal("expected delegate registered")
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if p.HasDelegate() {
		t.Error("expected delegate unregistered after Close")
	}
	if p.Emit(fixAt(1, 1)) {
		t.Error("expected emit after close to find no delegate")
	}
	if err := a.StartUpdate(); !errors.Is(err, location.ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if err := a.Close(); err != nil {
		t.Errorf("expected second Close to be a no-op, got %v", err)
	}
}

func TestParse(t *testing.T) {
	t.Parallel()

	for _, s := range []location.AuthorizationStatus{
		location.NotDetermined, location.Restricted, location.Denied,
		location.AuthorizedWhenInUse, location.AuthorizedAlways,
	} {
		got, err := location.ParseAuthorizationStatus(s.String())
		if err != nil || got != s {
			t.Errorf("ParseAuthorizationStatus(%q) = %v, %v", s.String(), got, err)
		}
	}
	if _, err := location.ParseAuthorizationStatus("sometimes"); err == nil {
		t.Error("expected error for unknown status")
	}

	reason, err := location.ParseLaunchReason("significant_location_change")
	if err != nil || reason != location.LaunchSignificantLocationChange {
		t.Errorf("expected significant launch, got %v, %v", reason, err)
	}
	if _, err := location.ParseLaunchReason("push"); err == nil {
		t.Error("expected error for unknown launch reason")
	}
}
