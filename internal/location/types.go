// Trailkeeper - Background Location Telemetry Capture and Change Feed
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trailkeeper

package location

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tomtom215/trailkeeper/internal/models"
)

var (
	// ErrAuthorizationDenied is reported when the user denied or restricted
	// location access. It stays in effect until the next process start.
	ErrAuthorizationDenied = errors.New("location authorization denied")

	// ErrSensingUnavailable is reported when the platform cannot sense
	// location at all (services disabled, sensor failure).
	ErrSensingUnavailable = errors.New("location sensing unavailable")

	// ErrClosed is returned by operations on a closed adapter.
	ErrClosed = errors.New("location adapter closed")
)

// AuthorizationStatus is the permission level the user granted.
type AuthorizationStatus int

const (
	NotDetermined AuthorizationStatus = iota
	Restricted
	Denied
	AuthorizedWhenInUse
	AuthorizedAlways
)

var authorizationNames = map[AuthorizationStatus]string{
	NotDetermined:       "not_determined",
	Restricted:          "restricted",
	Denied:              "denied",
	AuthorizedWhenInUse: "when_in_use",
	AuthorizedAlways:    "always",
}

func (a AuthorizationStatus) String() string {
	if s, ok := authorizationNames[a]; ok {
		return s
	}
	return fmt.Sprintf("authorization(%d)", int(a))
}

// Granted reports whether tracking may start under this status.
func (a AuthorizationStatus) Granted() bool {
	return a == AuthorizedAlways || a == AuthorizedWhenInUse
}

// Refused reports whether the user actively refused access.
func (a AuthorizationStatus) Refused() bool {
	return a == Denied || a == Restricted
}

// ParseAuthorizationStatus converts the configuration and wire spelling.
func ParseAuthorizationStatus(s string) (AuthorizationStatus, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	for status, name := range authorizationNames {
		if name == key {
			return status, nil
		}
	}
	return NotDetermined, fmt.Errorf("unknown authorization status %q", s)
}

// State is the adapter's tracking mode.
type State int

const (
	Unauthorized State = iota
	AuthorizationPending
	StandardTracking
	SignificantChangeOnly
	Stopped
)

func (s State) String() string {
	switch s {
	case Unauthorized:
		return "unauthorized"
	case AuthorizationPending:
		return "authorization_pending"
	case StandardTracking:
		return "standard_tracking"
	case SignificantChangeOnly:
		return "significant_change_only"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// LaunchReason describes why the hosting process was started.
type LaunchReason int

const (
	LaunchNormal LaunchReason = iota
	// LaunchSignificantLocationChange means the host restarted the process
	// to deliver a significant location change.
	LaunchSignificantLocationChange
)

func (r LaunchReason) String() string {
	if r == LaunchSignificantLocationChange {
		return "significant_location_change"
	}
	return "normal"
}

// ParseLaunchReason converts the configuration spelling.
func ParseLaunchReason(s string) (LaunchReason, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "normal":
		return LaunchNormal, nil
	case "significant_location_change":
		return LaunchSignificantLocationChange, nil
	}
	return LaunchNormal, fmt.Errorf("unknown launch reason %q", s)
}

// LaunchContext is the startup context handed to the adapter.
type LaunchContext struct {
	Reason LaunchReason
}

// Options configure the platform once at construction.
type Options struct {
	ActivityType            string
	DesiredAccuracy         float64
	DistanceFilter          float64
	PausesAutomatically     bool
	AllowsBackgroundUpdates bool
}

// DefaultOptions favours capture probability over precision: coarse city
// scale accuracy, a 100 m filter against jitter, and background delivery
// with automatic pausing off.
func DefaultOptions() Options {
	return Options{
		ActivityType:            "other",
		DesiredAccuracy:         3000,
		DistanceFilter:          100,
		PausesAutomatically:     false,
		AllowsBackgroundUpdates: true,
	}
}

// Platform is the location sensing capability. Implementations may invoke
// the registered Delegate from any goroutine, including synchronously from
// inside one of these calls.
type Platform interface {
	AuthorizationStatus() AuthorizationStatus
	ServicesEnabled() bool
	SignificantChangeMonitoringAvailable() bool
	RequestAlwaysAuthorization()
	StartUpdatingLocation()
	StopUpdatingLocation()
	StartMonitoringSignificantLocationChanges()
	StopMonitoringSignificantLocationChanges()
	Configure(opts Options)
	// SetDelegate registers the observer. A nil delegate unregisters.
	SetDelegate(d Delegate)
}

// Delegate observes platform callbacks.
type Delegate interface {
	DidChangeAuthorization(status AuthorizationStatus)
	DidUpdateLocations(fixes []models.Fix)
	DidFail(err error)
	DidPauseUpdates()
	DidResumeUpdates()
}

// Sink receives fix batches once ingestion is ready.
type Sink interface {
	DeliverFixes(fixes []models.Fix) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(fixes []models.Fix) error

// DeliverFixes calls f.
func (f SinkFunc) DeliverFixes(fixes []models.Fix) error { return f(fixes) }

// Status is a point-in-time view of the adapter.
type Status struct {
	State          State  `json:"-"`
	StateName      string `json:"state"`
	Authorization  string `json:"authorization"`
	LaunchReason   string `json:"launch_reason"`
	Denied         bool   `json:"denied"`
	SinkAttached   bool   `json:"sink_attached"`
	PendingBatches int    `json:"pending_batches"`
	DroppedBatches uint64 `json:"dropped_batches"`
	FixesReceived  uint64 `json:"fixes_received"`
	Paused         bool   `json:"paused"`
	LastFailure    string `json:"last_failure,omitempty"`
}
