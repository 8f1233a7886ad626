// Trailkeeper - Background Location Telemetry Capture and Change Feed
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trailkeeper

package natsource

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/tomtom215/trailkeeper/internal/location"
	"github.com/tomtom215/trailkeeper/internal/models"
)

// Subject suffixes under the configured prefix.
const (
	SubjectFixes         = "fixes"
	SubjectFailures      = "failures"
	SubjectAuthorization = "authorization"
	SubjectLifecycle     = "lifecycle"
	SubjectControl       = "control"
	SubjectStatus        = "status"
)

// Control commands published to the device.
const (
	CommandRequestAuthorization = "request_always_authorization"
	CommandStartUpdating        = "start_updating_location"
	CommandStopUpdating         = "stop_updating_location"
	CommandStartSignificant     = "start_monitoring_significant_changes"
	CommandStopSignificant      = "stop_monitoring_significant_changes"
	CommandConfigure            = "configure"
)

// WireFix is one sample as published by a device. Omitted optional
// measurements decode as unavailable.
type WireFix struct {
	Latitude           float64   `json:"latitude" validate:"latitude"`
	Longitude          float64   `json:"longitude" validate:"longitude"`
	Altitude           float64   `json:"altitude"`
	HorizontalAccuracy *float64  `json:"horizontal_accuracy,omitempty"`
	VerticalAccuracy   *float64  `json:"vertical_accuracy,omitempty"`
	Course             *float64  `json:"course,omitempty"`
	CourseAccuracy     *float64  `json:"course_accuracy,omitempty"`
	Speed              *float64  `json:"speed,omitempty"`
	SpeedAccuracy      *float64  `json:"speed_accuracy,omitempty"`
	FloorLevel         *int32    `json:"floor_level,omitempty"`
	Timestamp          time.Time `json:"timestamp" validate:"required"`
}

// Fix converts to the domain type.
func (w *WireFix) Fix() models.Fix {
	f := models.NewFix(w.Latitude, w.Longitude, w.Timestamp)
	f.Altitude = w.Altitude
	setOptional(&f.HorizontalAccuracy, w.HorizontalAccuracy)
	setOptional(&f.VerticalAccuracy, w.VerticalAccuracy)
	setOptional(&f.Course, w.Course)
	setOptional(&f.CourseAccuracy, w.CourseAccuracy)
	setOptional(&f.Speed, w.Speed)
	setOptional(&f.SpeedAccuracy, w.SpeedAccuracy)
	if w.FloorLevel != nil {
		floor := *w.FloorLevel
		f.FloorLevel = &floor
	}
	return f
}

func setOptional(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}

// FixBatch is the payload on the fixes subject.
type FixBatch struct {
	Fixes []WireFix `json:"fixes" validate:"required,min=1,dive"`
}

// FailureEvent is the payload on the failures subject.
type FailureEvent struct {
	Code    string `json:"code" validate:"required"`
	Message string `json:"message,omitempty"`
}

// AuthorizationEvent is the payload on the authorization subject.
type AuthorizationEvent struct {
	Status string `json:"status" validate:"required,oneof=not_determined restricted denied when_in_use always"`
}

// LifecycleEvent is the payload on the lifecycle subject.
type LifecycleEvent struct {
	Event string `json:"event" validate:"required,oneof=pause resume"`
}

// Command is published on the control subject.
type Command struct {
	Command string          `json:"command"`
	Options *CommandOptions `json:"options,omitempty"`
	SentAt  time.Time       `json:"sent_at"`
}

// CommandOptions carries the configure command's settings.
type CommandOptions struct {
	ActivityType            string  `json:"activity_type"`
	DesiredAccuracy         float64 `json:"desired_accuracy"`
	DistanceFilter          float64 `json:"distance_filter"`
	PausesAutomatically     bool    `json:"pauses_automatically"`
	AllowsBackgroundUpdates bool    `json:"allows_background_updates"`
}

func commandOptions(o location.Options) *CommandOptions {
	return &CommandOptions{
		ActivityType:            o.ActivityType,
		DesiredAccuracy:         o.DesiredAccuracy,
		DistanceFilter:          o.DistanceFilter,
		PausesAutomatically:     o.PausesAutomatically,
		AllowsBackgroundUpdates: o.AllowsBackgroundUpdates,
	}
}

// StatusReply answers a request on the status subject.
type StatusReply struct {
	Authorization              string `json:"authorization" validate:"required,oneof=not_determined restricted denied when_in_use always"`
	ServicesEnabled            bool   `json:"services_enabled"`
	SignificantChangeAvailable bool   `json:"significant_change_available"`
}

// deviceError is the opaque cause handed to the adapter for a failure event.
type deviceError struct {
	code    string
	message string
}

func (e *deviceError) Error() string {
	if e.message == "" {
		return e.code
	}
	return e.code + ": " + e.message
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

func validatePayload(v any) error {
	err := getValidator().Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("invalid payload: %s", strings.Join(parts, ", "))
}
