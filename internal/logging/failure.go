// Trailkeeper - Background Location Telemetry Capture and Change Feed
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trailkeeper

package logging

import (
	"github.com/rs/zerolog"
)

// Kind classifies failures that are reported only through the log.
type Kind string

const (
	KindAuthorizationDenied     Kind = "authorization_denied"
	KindSensingUnavailable      Kind = "sensing_unavailable"
	KindPersistenceWriteFailure Kind = "persistence_write_failure"
	KindObservationFailure      Kind = "observation_failure"
)

// Failure starts an event for a failure of the given kind. Authorization
// denial is an expected user choice and logs at warn; everything else logs
// at error.
//
//	logging.Failure(logging.KindPersistenceWriteFailure, err).Int("batch", n).Msg("Dropped batch")
func Failure(kind Kind, err error) *zerolog.Event {
	var e *zerolog.Event
	if kind == KindAuthorizationDenied {
		e = Warn()
	} else {
		e = Error()
	}
	if err != nil {
		e = e.Err(err)
	}
	return e.Str("error_kind", string(kind))
}
