// Trailkeeper - Background Location Telemetry Capture and Change Feed
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trailkeeper

package websocket

import (
	"github.com/goccy/go-json"

	"github.com/tomtom215/trailkeeper/internal/feed"
	"github.com/tomtom215/trailkeeper/internal/models"
	"github.com/tomtom215/trailkeeper/internal/view"
)

// Message types for WebSocket communication
const (
	MessageTypePing              = "ping"
	MessageTypePong              = "pong"
	MessageTypeSelectDay         = "select_day"
	MessageTypeDates             = "dates"
	MessageTypeLocationsInitial  = "locations_initial"
	MessageTypeLocationsChanged  = "locations_changed"
	MessageTypeSubscriptionError = "subscription_error"
	MessageTypeError             = "error"
)

// Message is a server-to-client frame.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// inbound is a client-to-server frame. Data is decoded per type.
type inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// LocationsInitial carries the full row list of a newly selected day.
type LocationsInitial struct {
	Day     string               `json:"day"`
	Version uint64               `json:"version"`
	Rows    []models.LocationRow `json:"rows"`
}

// LocationsChanged is one diff for the selected day. Clients apply
// Deletions from the highest index down, then Insertions from the lowest
// index up, then Modifications. Inserted and Modified are parallel to
// their index lists.
type LocationsChanged struct {
	Day           string               `json:"day"`
	Version       uint64               `json:"version"`
	Deletions     []int                `json:"deletions"`
	Insertions    []int                `json:"insertions"`
	Modifications []int                `json:"modifications"`
	Inserted      []models.LocationRow `json:"inserted"`
	Modified      []models.LocationRow `json:"modified"`
}

// SubscriptionError reports that the day subscription died.
type SubscriptionError struct {
	Day   string `json:"day"`
	Error string `json:"error"`
}

// ErrorData answers an invalid client frame.
type ErrorData struct {
	Message string `json:"message"`
}

// updateMessage converts a list update into the frame sent to the client.
func updateMessage(u view.LocationUpdate) Message {
	switch u.Change.Type {
	case feed.ChangeInitial:
		return Message{Type: MessageTypeLocationsInitial, Data: LocationsInitial{
			Day:     u.Day,
			Version: u.Change.Version,
			Rows:    u.Rows,
		}}
	case feed.ChangeError:
		return Message{Type: MessageTypeSubscriptionError, Data: SubscriptionError{
			Day:   u.Day,
			Error: u.Change.Err.Error(),
		}}
	}

	c := &u.Change
	return Message{Type: MessageTypeLocationsChanged, Data: LocationsChanged{
		Day:           u.Day,
		Version:       c.Version,
		Deletions:     nonNil(c.Deletions),
		Insertions:    nonNil(c.Insertions),
		Modifications: nonNil(c.Modifications),
		Inserted:      rowsAt(c.Results, c.Insertions),
		Modified:      rowsAt(c.Results, c.Modifications),
	}}
}

func rowsAt(results []models.LocationRecord, idx []int) []models.LocationRow {
	out := make([]models.LocationRow, len(idx))
	for i, j := range idx {
		out[i] = results[j].Row()
	}
	return out
}

func nonNil(s []int) []int {
	if s == nil {
		return []int{}
	}
	return s
}

// MarshalMessage encodes msg as sent on the wire.
func MarshalMessage(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}
