// Trailkeeper - Background Location Telemetry Capture and Change Feed
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trailkeeper

// Package ingest moves fix batches from the location adapter into the log
// store. Platform callbacks publish onto an in-process watermill channel
// from whatever goroutine they arrive on; a single Writer consumes it and
// is the only caller of the store's Append.
package ingest

import (
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/tomtom215/trailkeeper/internal/logging"
	"github.com/tomtom215/trailkeeper/internal/models"
)

// DefaultTopic carries fix batches.
const DefaultTopic = "location.fixes"

// Batch is the message payload.
type Batch struct {
	Fixes      []models.Fix `json:"fixes"`
	ReceivedAt time.Time    `json:"received_at"`
}

// Bus is the in-process handoff between the adapter and the writer.
// Publish blocks until the writer acknowledges, so a publisher returning
// means the batch was either committed or dropped and logged.
type Bus struct {
	pubsub *gochannel.GoChannel
}

// NewBus creates the channel.
func NewBus() *Bus {
	return &Bus{
		pubsub: gochannel.NewGoChannel(gochannel.Config{
			BlockPublishUntilSubscriberAck: true,
		}, logging.NewWatermillLogger()),
	}
}

// Publisher returns the publishing side.
func (b *Bus) Publisher() message.Publisher { return b.pubsub }

// Subscriber returns the subscribing side.
func (b *Bus) Subscriber() message.Subscriber { return b.pubsub }

// Close closes the channel and all subscriptions.
func (b *Bus) Close() error { return b.pubsub.Close() }
