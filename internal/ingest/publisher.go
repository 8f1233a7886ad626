// Trailkeeper - Background Location Telemetry Capture and Change Feed
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trailkeeper

package ingest

import (
	"fmt"
	"strconv"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/trailkeeper/internal/models"
)

// Publisher turns fix batches into bus messages. It implements location.Sink.
type Publisher struct {
	pub   message.Publisher
	topic string
	now   func() time.Time
}

// NewPublisher publishes to topic, or DefaultTopic when empty.
func NewPublisher(pub message.Publisher, topic string) *Publisher {
	if topic == "" {
		topic = DefaultTopic
	}
	return &Publisher{pub: pub, topic: topic, now: time.Now}
}

// DeliverFixes publishes one message per batch and waits for the writer.
func (p *Publisher) DeliverFixes(fixes []models.Fix) error {
	payload, err := json.Marshal(Batch{Fixes: fixes, ReceivedAt: p.now().UTC()})
	if err != nil {
		return fmt.Errorf("encode fix batch: %w", err)
	}
	msg := message.NewMessage(uuid.NewString(), payload)
	msg.Metadata.Set("fix_count", strconv.Itoa(len(fixes)))

	if err := p.pub.Publish(p.topic, msg); err != nil {
		ingestPublishFailures.Inc()
		return fmt.Errorf("publish fix batch: %w", err)
	}
	ingestBatchesPublished.Inc()
	return nil
}
