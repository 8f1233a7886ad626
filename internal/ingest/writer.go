// Trailkeeper - Background Location Telemetry Capture and Change Feed
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trailkeeper

package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/trailkeeper/internal/logging"
	"github.com/tomtom215/trailkeeper/internal/models"
)

// Appender is the store's write side.
type Appender interface {
	Append(ctx context.Context, fixes []models.Fix, writtenAt time.Time) error
}

// WriterConfig configures a Writer.
type WriterConfig struct {
	Topic string
	// BreakerFailures consecutive append failures open the breaker.
	BreakerFailures uint32
	// BreakerTimeout is how long the breaker stays open before probing.
	BreakerTimeout time.Duration
	// Clock stamps writtenAt. Defaults to time.Now.
	Clock func() time.Time
}

// WriterStats is a snapshot of writer counters.
type WriterStats struct {
	BatchesReceived uint64 `json:"batches_received"`
	BatchesWritten  uint64 `json:"batches_written"`
	BatchesDropped  uint64 `json:"batches_dropped"`
	DecodeErrors    uint64 `json:"decode_errors"`
	BreakerState    string `json:"breaker_state"`
}

// Writer is the single store writer. Every message is acknowledged
// whether or not the append succeeded: failed batches are logged and
// dropped, never retried.
type Writer struct {
	sub     message.Subscriber
	store   Appender
	cfg     WriterConfig
	breaker *gobreaker.CircuitBreaker[struct{}]

	ready     chan struct{}
	readyOnce sync.Once

	received atomic.Uint64
	written  atomic.Uint64
	dropped  atomic.Uint64
	decode   atomic.Uint64
}

// NewWriter creates a writer consuming sub and appending to store.
func NewWriter(sub message.Subscriber, store Appender, cfg WriterConfig) *Writer {
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = 30 * time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	w := &Writer{
		sub:   sub,
		store: store,
		cfg:   cfg,
		ready: make(chan struct{}),
	}
	w.breaker = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "store-append",
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			breakerState.Set(float64(to))
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Store append circuit breaker state changed")
		},
	})
	return w
}

// Ready is closed once the writer is subscribed and publishes will be consumed.
func (w *Writer) Ready() <-chan struct{} { return w.ready }

// Serve consumes batches until ctx is done. It is a suture service.
func (w *Writer) Serve(ctx context.Context) error {
	messages, err := w.sub.Subscribe(ctx, w.cfg.Topic)
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", w.cfg.Topic, err)
	}
	w.readyOnce.Do(func() { close(w.ready) })

	logging.Info().Str("topic", w.cfg.Topic).Msg("Ingest writer started")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return errors.New("ingest subscription closed")
			}
			w.process(ctx, msg)
		}
	}
}

func (w *Writer) process(ctx context.Context, msg *message.Message) {
	defer msg.Ack()
	w.received.Add(1)

	var batch Batch
	if err := json.Unmarshal(msg.Payload, &batch); err != nil {
		w.decode.Add(1)
		ingestDecodeErrors.Inc()
		logging.Warn().
			Str("message_uuid", msg.UUID).
			Err(err).
			Msg("Failed to decode fix batch")
		return
	}
	if len(batch.Fixes) == 0 {
		return
	}

	writtenAt := w.cfg.Clock()
	_, err := w.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, w.store.Append(ctx, batch.Fixes, writtenAt)
	})
	if err != nil {
		w.dropped.Add(1)
		ingestBatchesDropped.Inc()
		ev := logging.Failure(logging.KindPersistenceWriteFailure, err).
			Str("message_uuid", msg.UUID).
			Int("batch_size", len(batch.Fixes))
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			ev = ev.Bool("breaker_open", true)
		}
		ev.Msg("Dropped fix batch")
		return
	}

	w.written.Add(1)
	ingestBatchesWritten.Inc()
	ingestWriteLag.Observe(writtenAt.Sub(batch.ReceivedAt).Seconds())
}

// Stats returns the current counters.
func (w *Writer) Stats() WriterStats {
	return WriterStats{
		BatchesReceived: w.received.Load(),
		BatchesWritten:  w.written.Load(),
		BatchesDropped:  w.dropped.Load(),
		DecodeErrors:    w.decode.Load(),
		BreakerState:    w.breaker.State().String(),
	}
}

func (w *Writer) String() string { return "ingest-writer" }
