// Trailkeeper - Background Location Telemetry Capture and Change Feed
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trailkeeper

// Package natsource implements location.Platform over NATS. A device (or
// a bridge in front of one) publishes fixes, failures, authorization and
// lifecycle events under a subject prefix and listens for control
// commands:
//
//	<prefix>.fixes          FixBatch            device -> trailkeeper
//	<prefix>.failures       FailureEvent        device -> trailkeeper
//	<prefix>.authorization  AuthorizationEvent  device -> trailkeeper
//	<prefix>.lifecycle      LifecycleEvent      device -> trailkeeper
//	<prefix>.control        Command             trailkeeper -> device
//	<prefix>.status         StatusReply         request/reply at startup
//
// Device events are consumed through a watermill subscriber on the shared
// connection, one goroutine per subject, so callbacks reach the adapter
// from varying contexts. Commands and the status request use the
// connection directly.
package natsource

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/tomtom215/trailkeeper/internal/location"
	"github.com/tomtom215/trailkeeper/internal/logging"
	"github.com/tomtom215/trailkeeper/internal/models"
)

// Config configures a Platform.
type Config struct {
	SubjectPrefix  string
	RequestTimeout time.Duration
}

// Platform is a location.Platform backed by a NATS connection.
type Platform struct {
	nc      *nats.Conn
	prefix  string
	timeout time.Duration
	logger  zerolog.Logger

	mu                   sync.RWMutex
	status               location.AuthorizationStatus
	servicesEnabled      bool
	significantAvailable bool
	delegate             location.Delegate

	events *wmNats.Subscriber
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type eventHandler func(data []byte) error

// New queries the device status and subscribes to the event subjects. If
// no device answers the status request within the timeout the platform
// starts as undetermined with services available.
func New(nc *nats.Conn, cfg Config) (*Platform, error) {
	if cfg.SubjectPrefix == "" {
		return nil, errors.New("natsource: subject prefix required")
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 2 * time.Second
	}
	p := &Platform{
		nc:                   nc,
		prefix:               cfg.SubjectPrefix,
		timeout:              cfg.RequestTimeout,
		logger:               logging.WithComponent("natsource"),
		status:               location.NotDetermined,
		servicesEnabled:      true,
		significantAvailable: true,
	}
	p.refreshStatus()

	// Core NATS subscriptions, no JetStream consumer.
	wmConfig := wmNats.SubscriberConfig{
		SubscribersCount:  1,
		AckWaitTimeout:    30 * time.Second,
		CloseTimeout:      5 * time.Second,
		Unmarshaler:       &wmNats.NATSMarshaler{},
		SubjectCalculator: wmNats.DefaultSubjectCalculator,
		JetStream:         wmNats.JetStreamConfig{Disabled: true},
	}
	events, err := wmNats.NewSubscriberWithNatsConn(nc, wmConfig.GetSubscriberSubscriptionConfig(), logging.NewWatermillLogger())
	if err != nil {
		return nil, fmt.Errorf("create event subscriber: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.events = events
	p.cancel = cancel

	handlers := map[string]eventHandler{
		SubjectFixes:         p.onFixes,
		SubjectFailures:      p.onFailure,
		SubjectAuthorization: p.onAuthorization,
		SubjectLifecycle:     p.onLifecycle,
	}
	for suffix, h := range handlers {
		messages, err := events.Subscribe(ctx, p.subject(suffix))
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("subscribe %s: %w", p.subject(suffix), err)
		}
		p.wg.Add(1)
		go p.consume(suffix, messages, h)
	}
	if err := nc.Flush(); err != nil {
		p.Close()
		return nil, fmt.Errorf("flush subscriptions: %w", err)
	}

	p.logger.Info().
		Str("prefix", p.prefix).
		Str("authorization", p.AuthorizationStatus().String()).
		Msg("NATS location source ready")
	return p, nil
}

func (p *Platform) subject(suffix string) string {
	return p.prefix + "." + suffix
}

func (p *Platform) refreshStatus() {
	msg, err := p.nc.Request(p.subject(SubjectStatus), nil, p.timeout)
	if err != nil {
		p.logger.Warn().Err(err).Msg("No device status reply, assuming undetermined")
		return
	}
	var reply StatusReply
	if err := p.decode(msg.Data, &reply); err != nil {
		p.logger.Warn().Err(err).Msg("Invalid device status reply, assuming undetermined")
		return
	}
	status, _ := location.ParseAuthorizationStatus(reply.Authorization)

	p.mu.Lock()
	p.status = status
	p.servicesEnabled = reply.ServicesEnabled
	p.significantAvailable = reply.SignificantChangeAvailable
	p.mu.Unlock()
}

func (p *Platform) decode(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return validatePayload(v)
}

func (p *Platform) currentDelegate() location.Delegate {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.delegate
}

// consume handles one subject in arrival order until the subscriber closes.
// Every message is acked; a bad payload is counted and dropped.
func (p *Platform) consume(suffix string, messages <-chan *message.Message, h eventHandler) {
	defer p.wg.Done()
	for msg := range messages {
		messagesReceived.WithLabelValues(suffix).Inc()
		if err := h(msg.Payload); err != nil {
			messagesRejected.WithLabelValues(suffix).Inc()
			p.logger.Warn().Err(err).Str("subject", p.subject(suffix)).Msg("Discarded device message")
		}
		msg.Ack()
	}
}

func (p *Platform) onFixes(data []byte) error {
	var batch FixBatch
	if err := p.decode(data, &batch); err != nil {
		return err
	}
	fixes := make([]models.Fix, len(batch.Fixes))
	for i := range batch.Fixes {
		fixes[i] = batch.Fixes[i].Fix()
	}
	if d := p.currentDelegate(); d != nil {
		d.DidUpdateLocations(fixes)
	}
	return nil
}

func (p *Platform) onFailure(data []byte) error {
	var ev FailureEvent
	if err := p.decode(data, &ev); err != nil {
		return err
	}
	if d := p.currentDelegate(); d != nil {
		d.DidFail(&deviceError{code: ev.Code, message: ev.Message})
	}
	return nil
}

func (p *Platform) onAuthorization(data []byte) error {
	var ev AuthorizationEvent
	if err := p.decode(data, &ev); err != nil {
		return err
	}
	status, err := location.ParseAuthorizationStatus(ev.Status)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.status = status
	d := p.delegate
	p.mu.Unlock()
	if d != nil {
		d.DidChangeAuthorization(status)
	}
	return nil
}

func (p *Platform) onLifecycle(data []byte) error {
	var ev LifecycleEvent
	if err := p.decode(data, &ev); err != nil {
		return err
	}
	d := p.currentDelegate()
	if d == nil {
		return nil
	}
	if ev.Event == "pause" {
		d.DidPauseUpdates()
	} else {
		d.DidResumeUpdates()
	}
	return nil
}

func (p *Platform) send(cmd Command) {
	cmd.SentAt = time.Now().UTC()
	data, err := json.Marshal(cmd)
	if err != nil {
		p.logger.Error().Err(err).Str("command", cmd.Command).Msg("Encode control command")
		return
	}
	if err := p.nc.Publish(p.subject(SubjectControl), data); err != nil {
		commandsFailed.Inc()
		p.logger.Error().Err(err).Str("command", cmd.Command).Msg("Publish control command")
		return
	}
	commandsSent.WithLabelValues(cmd.Command).Inc()
}

// AuthorizationStatus returns the last status reported by the device.
func (p *Platform) AuthorizationStatus() location.AuthorizationStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status
}

// ServicesEnabled reports the device's last known location services switch.
func (p *Platform) ServicesEnabled() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.servicesEnabled
}

// SignificantChangeMonitoringAvailable reports whether the device said it
// can monitor significant changes.
func (p *Platform) SignificantChangeMonitoringAvailable() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.significantAvailable
}

// RequestAlwaysAuthorization asks the device to prompt for always access.
// The answer arrives later on the authorization subject.
func (p *Platform) RequestAlwaysAuthorization() {
	p.send(Command{Command: CommandRequestAuthorization})
}

// StartUpdatingLocation commands continuous updates.
func (p *Platform) StartUpdatingLocation() {
	p.send(Command{Command: CommandStartUpdating})
}

// StopUpdatingLocation commands continuous updates off.
func (p *Platform) StopUpdatingLocation() {
	p.send(Command{Command: CommandStopUpdating})
}

// StartMonitoringSignificantLocationChanges commands significant-change
// monitoring on.
func (p *Platform) StartMonitoringSignificantLocationChanges() {
	p.send(Command{Command: CommandStartSignificant})
}

// StopMonitoringSignificantLocationChanges commands significant-change
// monitoring off.
func (p *Platform) StopMonitoringSignificantLocationChanges() {
	p.send(Command{Command: CommandStopSignificant})
}

// Configure sends accuracy, distance filter, activity type and the
// background flags to the device.
func (p *Platform) Configure(opts location.Options) {
	p.send(Command{Command: CommandConfigure, Options: commandOptions(opts)})
}

// SetDelegate installs the receiver of device events. Pass nil to detach.
func (p *Platform) SetDelegate(d location.Delegate) {
	p.mu.Lock()
	p.delegate = d
	p.mu.Unlock()
}

// Close stops the event subscriber and waits for in-flight callbacks. It
// must not be called from a delegate callback.
func (p *Platform) Close() {
	p.mu.Lock()
	p.delegate = nil
	p.mu.Unlock()

	if p.cancel != nil {
		p.cancel()
	}
	if p.events != nil {
		if err := p.events.Close(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
			p.logger.Debug().Err(err).Msg("Close event subscriber")
		}
	}
	p.wg.Wait()
}
