// Trailkeeper - Background Location Telemetry Capture and Change Feed
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trailkeeper

package feed

import (
	"context"
	"sync"

	"github.com/tomtom215/trailkeeper/internal/logging"
)

// Dispatcher decides where subscription handlers run.
type Dispatcher interface {
	// Dispatch schedules fn. It must not block on fn and must run the
	// functions it receives from one caller in order.
	Dispatch(fn func())
}

// Inline runs handlers directly on the subscription's own goroutine.
type Inline struct{}

// Dispatch calls fn immediately.
func (Inline) Dispatch(fn func()) { fn() }

// Executor is a serial execution context: every dispatched function runs on
// one goroutine, one at a time, in dispatch order. It plays the role of a UI
// main thread for consumers that need all callbacks on a single context.
//
// Functions dispatched before Serve starts are queued and run once it does.
type Executor struct {
	name string

	mu     sync.Mutex
	queue  []func()
	signal chan struct{}
}

// NewExecutor creates an idle executor.
func NewExecutor(name string) *Executor {
	return &Executor{name: name, signal: make(chan struct{}, 1)}
}

// Dispatch queues fn without blocking.
func (e *Executor) Dispatch(fn func()) {
	e.mu.Lock()
	e.queue = append(e.queue, fn)
	e.mu.Unlock()
	select {
	case e.signal <- struct{}{}:
	default:
	}
}

// Pending returns the number of queued functions.
func (e *Executor) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.queue)
}

// Serve runs queued functions until ctx is done. It implements suture.Service.
func (e *Executor) Serve(ctx context.Context) error {
	logging.Debug().Str("executor", e.name).Msg("Executor started")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.signal:
		}
		for {
			fn := e.next()
			if fn == nil {
				break
			}
			e.run(fn)
		}
	}
}

func (e *Executor) next() func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.queue) == 0 {
		return nil
	}
	fn := e.queue[0]
	e.queue[0] = nil
	e.queue = e.queue[1:]
	return fn
}

// run isolates handler panics so one bad consumer cannot stop the context.
func (e *Executor) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error().Str("executor", e.name).Interface("panic", r).Msg("Dispatched function panicked")
		}
	}()
	fn()
}

// String implements fmt.Stringer for suture logging.
func (e *Executor) String() string {
	return "feed-executor-" + e.name
}
