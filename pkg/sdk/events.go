// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NFive Contributors

package sdk

import (
	"context"
	"time"
)

// ServerInitialized is raised on the event bus once every plugin has booted.
const ServerInitialized = "serverInitialized"

// Event is a message raised on the shared in-process event bus.
type Event struct {
	ID        string
	Name      string
	Timestamp time.Time
	Args      []any
}

// EventBus is the process-wide event bus shared by every controller.
type EventBus interface {
	// Subscribe returns a channel receiving every event raised under name.
	Subscribe(name string) <-chan Event
	// Unsubscribe removes and closes a channel returned by Subscribe.
	Unsubscribe(name string, ch <-chan Event)
	// Raise publishes an event without waiting for subscribers.
	Raise(name string, args ...any)
}

// RawEvent is a host event delivered over the RPC channel before any
// argument decoding has happened.
type RawEvent struct {
	Name   string
	Source string
	Args   []any

	canceled bool
}

// Cancel stops the host from propagating the event any further.
func (e *RawEvent) Cancel() {
	e.canceled = true
}

// Canceled reports whether Cancel was called.
func (e *RawEvent) Canceled() bool {
	return e.canceled
}

// RawHandler handles a RawEvent.
type RawHandler func(ctx context.Context, ev *RawEvent)

// RPC is a handle onto the host's remote procedure channel.
type RPC interface {
	Event(name string) RPCEvent
}

// RPCEvent is a named event on the RPC channel.
type RPCEvent interface {
	// OnRaw registers h for every delivery of the event.
	OnRaw(h RawHandler)
}
