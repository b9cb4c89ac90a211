// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NFive Contributors

// Package rpc binds controller RPC handles to the host's event handler registry.
package rpc

import (
	"sync"

	"github.com/nfive/server/pkg/sdk"
)

// Registry is the host's handler registry the substrate writes into.
type Registry interface {
	Register(event string, h sdk.RawHandler)
}

// Substrate hands out RPC handles bound to one host registry.
type Substrate struct {
	registry Registry
}

// Configure binds the substrate to the host's handler registry.
func Configure(registry Registry) *Substrate {
	return &Substrate{registry: registry}
}

// NewHandler returns a fresh RPC handle.
func (s *Substrate) NewHandler() *Handler {
	return &Handler{substrate: s}
}

// Compile-time interface checks.
var (
	_ sdk.RPC      = (*Handler)(nil)
	_ sdk.RPCEvent = (*Event)(nil)
)

// Handler is one RPC handle. It remembers the events it registered for.
type Handler struct {
	substrate *Substrate

	mu     sync.Mutex
	events []string
}

// Event returns the named event on the RPC channel.
func (h *Handler) Event(name string) sdk.RPCEvent {
	return &Event{handler: h, name: name}
}

// Events returns the event names this handle registered handlers for.
func (h *Handler) Events() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.events))
	copy(out, h.events)
	return out
}

// Event is a named event reachable through a Handler.
type Event struct {
	handler *Handler
	name    string
}

// OnRaw registers fn for every raw delivery of the event.
func (e *Event) OnRaw(fn sdk.RawHandler) {
	e.handler.substrate.registry.Register(e.name, fn)

	e.handler.mu.Lock()
	e.handler.events = append(e.handler.events, e.name)
	e.handler.mu.Unlock()
}
