// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NFive Contributors

// Package events is the shared in-process event bus handed to every controller.
package events

import (
	"crypto/rand"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/nfive/server/pkg/sdk"
)

// ServerInitialized is raised once after every plugin has booted.
const ServerInitialized = sdk.ServerInitialized

// DefaultBuffer is the per-subscriber channel capacity.
const DefaultBuffer = 100

// Compile-time interface check.
var _ sdk.EventBus = (*Bus)(nil)

// Bus distributes named events to subscriber channels. Raise never blocks:
// a subscriber whose buffer is full misses the event.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string][]chan sdk.Event
	buffer int
	logger *slog.Logger
	now    func() time.Time

	entropyMu sync.Mutex
	entropy   *ulid.MonotonicEntropy
}

// Option configures a Bus.
type Option func(*Bus)

// WithBuffer sets the subscriber channel capacity.
func WithBuffer(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.buffer = n
		}
	}
}

// WithLogger sets the logger used to report dropped events.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bus) {
		b.logger = l
	}
}

// NewBus creates an event bus.
func NewBus(opts ...Option) *Bus {
	b := &Bus{
		subs:    make(map[string][]chan sdk.Event),
		buffer:  DefaultBuffer,
		logger:  slog.Default(),
		now:     time.Now,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe creates a channel receiving events raised under name.
func (b *Bus) Subscribe(name string) <-chan sdk.Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan sdk.Event, b.buffer)
	b.subs[name] = append(b.subs[name], ch)
	return ch
}

// Unsubscribe removes and closes ch.
func (b *Bus) Unsubscribe(name string, ch <-chan sdk.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[name]
	for i, sub := range subs {
		if sub == ch {
			b.subs[name] = append(subs[:i], subs[i+1:]...)
			close(sub)
			return
		}
	}
}

// Raise sends an event to every subscriber of name.
func (b *Bus) Raise(name string, args ...any) {
	now := b.now()
	event := sdk.Event{
		ID:        b.newID(now).String(),
		Name:      name,
		Timestamp: now,
		Args:      args,
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs[name] {
		select {
		case ch <- event:
		default:
			b.logger.Warn("event dropped: subscriber buffer full",
				"event", name,
				"event_id", event.ID,
			)
		}
	}
}

// Subscribers returns the number of subscribers for name.
func (b *Bus) Subscribers(name string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[name])
}

func (b *Bus) newID(t time.Time) ulid.ULID {
	b.entropyMu.Lock()
	defer b.entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), b.entropy)
}
