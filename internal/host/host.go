// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NFive Contributors

// Package host defines what the boot sequence needs from the embedding game
// server process, and provides an in-process reference host.
package host

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/samber/oops"

	"github.com/nfive/server/internal/rpc"
	"github.com/nfive/server/pkg/sdk"
)

// Host is the embedding game server process.
type Host interface {
	// ResourceRoot is the directory plugins, configuration and the lock file live under.
	ResourceRoot() (string, error)
	// SetMapName sets the map name shown to players.
	SetMapName(name string)
	// SetGameType sets the game type shown to players.
	SetGameType(name string)
	// Handlers is the registry raw RPC handlers are installed into.
	Handlers() rpc.Registry
}

// ErrNotRunning is returned by Trigger before Start or after Stop.
var ErrNotRunning = errors.New("host dispatch loop is not running")

// Compile-time interface checks.
var (
	_ Host         = (*Local)(nil)
	_ rpc.Registry = (*Local)(nil)
)

type delivery struct {
	ctx    context.Context
	ev     *sdk.RawEvent
	result chan bool
}

// Local is an in-process host. Raw events are delivered one at a time from
// a single dispatch goroutine, so handlers never run concurrently.
type Local struct {
	root   string
	logger *slog.Logger

	mu       sync.RWMutex
	mapName  string
	gameType string
	handlers map[string][]sdk.RawHandler

	runMu   sync.Mutex
	queue   chan delivery
	stop    chan struct{}
	done    chan struct{}
	wg      sync.WaitGroup
	running bool
}

// LocalOption configures a Local host.
type LocalOption func(*Local)

// WithLogger sets the logger used for handler panics.
func WithLogger(l *slog.Logger) LocalOption {
	return func(h *Local) {
		h.logger = l
	}
}

// NewLocal creates a host rooted at root.
func NewLocal(root string, opts ...LocalOption) *Local {
	h := &Local{
		root:     root,
		logger:   slog.Default(),
		handlers: make(map[string][]sdk.RawHandler),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ResourceRoot returns the absolute resource root.
func (h *Local) ResourceRoot() (string, error) {
	abs, err := filepath.Abs(h.root)
	if err != nil {
		return "", oops.With("root", h.root).Wrapf(err, "resolve resource root")
	}
	return abs, nil
}

// SetMapName records the map name.
func (h *Local) SetMapName(name string) {
	h.mu.Lock()
	h.mapName = name
	h.mu.Unlock()
}

// SetGameType records the game type.
func (h *Local) SetGameType(name string) {
	h.mu.Lock()
	h.gameType = name
	h.mu.Unlock()
}

// MapName returns the map name.
func (h *Local) MapName() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.mapName
}

// GameType returns the game type.
func (h *Local) GameType() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.gameType
}

// Handlers returns the host itself.
func (h *Local) Handlers() rpc.Registry {
	return h
}

// Register installs fn for raw deliveries of event.
func (h *Local) Register(event string, fn sdk.RawHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handlers[event] = append(h.handlers[event], fn)
}

// Start begins the dispatch loop. It stops when ctx is done or Stop is called.
func (h *Local) Start(ctx context.Context) {
	h.runMu.Lock()
	defer h.runMu.Unlock()
	if h.running {
		return
	}

	h.queue = make(chan delivery)
	h.stop = make(chan struct{})
	h.done = make(chan struct{})
	h.running = true

	queue, stop, done := h.queue, h.stop, h.done
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case d := <-queue:
				h.dispatch(d.ctx, d.ev)
				d.result <- d.ev.Canceled()
			}
		}
	}()
}

// Stop ends the dispatch loop and waits for it to exit.
func (h *Local) Stop() {
	h.runMu.Lock()
	if !h.running {
		h.runMu.Unlock()
		return
	}
	h.running = false
	close(h.stop)
	h.runMu.Unlock()

	h.wg.Wait()
}

// Trigger delivers a raw event to every registered handler and reports
// whether any handler cancelled it.
func (h *Local) Trigger(ctx context.Context, name, source string, args ...any) (bool, error) {
	h.runMu.Lock()
	if !h.running {
		h.runMu.Unlock()
		return false, ErrNotRunning
	}
	queue, done := h.queue, h.done
	h.runMu.Unlock()

	d := delivery{
		ctx:    ctx,
		ev:     &sdk.RawEvent{Name: name, Source: source, Args: args},
		result: make(chan bool, 1),
	}

	select {
	case queue <- d:
	case <-done:
		return false, ErrNotRunning
	case <-ctx.Done():
		return false, ctx.Err()
	}

	select {
	case canceled := <-d.result:
		return canceled, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func (h *Local) dispatch(ctx context.Context, ev *sdk.RawEvent) {
	h.mu.RLock()
	handlers := append([]sdk.RawHandler(nil), h.handlers[ev.Name]...)
	h.mu.RUnlock()

	for _, fn := range handlers {
		h.invoke(ctx, fn, ev)
	}
}

func (h *Local) invoke(ctx context.Context, fn sdk.RawHandler, ev *sdk.RawEvent) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("raw event handler panicked",
				"event", ev.Name,
				"panic", r,
			)
		}
	}()
	fn(ctx, ev)
}
