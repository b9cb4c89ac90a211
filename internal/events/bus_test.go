// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NFive Contributors

package events

import (
	"bytes"
	"log/slog"
	"sync"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfive/server/pkg/sdk"
)

func TestBus_SubscribeAndRaise(t *testing.T) {
	b := NewBus()
	ch := b.Subscribe(ServerInitialized)

	b.Raise(ServerInitialized, "arg", 2)

	select {
	case ev := <-ch:
		assert.Equal(t, ServerInitialized, ev.Name)
		assert.Equal(t, []any{"arg", 2}, ev.Args)
		_, err := ulid.Parse(ev.ID)
		assert.NoError(t, err, "event id is a ULID")
		assert.False(t, ev.Timestamp.IsZero())
	default:
		t.Fatal("expected event")
	}
}

func TestBus_OnlyMatchingSubscribersReceive(t *testing.T) {
	b := NewBus()
	wanted := b.Subscribe("playerJoined")
	other := b.Subscribe("playerLeft")

	b.Raise("playerJoined")

	assert.Len(t, wanted, 1)
	assert.Len(t, other, 0)
}

func TestBus_RaiseWithoutSubscribers(t *testing.T) {
	b := NewBus()
	assert.NotPanics(t, func() { b.Raise("nobody") })
}

func TestBus_Unsubscribe(t *testing.T) {
	b := NewBus()
	ch := b.Subscribe("tick")
	require.Equal(t, 1, b.Subscribers("tick"))

	b.Unsubscribe("tick", ch)
	assert.Equal(t, 0, b.Subscribers("tick"))

	_, ok := <-ch
	assert.False(t, ok, "channel closed on unsubscribe")

	b.Unsubscribe("tick", ch)
}

func TestBus_DropsWhenBufferFull(t *testing.T) {
	var buf bytes.Buffer
	b := NewBus(WithBuffer(1), WithLogger(slog.New(slog.NewJSONHandler(&buf, nil))))
	ch := b.Subscribe("tick")

	b.Raise("tick")
	b.Raise("tick")

	assert.Len(t, ch, 1)
	assert.Contains(t, buf.String(), "event dropped")
}

func TestBus_MonotonicIDs(t *testing.T) {
	b := NewBus()
	ch := b.Subscribe("tick")

	for range 10 {
		b.Raise("tick")
	}

	var prev string
	for range 10 {
		ev := <-ch
		assert.Greater(t, ev.ID, prev)
		prev = ev.ID
	}
}

func TestBus_ConcurrentRaise(t *testing.T) {
	b := NewBus(WithBuffer(1000))
	ch := b.Subscribe("tick")

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.Raise("tick")
		}()
	}
	wg.Wait()

	assert.Len(t, ch, 50)
}

func TestBus_ImplementsEventBus(t *testing.T) {
	var bus sdk.EventBus = NewBus()
	ch := bus.Subscribe("x")
	bus.Raise("x")
	assert.Len(t, ch, 1)
	bus.Unsubscribe("x", ch)
}
