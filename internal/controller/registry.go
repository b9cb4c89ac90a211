// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NFive Contributors

// Package controller constructs plugin controllers and keeps the registry
// of live instances.
package controller

import (
	"sync"

	"github.com/nfive/server/pkg/sdk"
)

// Instance is a constructed controller and the constructor that built it.
type Instance struct {
	Plugin      sdk.Name
	Controller  sdk.Controller
	Constructor sdk.ControllerConstructor
}

// Registry maps plugin names to their controller instances. Names keep
// the order of their first append. Entries are only ever appended.
type Registry struct {
	mu      sync.RWMutex
	names   []sdk.Name
	entries map[sdk.Name][]Instance
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[sdk.Name][]Instance)}
}

// Append adds inst to the entry for name, creating the entry if needed.
func (r *Registry) Append(name sdk.Name, inst Instance) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[name]; !ok {
		r.names = append(r.names, name)
	}
	r.entries[name] = append(r.entries[name], inst)
}

// Names returns a snapshot of registered names in insertion order.
func (r *Registry) Names() []sdk.Name {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]sdk.Name(nil), r.names...)
}

// Get returns a copy of the instances registered under name.
func (r *Registry) Get(name sdk.Name) ([]Instance, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	insts, ok := r.entries[name]
	if !ok {
		return nil, false
	}
	return append([]Instance(nil), insts...), true
}

// Len returns the number of entries.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.names)
}

// Count returns the number of instances across all entries.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, insts := range r.entries {
		n += len(insts)
	}
	return n
}
