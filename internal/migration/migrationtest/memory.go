// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NFive Contributors

// Package migrationtest provides an in-memory migration engine for tests.
package migrationtest

import (
	"sync"

	"github.com/nfive/server/internal/migration"
	"github.com/nfive/server/pkg/sdk"
)

// MemoryEngine records applied migration versions in memory.
type MemoryEngine struct {
	mu      sync.Mutex
	applied map[key]uint
	opened  int
	closed  int

	// UpErr, when set, is returned by every Up call.
	UpErr error
}

type key struct {
	plugin sdk.Name
	model  string
}

// NewMemoryEngine returns an engine with nothing applied.
func NewMemoryEngine() *MemoryEngine {
	return &MemoryEngine{applied: make(map[key]uint)}
}

// Open implements migration.Engine.
func (e *MemoryEngine) Open(plugin sdk.Name, src sdk.MigrationSource) (migration.Migrator, error) {
	steps, err := migration.Steps(src)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.opened++
	e.mu.Unlock()
	return &memoryMigrator{engine: e, key: key{plugin: plugin, model: src.Model()}, steps: steps}, nil
}

// Applied returns the latest applied version of a plugin model.
func (e *MemoryEngine) Applied(plugin sdk.Name, model string) (uint, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.applied[key{plugin: plugin, model: model}]
	return v, ok
}

// MarkApplied records version as applied for a plugin model.
func (e *MemoryEngine) MarkApplied(plugin sdk.Name, model string, version uint) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.applied[key{plugin: plugin, model: model}] = version
}

// Balanced reports whether every opened migrator was closed.
func (e *MemoryEngine) Balanced() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.opened == e.closed
}

type memoryMigrator struct {
	engine *MemoryEngine
	key    key
	steps  []migration.Step
}

func (m *memoryMigrator) Pending() ([]string, error) {
	m.engine.mu.Lock()
	defer m.engine.mu.Unlock()
	v, ok := m.engine.applied[m.key]
	return migration.StepsAfter(m.steps, v, ok), nil
}

func (m *memoryMigrator) Up() error {
	if m.engine.UpErr != nil {
		return m.engine.UpErr
	}
	if len(m.steps) == 0 {
		return nil
	}
	m.engine.mu.Lock()
	defer m.engine.mu.Unlock()
	m.engine.applied[m.key] = m.steps[len(m.steps)-1].Version
	return nil
}

func (m *memoryMigrator) Close() error {
	m.engine.mu.Lock()
	defer m.engine.mu.Unlock()
	m.engine.closed++
	return nil
}
