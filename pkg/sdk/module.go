// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NFive Contributors

package sdk

import (
	"io/fs"
	"sync"
)

// ModuleSymbol is the exported variable a main plugin binary must define.
const ModuleSymbol = "Module"

// Module is the manifest of one plugin binary.
type Module struct {
	// Name is the module name as listed in the lock file.
	Name string
	// Requires is an optional semver constraint on Version, e.g. "^1.0".
	Requires string
	// Exports lists constructors, migration sources and any other values.
	Exports []any
}

// NewModule returns a Module exporting exports.
func NewModule(name string, exports ...any) *Module {
	return &Module{Name: name, Exports: exports}
}

// MigrationSource describes the schema migrations of one model.
type MigrationSource interface {
	// Model names the schema the migrations belong to.
	Model() string
	// Migrations returns the filesystem and directory holding
	// NNN_name.up.sql / NNN_name.down.sql files.
	Migrations() (fs.FS, string)
}

type migrationSource struct {
	model string
	fsys  fs.FS
	dir   string
}

// Migrations exports the migrations for model found in dir of fsys.
func Migrations(model string, fsys fs.FS, dir string) MigrationSource {
	return &migrationSource{model: model, fsys: fsys, dir: dir}
}

func (m *migrationSource) Model() string { return m.model }

func (m *migrationSource) Migrations() (fs.FS, string) { return m.fsys, m.dir }

// Table maps plugin modules compiled into the host binary. Modules add
// themselves from init functions; the server looks them up by plugin and
// module name instead of opening a binary from disk.
type Table struct {
	mu      sync.RWMutex
	modules map[tableKey]*Module
}

type tableKey struct {
	plugin Name
	module string
}

// NewTable returns an empty Table.
func NewTable() *Table {
	return &Table{modules: make(map[tableKey]*Module)}
}

// Register adds m under plugin. A later registration of the same module
// replaces the earlier one.
func (t *Table) Register(plugin Name, m *Module) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.modules[tableKey{plugin: plugin, module: m.Name}] = m
}

// Lookup returns the module registered under plugin and module name.
func (t *Table) Lookup(plugin Name, module string) (*Module, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	m, ok := t.modules[tableKey{plugin: plugin, module: module}]
	return m, ok
}

// DefaultTable is the table Register writes to.
var DefaultTable = NewTable()

// Register adds m to DefaultTable. Call it from an init function.
func Register(plugin Name, m *Module) {
	DefaultTable.Register(plugin, m)
}
