// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NFive Contributors

// Package migration decides whether plugin schema migrations may run at
// boot and applies them.
package migration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/samber/oops"

	"github.com/nfive/server/internal/lockfile"
	"github.com/nfive/server/pkg/sdk"
)

// ErrMigrationsPending is matched by errors.Is when boot stops because a
// plugin has migrations that automatic migration is not allowed to apply.
var ErrMigrationsPending = errors.New("migrations pending")

// PendingError names the plugin model whose migrations are pending.
type PendingError struct {
	Plugin  string
	Model   string
	Pending []string
}

func (e *PendingError) Error() string {
	return fmt.Sprintf("plugin %s has %d pending migration(s) for model %s: %s",
		e.Plugin, len(e.Pending), e.Model, strings.Join(e.Pending, ", "))
}

// Is reports whether target is ErrMigrationsPending.
func (e *PendingError) Is(target error) bool {
	return target == ErrMigrationsPending
}

// Migrator reports and applies the migrations of one model.
type Migrator interface {
	// Pending returns the identifiers of unapplied steps in declared order.
	Pending() ([]string, error)
	// Up applies every pending step in declared order.
	Up() error
	Close() error
}

// Engine opens a Migrator for a plugin's migration source.
type Engine interface {
	Open(plugin sdk.Name, src sdk.MigrationSource) (Migrator, error)
}

// Gate checks each migration source of a plugin and either applies
// pending steps or refuses, depending on the automatic migration policy.
type Gate struct {
	engine    Engine
	automatic bool
	logger    *slog.Logger
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithLogger sets the gate's logger.
func WithLogger(l *slog.Logger) GateOption {
	return func(g *Gate) {
		g.logger = l
	}
}

// NewGate creates a gate. When automatic is false any pending migration
// stops boot.
func NewGate(engine Engine, automatic bool, opts ...GateOption) *Gate {
	g := &Gate{engine: engine, automatic: automatic, logger: slog.Default()}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Apply runs the gate over sources in order and returns the number of
// steps applied.
func (g *Gate) Apply(ctx context.Context, def lockfile.Definition, sources []sdk.MigrationSource) (int, error) {
	total := 0
	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return total, oops.Wrap(err)
		}
		n, err := g.apply(def, src)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func (g *Gate) apply(def lockfile.Definition, src sdk.MigrationSource) (applied int, err error) {
	errb := oops.With("plugin", def.FullName()).With("model", src.Model())

	m, err := g.engine.Open(def.Name, src)
	if err != nil {
		return 0, errb.Code("MIGRATION_OPEN_FAILED").Wrapf(err, "open migrations")
	}
	defer func() {
		if cerr := m.Close(); cerr != nil && err == nil {
			err = errb.Code("MIGRATION_OPEN_FAILED").Wrapf(cerr, "close migrations")
		}
	}()

	pending, err := m.Pending()
	if err != nil {
		return 0, errb.Code("MIGRATION_OPEN_FAILED").Wrapf(err, "list pending migrations")
	}
	if len(pending) == 0 {
		return 0, nil
	}

	if !g.automatic {
		return 0, errb.Code("MIGRATIONS_PENDING").
			With("pending", pending).
			Wrap(&PendingError{Plugin: def.FullName(), Model: src.Model(), Pending: pending})
	}

	if err := m.Up(); err != nil {
		return 0, errb.Code("MIGRATION_UP_FAILED").Wrapf(err, "apply migrations")
	}
	g.logger.Info("migrations applied",
		"plugin", def.FullName(),
		"model", src.Model(),
		"migrations", pending,
	)
	return len(pending), nil
}
