// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NFive Contributors

package controller

import (
	"errors"
	"log/slog"
	"reflect"

	"github.com/samber/oops"

	"github.com/nfive/server/internal/logging"
	"github.com/nfive/server/pkg/sdk"
)

// ErrConstruction is wrapped by every controller construction failure.
var ErrConstruction = errors.New("controller construction failed")

// Binder produces a configuration value of exactly type t for a plugin.
type Binder interface {
	Bind(plugin sdk.Name, t reflect.Type, defaults any) (any, error)
}

// Deps holds the collaborators a Factory hands to constructors.
type Deps struct {
	Logger   *slog.Logger
	Events   sdk.EventBus
	NewRPC   func() sdk.RPC
	Binder   Binder
	Registry *Registry
}

// Factory builds one controller per constructor and appends it to the
// registry.
type Factory struct {
	deps Deps
}

// NewFactory creates a factory.
func NewFactory(deps Deps) *Factory {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Registry == nil {
		deps.Registry = NewRegistry()
	}
	return &Factory{deps: deps}
}

// Registry returns the registry the factory appends to.
func (f *Factory) Registry() *Registry {
	return f.deps.Registry
}

// Namespace returns the logger namespace for controllers of plugin.
// Core controllers are namespaced by their own name.
func Namespace(plugin sdk.Name, ctor sdk.ControllerConstructor) string {
	if plugin == sdk.CoreName {
		return ctor.ControllerName()
	}
	return "Plugin|" + plugin.String()
}

// Construct builds ctor for plugin and registers the instance.
func (f *Factory) Construct(plugin sdk.Name, ctor sdk.ControllerConstructor) (Instance, error) {
	errb := oops.Code("CONSTRUCTION_FAILED").
		With("plugin", plugin.String()).
		With("controller", ctor.ControllerName())

	var cfg any
	if t := ctor.ConfigType(); t != nil {
		if f.deps.Binder == nil {
			return Instance{}, errb.Wrapf(ErrConstruction, "no configuration binder for %s", t)
		}
		bound, err := f.deps.Binder.Bind(plugin, t, ctor.DefaultConfig())
		if err != nil {
			return Instance{}, oops.
				With("plugin", plugin.String()).
				With("controller", ctor.ControllerName()).
				Wrap(err)
		}
		cfg = bound
	}

	deps := sdk.Deps{
		Logger: logging.Namespace(f.deps.Logger, Namespace(plugin, ctor)),
		Events: f.deps.Events,
		Plugin: plugin,
	}
	if f.deps.NewRPC != nil {
		deps.RPC = f.deps.NewRPC()
	}

	ctrl, err := build(ctor, deps, cfg)
	if err != nil {
		return Instance{}, errb.Wrap(errors.Join(ErrConstruction, err))
	}

	inst := Instance{Plugin: plugin, Controller: ctrl, Constructor: ctor}
	f.deps.Registry.Append(plugin, inst)
	f.deps.Logger.Debug("controller constructed",
		"plugin", plugin.String(),
		"controller", ctor.ControllerName(),
	)
	return inst, nil
}

// ConstructAll builds every constructor in order, stopping at the first
// failure. Instances built before a failure stay registered.
func (f *Factory) ConstructAll(plugin sdk.Name, ctors []sdk.ControllerConstructor) (int, error) {
	for i, ctor := range ctors {
		if _, err := f.Construct(plugin, ctor); err != nil {
			return i, err
		}
	}
	return len(ctors), nil
}

func build(ctor sdk.ControllerConstructor, deps sdk.Deps, cfg any) (ctrl sdk.Controller, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = oops.With("panic", r).Errorf("constructor panicked: %v", r)
		}
	}()
	return ctor.New(deps, cfg)
}
