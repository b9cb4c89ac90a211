// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NFive Contributors

package sdk

import (
	"context"
	"log/slog"
	"reflect"
	"sync"

	"github.com/samber/oops"
)

// Deps is the context every controller is constructed with.
type Deps struct {
	// Logger is scoped to the owning plugin.
	Logger *slog.Logger
	// Events is the shared process-wide event bus.
	Events EventBus
	// RPC is a fresh handle onto the host RPC channel.
	RPC RPC
	// Plugin is the name of the owning plugin.
	Plugin Name
}

// Controller is a long-lived object owning a slice of plugin behaviour.
type Controller interface {
	// Reload re-initializes the controller in place.
	Reload(ctx context.Context) error
}

// ConfigurableController is a Controller bound to a configuration of type T.
type ConfigurableController[T any] interface {
	Controller
	// ReloadConfig re-initializes the controller with a freshly bound configuration.
	ReloadConfig(ctx context.Context, cfg T) error
}

// ConfigFiler lets a configuration type choose its file name, without the
// .yml extension. Types that do not implement it use their lower-cased type
// name with any Configuration or Config suffix removed.
type ConfigFiler interface {
	ConfigFile() string
}

// Base is an embeddable Controller with a no-op Reload.
type Base struct {
	Deps
}

// NewBase returns a Base holding deps.
func NewBase(deps Deps) Base {
	return Base{Deps: deps}
}

// Reload implements Controller.
func (Base) Reload(context.Context) error {
	return nil
}

// ConfigurableBase is an embeddable ConfigurableController that stores the
// most recently bound configuration.
type ConfigurableBase[T any] struct {
	Base

	mu  sync.RWMutex
	cfg T
}

// NewConfigurableBase returns a ConfigurableBase holding deps and cfg.
func NewConfigurableBase[T any](deps Deps, cfg T) *ConfigurableBase[T] {
	return &ConfigurableBase[T]{Base: NewBase(deps), cfg: cfg}
}

// Configuration returns the current configuration.
func (b *ConfigurableBase[T]) Configuration() T {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.cfg
}

// ReloadConfig replaces the stored configuration.
func (b *ConfigurableBase[T]) ReloadConfig(_ context.Context, cfg T) error {
	b.mu.Lock()
	b.cfg = cfg
	b.mu.Unlock()
	return nil
}

// ControllerConstructor builds one controller type. The server constructs
// exactly one instance per exported constructor.
type ControllerConstructor interface {
	// ControllerName names the controller type in logs.
	ControllerName() string
	// ConfigType is the declared configuration type, or nil for plain controllers.
	ConfigType() reflect.Type
	// DefaultConfig is the value written to a missing configuration file.
	// Nil for plain controllers.
	DefaultConfig() any
	// New builds the controller. cfg is nil for plain controllers and a value
	// of exactly ConfigType otherwise.
	New(deps Deps, cfg any) (Controller, error)
	// Reconfigure reloads c with cfg. Plain constructors call c.Reload.
	Reconfigure(ctx context.Context, c Controller, cfg any) error
}

type plainConstructor struct {
	name  string
	build func(Deps) (Controller, error)
}

// Plain exports a controller built without configuration.
func Plain(name string, build func(Deps) (Controller, error)) ControllerConstructor {
	return &plainConstructor{name: name, build: build}
}

func (p *plainConstructor) ControllerName() string   { return p.name }
func (p *plainConstructor) ConfigType() reflect.Type { return nil }
func (p *plainConstructor) DefaultConfig() any       { return nil }

func (p *plainConstructor) New(deps Deps, _ any) (Controller, error) {
	c, err := p.build(deps)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, oops.Code("CONSTRUCTOR_RETURNED_NIL").With("controller", p.name).
			Errorf("constructor for %s returned a nil controller", p.name)
	}
	return c, nil
}

func (p *plainConstructor) Reconfigure(ctx context.Context, c Controller, _ any) error {
	return c.Reload(ctx)
}

// ConfigurableConstructor builds a controller bound to a configuration of type T.
type ConfigurableConstructor[T any] struct {
	name     string
	build    func(Deps, T) (ConfigurableController[T], error)
	defaults func() T
}

// Configurable exports a controller that is constructed and reloaded with a
// configuration of type T bound from the plugin's configuration file.
func Configurable[T any](name string, build func(Deps, T) (ConfigurableController[T], error)) *ConfigurableConstructor[T] {
	return &ConfigurableConstructor[T]{name: name, build: build}
}

// WithDefaults sets the configuration written when the plugin has no file yet.
func (c *ConfigurableConstructor[T]) WithDefaults(defaults func() T) *ConfigurableConstructor[T] {
	c.defaults = defaults
	return c
}

func (c *ConfigurableConstructor[T]) ControllerName() string { return c.name }

func (c *ConfigurableConstructor[T]) ConfigType() reflect.Type {
	return reflect.TypeFor[T]()
}

func (c *ConfigurableConstructor[T]) DefaultConfig() any {
	if c.defaults == nil {
		var zero T
		return zero
	}
	return c.defaults()
}

func (c *ConfigurableConstructor[T]) New(deps Deps, cfg any) (Controller, error) {
	typed, ok := cfg.(T)
	if !ok {
		return nil, c.mismatch(cfg)
	}
	ctrl, err := c.build(deps, typed)
	if err != nil {
		return nil, err
	}
	if ctrl == nil {
		return nil, oops.Code("CONSTRUCTOR_RETURNED_NIL").With("controller", c.name).
			Errorf("constructor for %s returned a nil controller", c.name)
	}
	return ctrl, nil
}

func (c *ConfigurableConstructor[T]) Reconfigure(ctx context.Context, ctrl Controller, cfg any) error {
	typed, ok := cfg.(T)
	if !ok {
		return c.mismatch(cfg)
	}
	cc, ok := ctrl.(ConfigurableController[T])
	if !ok {
		return oops.Code("CONTROLLER_NOT_CONFIGURABLE").
			With("controller", c.name).
			With("type", reflect.TypeOf(ctrl).String()).
			Errorf("controller %s does not accept %s", c.name, c.ConfigType())
	}
	return cc.ReloadConfig(ctx, typed)
}

func (c *ConfigurableConstructor[T]) mismatch(cfg any) error {
	return oops.Code("CONFIG_TYPE_MISMATCH").
		With("controller", c.name).
		With("want", c.ConfigType().String()).
		With("got", reflect.TypeOf(cfg)).
		Errorf("controller %s needs %s, got %T", c.name, c.ConfigType(), cfg)
}
