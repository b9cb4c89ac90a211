// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NFive Contributors

// Package boot runs the server start-up sequence: core configuration, RPC
// and event wiring, core controllers, then every locked plugin in order.
package boot

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nfive/server/internal/config"
	"github.com/nfive/server/internal/controller"
	"github.com/nfive/server/internal/core"
	"github.com/nfive/server/internal/events"
	"github.com/nfive/server/internal/host"
	"github.com/nfive/server/internal/lockfile"
	"github.com/nfive/server/internal/logging"
	"github.com/nfive/server/internal/migration"
	"github.com/nfive/server/internal/observability"
	"github.com/nfive/server/internal/plugin"
	"github.com/nfive/server/internal/reload"
	"github.com/nfive/server/internal/rpc"
	"github.com/nfive/server/pkg/errutil"
	"github.com/nfive/server/pkg/sdk"
)

var tracer = otel.Tracer("nfive/boot")

// EngineFactory returns the migration engine once a plugin first needs
// one. It sees the registry after core controllers are constructed.
type EngineFactory func(registry *controller.Registry) (migration.Engine, error)

// Deps holds the Sequencer's collaborators. Only Host is required.
type Deps struct {
	Host host.Host
	// Logger defaults to slog.Default().
	Logger *slog.Logger
	// LogLevel, when set, receives the configured log level.
	LogLevel *slog.LevelVar
	// Opener defaults to plugin.NativeOpener.
	Opener plugin.Opener
	// Engine defaults to a SQL engine on the core database controller's URL.
	Engine EngineFactory
	// Events defaults to a new bus.
	Events *events.Bus
	// Metrics may be nil.
	Metrics *observability.Metrics
	// CoreControllers defaults to core.Controllers().
	CoreControllers []sdk.ControllerConstructor
	// ConfigOptions are passed to config.LoadCore.
	ConfigOptions []config.LoadOption
}

// Sequencer boots the server once.
type Sequencer struct {
	deps     Deps
	logger   *slog.Logger
	state    atomic.Int32
	id       ulid.ULID
	registry *controller.Registry

	mu     sync.RWMutex
	bus    *events.Bus
	cfg    *config.Core
	loaded []string
}

// New creates a sequencer in state Uninitialized.
func New(deps Deps) *Sequencer {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Opener == nil {
		deps.Opener = plugin.NativeOpener{}
	}
	if deps.Engine == nil {
		deps.Engine = DatabaseEngine
	}
	if deps.CoreControllers == nil {
		deps.CoreControllers = core.Controllers()
	}
	s := &Sequencer{
		deps:     deps,
		id:       ulid.Make(),
		registry: controller.NewRegistry(),
	}
	s.logger = deps.Logger.With("boot_id", s.id.String())
	return s
}

// ID identifies this boot in logs.
func (s *Sequencer) ID() ulid.ULID { return s.id }

// State returns the current state.
func (s *Sequencer) State() State { return State(s.state.Load()) }

// Ready reports whether boot completed.
func (s *Sequencer) Ready() bool { return s.State() == StateReady }

// Registry returns the controller registry.
func (s *Sequencer) Registry() *controller.Registry { return s.registry }

// Events returns the event bus, or nil before boot has created it.
func (s *Sequencer) Events() *events.Bus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bus
}

// Config returns the loaded core configuration, or nil before it is loaded.
func (s *Sequencer) Config() *config.Core {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Plugins returns the full names of plugins loaded so far, in load order.
func (s *Sequencer) Plugins() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.loaded...)
}

// Boot runs the start-up sequence. It may be called once; any failure
// leaves the sequencer Failed with everything registered so far intact.
func (s *Sequencer) Boot(ctx context.Context) error {
	if !s.state.CompareAndSwap(int32(StateUninitialized), int32(StateBooting)) {
		return oops.Code("BOOT_ALREADY_STARTED").
			With("state", s.State().String()).
			Errorf("boot already started")
	}
	s.deps.Metrics.StateChanged(StateBooting.String(), stateNames)
	start := time.Now()

	ctx, span := tracer.Start(ctx, "boot",
		trace.WithAttributes(attribute.String("boot.id", s.id.String())),
	)
	defer span.End()

	if err := s.boot(ctx); err != nil {
		s.setState(StateFailed)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		errutil.LogError(s.logger, "boot failed", err)
		return err
	}

	s.deps.Metrics.BootFinished(time.Since(start))
	s.setState(StateReady)
	return nil
}

func (s *Sequencer) setState(state State) {
	s.state.Store(int32(state))
	s.deps.Metrics.StateChanged(state.String(), stateNames)
}

func (s *Sequencer) boot(ctx context.Context) error {
	root, err := s.deps.Host.ResourceRoot()
	if err != nil {
		return oops.Code("RESOURCE_ROOT_UNAVAILABLE").Wrap(err)
	}

	cfg, err := config.LoadCore(filepath.Join(root, config.CoreFile), s.deps.ConfigOptions...)
	if err != nil {
		return err
	}
	if s.deps.LogLevel != nil {
		s.deps.LogLevel.Set(cfg.SlogLevel())
	}
	s.deps.Host.SetMapName(cfg.Display.Map)
	s.deps.Host.SetGameType(cfg.Display.Map)

	substrate := rpc.Configure(s.deps.Host.Handlers())
	bus := s.deps.Events
	if bus == nil {
		bus = events.NewBus(events.WithLogger(s.logger))
	}
	s.mu.Lock()
	s.cfg = cfg
	s.bus = bus
	s.mu.Unlock()

	binder := config.NewBinder(root, config.WithBinderLogger(s.logger))

	reloader := reload.New(reload.Deps{
		Registry: s.registry,
		Binder:   binder,
		Ready:    s.Ready,
		Logger:   logging.Namespace(s.logger, "Reload"),
		Metrics:  s.deps.Metrics,
	})
	substrate.NewHandler().Event(reload.Event).OnRaw(reloader.Handle)

	factory := controller.NewFactory(controller.Deps{
		Logger:   s.logger,
		Events:   bus,
		NewRPC:   func() sdk.RPC { return substrate.NewHandler() },
		Binder:   binder,
		Registry: s.registry,
	})
	for _, ctor := range s.deps.CoreControllers {
		if _, err := factory.Construct(sdk.CoreName, ctor); err != nil {
			return err
		}
		s.deps.Metrics.ControllerConstructed(sdk.CoreName.String())
	}

	defs, err := lockfile.Load(filepath.Join(root, lockfile.FileName))
	if err != nil {
		return err
	}

	gate := migration.NewGate(&lazyEngine{factory: s.deps.Engine, registry: s.registry},
		cfg.AutomaticMigrations, migration.WithLogger(s.logger))
	loader := plugin.NewLoader(filepath.Join(root, plugin.Dir), s.deps.Opener, plugin.WithLogger(s.logger))

	for _, def := range defs {
		if err := s.bootPlugin(ctx, def, loader, gate, factory); err != nil {
			return err
		}
	}

	bus.Raise(events.ServerInitialized)

	s.logger.Info("server initialized",
		"plugins", len(defs),
		"controllers", s.registry.Count(),
	)
	return nil
}

func (s *Sequencer) bootPlugin(
	ctx context.Context,
	def lockfile.Definition,
	loader *plugin.Loader,
	gate *migration.Gate,
	factory *controller.Factory,
) (err error) {
	ctx, span := tracer.Start(ctx, "boot.plugin",
		trace.WithAttributes(attribute.String("plugin", def.FullName())),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	s.logger.InfoContext(ctx, "loading plugin", "plugin", def.FullName())

	if err := loader.LoadIncludes(ctx, def); err != nil {
		return err
	}
	for _, name := range def.Main {
		if err := s.bootMain(ctx, def, name, loader, gate, factory); err != nil {
			return err
		}
	}

	s.mu.Lock()
	s.loaded = append(s.loaded, def.FullName())
	s.mu.Unlock()
	s.deps.Metrics.PluginLoaded()
	return nil
}

// bootMain loads one main module, gates its migrations and constructs its
// controllers before the next main is opened.
func (s *Sequencer) bootMain(
	ctx context.Context,
	def lockfile.Definition,
	name string,
	loader *plugin.Loader,
	gate *migration.Gate,
	factory *controller.Factory,
) error {
	mod, err := loader.LoadMain(ctx, def, name)
	if err != nil {
		return err
	}
	c := plugin.ClassifyWithLogger(mod.Exports, s.logger)

	applied, err := gate.Apply(ctx, def, c.Migrations)
	s.deps.Metrics.MigrationApplied(def.Name.String(), applied)
	if err != nil {
		return err
	}

	n, err := factory.ConstructAll(def.Name, c.Controllers)
	for range n {
		s.deps.Metrics.ControllerConstructed(def.Name.String())
	}
	return err
}

// databaseURLer is implemented by the core database controller.
type databaseURLer interface {
	DatabaseURL() string
}

// DatabaseEngine builds a SQL migration engine on the URL of the core
// database controller.
func DatabaseEngine(registry *controller.Registry) (migration.Engine, error) {
	insts, _ := registry.Get(sdk.CoreName)
	for _, inst := range insts {
		if db, ok := inst.Controller.(databaseURLer); ok {
			return migration.NewSQLEngine(db.DatabaseURL()), nil
		}
	}
	return nil, oops.Code("MIGRATION_OPEN_FAILED").Errorf("no core database controller registered")
}

// lazyEngine defers building the engine until a plugin has migrations.
type lazyEngine struct {
	factory  EngineFactory
	registry *controller.Registry

	once   sync.Once
	engine migration.Engine
	err    error
}

func (l *lazyEngine) Open(p sdk.Name, src sdk.MigrationSource) (migration.Migrator, error) {
	l.once.Do(func() {
		l.engine, l.err = l.factory(l.registry)
	})
	if l.err != nil {
		return nil, l.err
	}
	return l.engine.Open(p, src)
}
