// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NFive Contributors

// Package greeter is a sample plugin. It shows the three kinds of export a
// plugin module makes: a plain controller, a configurable controller and an
// embedded migration source.
//
// Build it as a loadable module with
//
//	go build -buildmode=plugin -o plugins/nfive/greeter/greeter.main.so ./plugins/greeter/plugin
//
// or link it into the server binary by importing this package, which
// registers the module with sdk.Register.
package greeter

import (
	"context"
	"embed"
	"log/slog"
	"sync"

	"github.com/nfive/server/pkg/sdk"
)

// Name is the plugin name used in nfive.lock.
var Name = sdk.MustParseName("nfive/greeter")

// ModuleName is the main module name used in nfive.lock.
const ModuleName = "greeter"

//go:embed sql/*.sql
var migrations embed.FS

func init() {
	sdk.Register(Name, NewModule())
}

// NewModule returns the module manifest.
func NewModule() *sdk.Module {
	m := sdk.NewModule(ModuleName,
		sdk.Migrations("greetings", migrations, "sql"),
		sdk.Plain("Announcer", NewAnnouncer),
		sdk.Configurable("Motd", NewMotd).WithDefaults(DefaultMotdConfiguration),
	)
	m.Requires = "^1.0"
	return m
}

// MotdConfiguration is bound from config/nfive/greeter/motd.yml.
type MotdConfiguration struct {
	Message string `yaml:"message"`
	Enabled bool   `yaml:"enabled"`
}

// ConfigFile names the configuration file.
func (MotdConfiguration) ConfigFile() string { return "motd" }

// DefaultMotdConfiguration is written when no file exists yet.
func DefaultMotdConfiguration() MotdConfiguration {
	return MotdConfiguration{Message: "Welcome to the server", Enabled: true}
}

// Motd holds the message of the day.
type Motd struct {
	*sdk.ConfigurableBase[MotdConfiguration]
}

// NewMotd constructs the Motd controller.
func NewMotd(deps sdk.Deps, cfg MotdConfiguration) (sdk.ConfigurableController[MotdConfiguration], error) {
	return &Motd{ConfigurableBase: sdk.NewConfigurableBase(deps, cfg)}, nil
}

// Message returns the current message, or "" when disabled.
func (m *Motd) Message() string {
	cfg := m.Configuration()
	if !cfg.Enabled {
		return ""
	}
	return cfg.Message
}

// ReloadConfig swaps in cfg.
func (m *Motd) ReloadConfig(ctx context.Context, cfg MotdConfiguration) error {
	m.Logger.Info("message of the day changed", "enabled", cfg.Enabled)
	return m.ConfigurableBase.ReloadConfig(ctx, cfg)
}

// Announcer logs once the server finishes booting.
type Announcer struct {
	sdk.Base

	events    sdk.EventBus
	ch        <-chan sdk.Event
	mu        sync.Mutex
	announced int
	done      chan struct{}
	closeOnce sync.Once
}

// NewAnnouncer constructs the Announcer and subscribes it to the bus.
func NewAnnouncer(deps sdk.Deps) (sdk.Controller, error) {
	a := &Announcer{Base: sdk.NewBase(deps), events: deps.Events, done: make(chan struct{})}
	a.ch = deps.Events.Subscribe(sdk.ServerInitialized)
	go a.watch(a.ch)
	return a, nil
}

// Close unsubscribes from the bus and waits for the watcher to exit.
func (a *Announcer) Close() {
	a.closeOnce.Do(func() {
		a.events.Unsubscribe(sdk.ServerInitialized, a.ch)
	})
	<-a.done
}

func (a *Announcer) watch(ch <-chan sdk.Event) {
	defer close(a.done)
	for ev := range ch {
		a.mu.Lock()
		a.announced++
		a.mu.Unlock()
		a.Logger.Info("server initialized", slog.String("event_id", ev.ID))
	}
}

// Announced returns how many initialization events were seen.
func (a *Announcer) Announced() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.announced
}
