// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NFive Contributors

package boot_test

import (
	"context"
	"os"
	"path/filepath"
	"testing/fstest"

	"github.com/nfive/server/internal/boot"
	"github.com/nfive/server/internal/controller"
	"github.com/nfive/server/internal/events"
	"github.com/nfive/server/internal/host"
	"github.com/nfive/server/internal/migration"
	"github.com/nfive/server/internal/migration/migrationtest"
	"github.com/nfive/server/internal/plugin"
	"github.com/nfive/server/pkg/sdk"
)

var (
	bankName = sdk.MustParseName("acme/bank")
	chatName = sdk.MustParseName("acme/chat")
	jobsName = sdk.MustParseName("acme/jobs")
)

type BankConfig struct {
	Currency string `yaml:"currency"`
}

type bankController struct {
	*sdk.ConfigurableBase[BankConfig]
	reloads int
}

func (b *bankController) ReloadConfig(ctx context.Context, cfg BankConfig) error {
	b.reloads++
	return b.ConfigurableBase.ReloadConfig(ctx, cfg)
}

type ledger struct {
	sdk.Base
	reloads int
}

func (l *ledger) Reload(context.Context) error {
	l.reloads++
	return nil
}

type coreService struct {
	sdk.Base
}

func coreCtor() sdk.ControllerConstructor {
	return sdk.Plain("Clock", func(deps sdk.Deps) (sdk.Controller, error) {
		return &coreService{Base: sdk.NewBase(deps)}, nil
	})
}

func ledgerCtor() sdk.ControllerConstructor {
	return sdk.Plain("Ledger", func(deps sdk.Deps) (sdk.Controller, error) {
		return &ledger{Base: sdk.NewBase(deps)}, nil
	})
}

func bankCtor() sdk.ControllerConstructor {
	return sdk.Configurable("Bank", func(deps sdk.Deps, cfg BankConfig) (sdk.ConfigurableController[BankConfig], error) {
		return &bankController{ConfigurableBase: sdk.NewConfigurableBase(deps, cfg)}, nil
	}).WithDefaults(func() BankConfig { return BankConfig{Currency: "USD"} })
}

func accounts() sdk.MigrationSource {
	return sdk.Migrations("accounts", fstest.MapFS{
		"sql/1_create_accounts.up.sql": {Data: []byte("CREATE TABLE accounts (id int);")},
	}, "sql")
}

// countingOpener records which modules were opened.
type countingOpener struct {
	plugin.StaticOpener
	opened []plugin.ModuleRef
}

func (o *countingOpener) Open(ref plugin.ModuleRef) (*sdk.Module, error) {
	o.opened = append(o.opened, ref)
	return o.StaticOpener.Open(ref)
}

func (o *countingOpener) openedPlugin(name sdk.Name) bool {
	for _, ref := range o.opened {
		if ref.Plugin == name {
			return true
		}
	}
	return false
}

type fixture struct {
	root   string
	host   *host.Local
	bus    *events.Bus
	table  *sdk.Table
	opener *countingOpener
	engine *migrationtest.MemoryEngine
}

func newFixture(root string) *fixture {
	table := sdk.NewTable()
	return &fixture{
		root:   root,
		host:   host.NewLocal(root),
		bus:    events.NewBus(),
		table:  table,
		opener: &countingOpener{StaticOpener: plugin.StaticOpener{Table: table}},
		engine: migrationtest.NewMemoryEngine(),
	}
}

func (f *fixture) write(name, content string) {
	path := filepath.Join(f.root, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		panic(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		panic(err)
	}
}

func (f *fixture) sequencer() *boot.Sequencer {
	return boot.New(boot.Deps{
		Host:            f.host,
		Opener:          f.opener,
		Events:          f.bus,
		CoreControllers: []sdk.ControllerConstructor{coreCtor()},
		Engine: func(*controller.Registry) (migration.Engine, error) {
			return f.engine, nil
		},
	})
}

const bankLock = `plugins:
  - name: acme/bank
    version: 1.0.0
    server:
      include: [shared]
      main: [bank]
`
