// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NFive Contributors

// Package core holds the controllers the server itself provides. They are
// registered under sdk.CoreName before any plugin loads.
package core

import (
	"context"
	"errors"
	"net/url"
	"sync"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"

	"github.com/nfive/server/pkg/sdk"
)

// DatabaseConfiguration is read from database.yml under the resource root.
type DatabaseConfiguration struct {
	Connection ConnectionConfig `yaml:"connection"`
}

// ConnectionConfig describes the PostgreSQL connection.
type ConnectionConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

// ConfigFile implements sdk.ConfigFiler.
func (DatabaseConfiguration) ConfigFile() string { return "database" }

// DefaultDatabaseConfiguration returns the configuration written when
// database.yml does not exist.
func DefaultDatabaseConfiguration() DatabaseConfiguration {
	return DatabaseConfiguration{
		Connection: ConnectionConfig{
			URL:      "postgres://localhost:5432/nfive",
			MaxConns: 10,
		},
	}
}

// Pool is the subset of *pgxpool.Pool the controller uses.
type Pool interface {
	Ping(ctx context.Context) error
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// newPool opens a pool without dialing; pgxpool connects on first use.
var newPool = func(ctx context.Context, cfg ConnectionConfig) (Pool, error) {
	pc, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, err
	}
	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	return pgxpool.NewWithConfig(ctx, pc)
}

// DatabaseController owns the server's PostgreSQL pool.
type DatabaseController struct {
	*sdk.ConfigurableBase[DatabaseConfiguration]

	mu   sync.RWMutex
	pool Pool
}

// Database is the constructor of the core database controller.
func Database() sdk.ControllerConstructor {
	return sdk.Configurable("Database", NewDatabaseController).
		WithDefaults(DefaultDatabaseConfiguration)
}

// Controllers returns the core controller constructors in construction order.
func Controllers() []sdk.ControllerConstructor {
	return []sdk.ControllerConstructor{Database()}
}

// NewDatabaseController opens the pool described by cfg.
func NewDatabaseController(deps sdk.Deps, cfg DatabaseConfiguration) (sdk.ConfigurableController[DatabaseConfiguration], error) {
	pool, err := newPool(context.Background(), cfg.Connection)
	if err != nil {
		return nil, oops.Code("DATABASE_CONFIG_INVALID").
			With("url", redact(cfg.Connection.URL)).
			Wrap(err)
	}
	c := &DatabaseController{
		ConfigurableBase: sdk.NewConfigurableBase(deps, cfg),
		pool:             pool,
	}
	if deps.Logger != nil {
		deps.Logger.Info("database pool ready",
			"url", redact(cfg.Connection.URL),
			"max_conns", cfg.Connection.MaxConns,
		)
	}
	return c, nil
}

// DatabaseURL returns the configured connection URL.
func (c *DatabaseController) DatabaseURL() string {
	return c.Configuration().Connection.URL
}

// Pool returns the current pool.
func (c *DatabaseController) Pool() Pool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pool
}

// ReloadConfig reopens the pool when the connection settings change.
func (c *DatabaseController) ReloadConfig(ctx context.Context, cfg DatabaseConfiguration) error {
	if cfg.Connection != c.Configuration().Connection {
		pool, err := newPool(ctx, cfg.Connection)
		if err != nil {
			return oops.Code("DATABASE_CONFIG_INVALID").
				With("url", redact(cfg.Connection.URL)).
				Wrap(err)
		}
		c.mu.Lock()
		old := c.pool
		c.pool = pool
		c.mu.Unlock()
		if old != nil {
			old.Close()
		}
		if c.Logger != nil {
			c.Logger.Info("database pool replaced", "url", redact(cfg.Connection.URL))
		}
	}
	return c.ConfigurableBase.ReloadConfig(ctx, cfg)
}

// Name identifies the controller to health checks.
func (c *DatabaseController) Name() string { return "database" }

// Check pings the database.
func (c *DatabaseController) Check(ctx context.Context) error {
	_, err := c.Ping(ctx)
	return err
}

// Ping verifies connectivity and returns the server version string.
func (c *DatabaseController) Ping(ctx context.Context) (string, error) {
	pool := c.Pool()
	if pool == nil {
		return "", oops.Code("DATABASE_CLOSED").Errorf("database pool is closed")
	}
	if err := pool.Ping(ctx); err != nil {
		return "", classify(err)
	}
	var version string
	if err := pool.QueryRow(ctx, "SHOW server_version").Scan(&version); err != nil {
		return "", classify(err)
	}
	return version, nil
}

// Close releases the pool.
func (c *DatabaseController) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pool != nil {
		c.pool.Close()
		c.pool = nil
	}
}

func classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgerrcode.IsConnectionException(pgErr.Code):
			return oops.Code("DATABASE_UNAVAILABLE").With("sqlstate", pgErr.Code).Wrap(err)
		case pgerrcode.IsInvalidAuthorizationSpecification(pgErr.Code):
			return oops.Code("DATABASE_AUTH_FAILED").With("sqlstate", pgErr.Code).Wrap(err)
		}
		return oops.Code("DATABASE_PING_FAILED").With("sqlstate", pgErr.Code).Wrap(err)
	}
	return oops.Code("DATABASE_UNAVAILABLE").Wrap(err)
}

// redact hides the password of a connection URL for logging.
func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<unparseable>"
	}
	return u.Redacted()
}
