// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NFive Contributors

package migration

import (
	"errors"
	"net/url"
	"regexp"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	// Register pgx/v5 database driver for golang-migrate.
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/samber/oops"

	"github.com/nfive/server/pkg/sdk"
)

// TablePrefix prefixes every per-model migration history table.
const TablePrefix = "nfive_migrations"

// migrateIface abstracts golang-migrate so migrators can be tested without
// a database.
type migrateIface interface {
	Up() error
	Version() (version uint, dirty bool, err error)
	Close() (source error, database error)
}

// SQLEngine runs plugin migrations against PostgreSQL with golang-migrate.
// Each plugin model keeps its own history table.
type SQLEngine struct {
	url string
}

// NewSQLEngine creates an engine for the database at databaseURL. Both
// postgres:// and pgx5:// schemes are accepted.
func NewSQLEngine(databaseURL string) *SQLEngine {
	return &SQLEngine{url: databaseURL}
}

// HistoryTable returns the history table used for a plugin model.
func HistoryTable(plugin sdk.Name, model string) string {
	parts := []string{TablePrefix, plugin.Vendor, plugin.Project, model}
	for i, p := range parts {
		parts[i] = nonIdent.ReplaceAllString(strings.ToLower(p), "_")
	}
	return strings.Join(parts, "_")
}

var nonIdent = regexp.MustCompile(`[^a-z0-9_]+`)

// Open implements Engine.
func (e *SQLEngine) Open(plugin sdk.Name, src sdk.MigrationSource) (Migrator, error) {
	errb := oops.Code("MIGRATION_OPEN_FAILED").
		With("plugin", plugin.String()).
		With("model", src.Model())

	fsys, dir := src.Migrations()
	drv, err := iofs.New(fsys, dir)
	if err != nil {
		return nil, errb.With("operation", "create migration source").Wrap(err)
	}

	migrateURL, err := databaseURL(e.url, HistoryTable(plugin, src.Model()))
	if err != nil {
		_ = drv.Close() //nolint:errcheck // init error takes precedence
		return nil, errb.With("operation", "parse database url").Wrap(err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", drv, migrateURL)
	if err != nil {
		_ = drv.Close() //nolint:errcheck // init error takes precedence
		return nil, errb.With("operation", "initialize migrator").Wrap(err)
	}
	return &sqlMigrator{m: m, src: drv}, nil
}

// databaseURL converts postgres:// URLs to the pgx5:// scheme the driver
// expects and selects the history table.
func databaseURL(raw, table string) (string, error) {
	if rest, found := strings.CutPrefix(raw, "postgres://"); found {
		raw = "pgx5://" + rest
	} else if rest, found := strings.CutPrefix(raw, "postgresql://"); found {
		raw = "pgx5://" + rest
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("x-migrations-table", table)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

type sqlMigrator struct {
	m   migrateIface
	src source.Driver
}

func (s *sqlMigrator) Pending() ([]string, error) {
	version, dirty, err := s.m.Version()
	applied := true
	if errors.Is(err, migrate.ErrNilVersion) {
		applied, err = false, nil
	}
	if err != nil {
		return nil, oops.Code("MIGRATION_VERSION_FAILED").Wrap(err)
	}
	if dirty {
		return nil, oops.Code("MIGRATION_DIRTY").
			With("version", version).
			Errorf("database is dirty at version %d", version)
	}

	steps, err := listSteps(s.src)
	if err != nil {
		return nil, err
	}
	return StepsAfter(steps, version, applied), nil
}

func (s *sqlMigrator) Up() error {
	if err := s.m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return oops.Code("MIGRATION_UP_FAILED").Wrap(err)
	}
	return nil
}

func (s *sqlMigrator) Close() error {
	srcErr, dbErr := s.m.Close()
	if srcErr != nil && dbErr != nil {
		return oops.Code("MIGRATION_CLOSE_FAILED").
			With("component", "both").
			Errorf("source: %v; database: %v", srcErr, dbErr)
	}
	if srcErr != nil {
		return oops.Code("MIGRATION_CLOSE_FAILED").With("component", "source").Wrap(srcErr)
	}
	if dbErr != nil {
		return oops.Code("MIGRATION_CLOSE_FAILED").With("component", "database").Wrap(dbErr)
	}
	return nil
}
