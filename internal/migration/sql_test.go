// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NFive Contributors

package migration

import (
	"errors"
	"net/url"
	"testing"
	"testing/fstest"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfive/server/pkg/errutil"
	"github.com/nfive/server/pkg/sdk"
)

type mockMigrate struct {
	version    uint
	dirty      bool
	versionErr error
	upErr      error
	upCalls    int
}

func (m *mockMigrate) Up() error {
	m.upCalls++
	return m.upErr
}

func (m *mockMigrate) Version() (uint, bool, error) {
	return m.version, m.dirty, m.versionErr
}

func (m *mockMigrate) Close() (error, error) { return nil, nil }

func testSource(t *testing.T) *sqlMigrator {
	t.Helper()
	drv, err := iofs.New(fstest.MapFS{
		"sql/1_init.up.sql":      {Data: []byte("SELECT 1;")},
		"sql/2_more.up.sql":      {Data: []byte("SELECT 2;")},
		"sql/10_latest.up.sql":   {Data: []byte("SELECT 10;")},
		"sql/10_latest.down.sql": {Data: []byte("SELECT 0;")},
	}, "sql")
	require.NoError(t, err)
	t.Cleanup(func() { _ = drv.Close() })
	return &sqlMigrator{src: drv}
}

func TestSQLMigrator_PendingFromNilVersion(t *testing.T) {
	s := testSource(t)
	s.m = &mockMigrate{versionErr: migrate.ErrNilVersion}

	pending, err := s.Pending()
	require.NoError(t, err)
	assert.Equal(t, []string{"1_init", "2_more", "10_latest"}, pending)
}

func TestSQLMigrator_PendingAfterVersion(t *testing.T) {
	s := testSource(t)
	s.m = &mockMigrate{version: 2}

	pending, err := s.Pending()
	require.NoError(t, err)
	assert.Equal(t, []string{"10_latest"}, pending)
}

func TestSQLMigrator_Dirty(t *testing.T) {
	s := testSource(t)
	s.m = &mockMigrate{version: 2, dirty: true}

	_, err := s.Pending()
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "MIGRATION_DIRTY")
}

func TestSQLMigrator_VersionError(t *testing.T) {
	s := testSource(t)
	s.m = &mockMigrate{versionErr: errors.New("connection reset")}

	_, err := s.Pending()
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "MIGRATION_VERSION_FAILED")
}

func TestSQLMigrator_UpNoChangeIsSuccess(t *testing.T) {
	mock := &mockMigrate{upErr: migrate.ErrNoChange}
	s := &sqlMigrator{m: mock}

	require.NoError(t, s.Up())
	assert.Equal(t, 1, mock.upCalls)
}

func TestSQLMigrator_UpFailure(t *testing.T) {
	s := &sqlMigrator{m: &mockMigrate{upErr: errors.New("syntax error")}}

	err := s.Up()
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "MIGRATION_UP_FAILED")
}

func TestHistoryTable(t *testing.T) {
	got := HistoryTable(sdk.MustParseName("Acme-Corp/Bank"), "Accounts v2")
	assert.Equal(t, "nfive_migrations_acme_corp_bank_accounts_v2", got)
}

func TestDatabaseURL(t *testing.T) {
	for _, raw := range []string{
		"postgres://u:p@localhost:5432/nfive?sslmode=disable",
		"postgresql://u:p@localhost:5432/nfive?sslmode=disable",
		"pgx5://u:p@localhost:5432/nfive?sslmode=disable",
	} {
		got, err := databaseURL(raw, "nfive_migrations_acme_bank_accounts")
		require.NoError(t, err)

		u, err := url.Parse(got)
		require.NoError(t, err)
		assert.Equal(t, "pgx5", u.Scheme)
		assert.Equal(t, "nfive_migrations_acme_bank_accounts", u.Query().Get("x-migrations-table"))
		assert.Equal(t, "disable", u.Query().Get("sslmode"))
	}
}

func TestSQLEngine_OpenInvalidURL(t *testing.T) {
	engine := NewSQLEngine("badscheme://localhost:5432/nfive")
	src := sdk.Migrations("accounts", fstest.MapFS{
		"sql/1_init.up.sql": {Data: []byte("SELECT 1;")},
	}, "sql")

	_, err := engine.Open(sdk.MustParseName("acme/bank"), src)
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "MIGRATION_OPEN_FAILED")
	errutil.AssertErrorContext(t, err, "operation", "initialize migrator")
}
