package database

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func TestMigrateDB_Success(t *testing.T) {
	db, mock := newMockDB(t)

	orig := gooseUpContext
	var gotDir string
	gooseUpContext = func(ctx context.Context, gotDB *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		gotDir = dir
		assert.Same(t, db, gotDB)
		return nil
	}
	defer func() { gooseUpContext = orig }()

	err := migrateDB(context.Background(), db)
	require.NoError(t, err)
	assert.Equal(t, ".", gotDir)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrateDB_Error(t *testing.T) {
	db, _ := newMockDB(t)

	orig := gooseUpContext
	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		return errors.New("boom")
	}
	defer func() { gooseUpContext = orig }()

	err := migrateDB(context.Background(), db)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "apply migrations")
}

func TestMigrate_BadDSN(t *testing.T) {
	orig := gooseUpContext
	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		t.Fatal("migrations must not run with an unparseable DSN")
		return nil
	}
	defer func() { gooseUpContext = orig }()

	err := Migrate(context.Background(), "postgres://bad dsn with spaces")
	assert.Error(t, err)
}
