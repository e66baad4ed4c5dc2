package datastore

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/metagraph/pkg/metamodel"
)

func mockOpener(t *testing.T) (Opener, sqlmock.Sqlmock, *int) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	opened := 0
	return func(driver, dsn string) (*sql.DB, error) {
		opened++
		return db, nil
	}, mock, &opened
}

func TestRegistry_Get(t *testing.T) {
	r, err := NewRegistry([]Spec{{Name: "reporting", Driver: "sqlite3", DSN: "file::memory:"}})
	require.NoError(t, err)

	for _, name := range []string{metamodel.StoreMain, metamodel.StoreUndefined, metamodel.StoreNoop, "reporting"} {
		t.Run(name, func(t *testing.T) {
			s, err := r.Get(name)
			require.NoError(t, err)
			assert.Equal(t, name, s.Name())
		})
	}

	_, err = r.Get("archive")
	assert.ErrorIs(t, err, metamodel.ErrUnknownStore)
}

func TestNewRegistry_Rejects(t *testing.T) {
	_, err := NewRegistry([]Spec{{Name: metamodel.StoreMain, Driver: "pgx", DSN: "x"}})
	assert.Error(t, err)

	_, err = NewRegistry([]Spec{{Name: "a", Driver: "pgx", DSN: "x"}, {Name: "a", Driver: "pgx", DSN: "y"}})
	assert.Error(t, err)
}

func TestSQLStore(t *testing.T) {
	ctx := context.Background()

	t.Run("opens lazily and once", func(t *testing.T) {
		opener, mock, opened := mockOpener(t)
		r, err := NewRegistry([]Spec{{Name: "reporting", Driver: "sqlite3", DSN: "x"}}, WithOpener(opener))
		require.NoError(t, err)
		assert.Equal(t, 0, *opened)

		mock.ExpectPing()
		mock.ExpectPing()
		store := r.SQLStores()[0]
		require.NoError(t, store.Ping(ctx))
		require.NoError(t, store.Ping(ctx))
		assert.Equal(t, 1, *opened)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("ping all reports failures", func(t *testing.T) {
		opener, mock, _ := mockOpener(t)
		r, err := NewRegistry([]Spec{{Name: "reporting", Driver: "pgx", DSN: "x"}}, WithOpener(opener))
		require.NoError(t, err)

		mock.ExpectPing().WillReturnError(&pgconn.PgError{Code: "28P01", Message: "password authentication failed"})
		failures := r.PingAll(ctx)
		require.Len(t, failures, 1)
		assert.ErrorIs(t, failures["reporting"], ErrAuthentication)
	})

	t.Run("sqlite server version", func(t *testing.T) {
		opener, mock, _ := mockOpener(t)
		r, err := NewRegistry([]Spec{{Name: "local", Driver: "sqlite3", DSN: "x"}}, WithOpener(opener))
		require.NoError(t, err)

		mock.ExpectQuery(`SELECT sqlite_version\(\)`).
			WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow("3.45.1"))
		version, err := r.SQLStores()[0].ServerVersion(ctx)
		require.NoError(t, err)
		assert.Equal(t, "3.45.1", version)
	})

	t.Run("postgres table lookup", func(t *testing.T) {
		opener, mock, _ := mockOpener(t)
		r, err := NewRegistry([]Spec{{Name: "pg", Driver: "postgres", DSN: "x"}}, WithOpener(opener))
		require.NoError(t, err)

		mock.ExpectQuery(`SELECT COUNT\(\*\) FROM information_schema.tables`).
			WithArgs("sales_order").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
		ok, err := r.SQLStores()[0].TableExists(ctx, "sales_order")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("open failure", func(t *testing.T) {
		r, err := NewRegistry([]Spec{{Name: "broken", Driver: "pgx", DSN: "x"}},
			WithOpener(func(string, string) (*sql.DB, error) { return nil, errors.New("boom") }))
		require.NoError(t, err)
		assert.Error(t, r.SQLStores()[0].Ping(ctx))
	})

	t.Run("close resets the handle", func(t *testing.T) {
		opener, _, opened := mockOpener(t)
		r, err := NewRegistry([]Spec{{Name: "reporting", Driver: "sqlite3", DSN: "x"}}, WithOpener(opener))
		require.NoError(t, err)

		store := r.SQLStores()[0]
		_, err = store.DB()
		require.NoError(t, err)
		require.NoError(t, r.Close())

		_, err = store.DB()
		require.NoError(t, err)
		assert.Equal(t, 2, *opened)
	})
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"pgx auth", &pgconn.PgError{Code: "28P01"}, ErrAuthentication},
		{"pq missing database", &pq.Error{Code: "3D000"}, ErrUnknownDatabase},
		{"pq unavailable", &pq.Error{Code: "57P03"}, ErrUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, classify(tt.err), tt.want)
		})
	}

	plain := errors.New("plain")
	assert.Same(t, plain, classify(plain))
}

func TestTableName(t *testing.T) {
	tests := []struct {
		class string
		want  string
	}{
		{"sales_Order", "sales_order"},
		{"sales_DailyTotal", "sales_daily_total"},
		{"sales.OrderLine", "sales_order_line"},
		{"HTTPRequest", "http_request"},
		{"Base", "base"},
		{"audit_log", "audit_log"},
	}
	for _, tt := range tests {
		if got := TableName(tt.class); got != tt.want {
			t.Errorf("TableName(%q) = %q, want %q", tt.class, got, tt.want)
		}
	}
}
