//go:build integration

package testdb

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/forgeline/genrelay/internal/domain"
	"github.com/forgeline/genrelay/internal/platform/postgres"
	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver
	"github.com/stretchr/testify/require"
)

// TestTimeout bounds connection and migration work.
const TestTimeout = 30 * time.Second

// GetTestDatabaseURL returns the first non-empty of GENRELAY_TEST_DATABASE_URL
// and DATABASE_URL.
func GetTestDatabaseURL() string {
	if url := os.Getenv("GENRELAY_TEST_DATABASE_URL"); url != "" {
		return url
	}
	return os.Getenv("DATABASE_URL")
}

// GetTestDBWithT opens the test database, applies migrations and closes the
// connection when the test ends.
func GetTestDBWithT(t *testing.T) *sql.DB {
	t.Helper()

	dbURL := GetTestDatabaseURL()
	if dbURL == "" {
		t.Skip("GENRELAY_TEST_DATABASE_URL or DATABASE_URL not set - skipping integration test")
	}

	db, err := sql.Open("pgx", dbURL)
	require.NoError(t, err, "Failed to open database connection")
	db.SetMaxOpenConns(20)

	ctx, cancel := context.WithTimeout(context.Background(), TestTimeout)
	defer cancel()
	require.NoError(t, db.PingContext(ctx), "Database ping failed")
	require.NoError(t, postgres.Migrate(ctx, db, "up"), "Failed to run migrations")

	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Logf("Warning: failed to close database connection: %v", err)
		}
	})
	return db
}

// WithTx runs fn inside a transaction that is always rolled back.
func WithTx(t *testing.T, db *sql.DB, fn func(t *testing.T, tx *sql.Tx)) {
	t.Helper()

	tx, err := db.Begin()
	require.NoError(t, err, "Failed to begin transaction")
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			t.Logf("Warning: failed to rollback transaction: %v", err)
		}
	}()

	fn(t, tx)
}

// CreateTenant inserts a committed tenant and deletes it, with everything it
// owns, when the test ends.
func CreateTenant(t *testing.T, db *sql.DB) *domain.Tenant {
	t.Helper()

	tenant, err := domain.NewTenant("it-" + t.Name() + "-" + time.Now().Format(time.RFC3339Nano))
	require.NoError(t, err)

	tenants := postgres.NewPostgresTenantStore(db, nil)
	require.NoError(t, tenants.Create(context.Background(), tenant))

	t.Cleanup(func() {
		_ = tenants.Delete(context.Background(), tenant.ID)
	})
	return tenant
}
