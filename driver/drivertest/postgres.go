package drivertest

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"goflare.io/storecredit/driver"
)

// PostgresURLEnv names the database used by repository tests. Tables a
// test asks for are truncated before use.
const PostgresURLEnv = "STORECREDIT_TEST_POSTGRES_URL"

// migrateLockKey serializes schema setup across test packages.
const migrateLockKey int64 = 7_311_042

// NewPostgres connects to the test database, applies the schema and empties
// tables. The test is skipped in short mode or when PostgresURLEnv is unset.
// Packages run in parallel, so each one should only truncate its own tables.
func NewPostgres(t *testing.T, tables ...string) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping database test in short mode")
	}
	dsn := os.Getenv(PostgresURLEnv)
	if dsn == "" {
		t.Skipf("Skipping database test: %s is not set", PostgresURLEnv)
	}

	db, err := driver.ConnectSQL(dsn)
	require.NoError(t, err)
	t.Cleanup(db.Pool.Close)

	ctx := context.Background()
	conn, err := db.Pool.Acquire(ctx)
	require.NoError(t, err)
	_, err = conn.Exec(ctx, "SELECT pg_advisory_lock($1)", migrateLockKey)
	require.NoError(t, err)
	migrateErr := driver.Migrate(ctx, conn)
	_, err = conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", migrateLockKey)
	conn.Release()
	require.NoError(t, migrateErr)
	require.NoError(t, err)
	if len(tables) > 0 {
		_, err = db.Pool.Exec(ctx, "TRUNCATE "+strings.Join(tables, ", "))
		require.NoError(t, err)
	}

	return db.Pool
}
