package testutil

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/kjannette/trahn-gridcore/internal/db"
)

// SetupPool connects to TEST_DATABASE_URL and applies the schema. Tests are
// skipped when no test database is configured.
func SetupPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	_ = godotenv.Load("../../.env")

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx, dsn, db.DefaultPoolConfig())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { pool.Close() })

	if err := db.Migrate(ctx, pool); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return pool
}

// CleanupPrices removes the pair's price history when the test ends.
func CleanupPrices(t *testing.T, pool *pgxpool.Pool, pair string) {
	t.Helper()
	t.Cleanup(func() {
		if _, err := pool.Exec(context.Background(), `DELETE FROM price_history WHERE pair = $1`, pair); err != nil {
			t.Logf("cleanup price history for %s: %v", pair, err)
		}
	})
}
