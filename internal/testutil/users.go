package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// SeedUser inserts a member row for integration tests.
func SeedUser(t *testing.T, pool *pgxpool.Pool, id, email, tier string, active bool, createdAt time.Time) {
	t.Helper()

	_, err := pool.Exec(context.Background(), `
		INSERT INTO users (id, email, tier, active, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		id, email, tier, active, createdAt)
	if err != nil {
		t.Fatalf("Failed to seed user %s: %v", id, err)
	}
}
