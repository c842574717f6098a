package quota

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/mentora-ai/mentora/internal/billing"
)

// Querier defines the database operations PostgresStore needs.
// *pgxpool.Pool satisfies this.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore persists usage counters in the usage_records table.
// The (user_id, period_start) unique constraint is what makes Consume's
// upsert atomic across connections and service instances.
//
// PostgresStore is safe for concurrent use by multiple goroutines.
type PostgresStore struct {
	db     Querier
	logger *slog.Logger
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(db Querier, logger *slog.Logger) *PostgresStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresStore{db: db, logger: logger}
}

// Get implements Store. A missing row means zero usage this period.
func (s *PostgresStore) Get(ctx context.Context, userID string, period billing.Period) (Usage, error) {
	const query = `
		SELECT messages_used, tokens_used, cost_micros
		FROM usage_records
		WHERE user_id = $1 AND period_start = $2`

	u := Usage{UserID: userID, PeriodStart: period.Start, PeriodEnd: period.End}
	err := s.db.QueryRow(ctx, query, userID, period.Start).
		Scan(&u.MessagesUsed, &u.TokensUsed, &u.CostMicros)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return u, nil
		}
		return Usage{}, fmt.Errorf("querying usage_records: %w", err)
	}
	return u, nil
}

// Consume implements Store.
//
// The upsert's WHERE guard makes the limit check and the increment a single
// atomic operation: when the row is already at the limit the DO UPDATE is
// skipped, nothing is returned, and pgx reports ErrNoRows.
func (s *PostgresStore) Consume(ctx context.Context, userID string, period billing.Period, limit, tokens, costMicros int64) (Usage, error) {
	if limit < 1 {
		return Usage{}, ErrLimitReached
	}

	const query = `
		INSERT INTO usage_records (user_id, period_start, period_end, messages_used, tokens_used, cost_micros)
		VALUES ($1, $2, $3, 1, $4, $5)
		ON CONFLICT (user_id, period_start) DO UPDATE
		SET messages_used = usage_records.messages_used + 1,
		    tokens_used   = usage_records.tokens_used + $4,
		    cost_micros   = usage_records.cost_micros + $5,
		    updated_at    = now()
		WHERE usage_records.messages_used < $6
		RETURNING messages_used, tokens_used, cost_micros`

	u := Usage{UserID: userID, PeriodStart: period.Start, PeriodEnd: period.End}
	err := s.db.QueryRow(ctx, query, userID, period.Start, period.End, tokens, costMicros, limit).
		Scan(&u.MessagesUsed, &u.TokensUsed, &u.CostMicros)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Usage{}, ErrLimitReached
		}
		return Usage{}, fmt.Errorf("upserting usage_records: %w", err)
	}
	return u, nil
}
