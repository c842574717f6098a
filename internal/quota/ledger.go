package quota

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mentora-ai/mentora/internal/billing"
	"github.com/mentora-ai/mentora/internal/user"
)

// Store persists per-period usage counters.
// Interfaces are defined by the consumer; see PostgresStore and MemoryStore.
type Store interface {
	// Get returns the usage row for (userID, period.Start). A member who has
	// not sent anything this period gets a zero-valued Usage, not an error.
	Get(ctx context.Context, userID string, period billing.Period) (Usage, error)

	// Consume atomically increments messages_used by one and adds the token
	// and cost deltas, but only while messages_used < limit. The increment
	// and the limit check are one indivisible operation at the store level.
	// Returns ErrLimitReached when the counter is already at the limit.
	Consume(ctx context.Context, userID string, period billing.Period, limit, tokens, costMicros int64) (Usage, error)
}

// Ledger enforces monthly quotas and trial windows on top of a Store.
//
// Ledger is safe for concurrent use by multiple goroutines.
type Ledger struct {
	store  Store
	limits Limits
	logger *slog.Logger
}

// NewLedger creates a new Ledger.
func NewLedger(store Store, limits Limits, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{store: store, limits: limits, logger: logger}
}

// CanSend reports whether u may send a message at now.
//
// Check order: account active, trial window (basic tier only), then the
// monthly counter. This is an advisory read; the authoritative limit guard
// lives in Record. A denial here is final for this request, but an allow can
// still lose the race and be denied at Record time.
func (l *Ledger) CanSend(ctx context.Context, u user.User, now time.Time) (Verdict, error) {
	limit := l.limits.ForTier(u.Tier)

	if !u.Active {
		return Verdict{Reason: ReasonAccountInactive, Limit: limit}, nil
	}

	if u.Tier == user.TierBasic {
		trial := billing.ResolveTrial(u, now, l.limits.TrialDays)
		if !trial.Active {
			return Verdict{Reason: ReasonTrialExpired, Limit: limit}, nil
		}
	}

	period := billing.CurrentPeriod(now)
	usage, err := l.store.Get(ctx, u.ID, period)
	if err != nil {
		return Verdict{}, fmt.Errorf("reading usage for %s: %w", u.ID, err)
	}

	v := Verdict{
		Used:      usage.MessagesUsed,
		Limit:     limit,
		Remaining: limit - usage.MessagesUsed,
	}
	if v.Remaining < 0 {
		v.Remaining = 0
	}
	if usage.MessagesUsed >= limit {
		v.Reason = ReasonLimitExceeded
		return v, nil
	}
	v.Allowed = true
	return v, nil
}

// Record charges one message plus token and cost deltas against u's current
// period. The underlying store guarantees the counter never exceeds the
// tier limit; ErrLimitReached means a concurrent request won the last slot.
func (l *Ledger) Record(ctx context.Context, u user.User, now time.Time, tokens, costMicros int64) (Usage, error) {
	period := billing.CurrentPeriod(now)
	limit := l.limits.ForTier(u.Tier)

	usage, err := l.store.Consume(ctx, u.ID, period, limit, tokens, costMicros)
	if err != nil {
		return Usage{}, fmt.Errorf("recording usage for %s: %w", u.ID, err)
	}

	l.logger.Debug("usage recorded",
		"user_id", u.ID,
		"messages_used", usage.MessagesUsed,
		"limit", limit,
		"tokens", tokens,
		"cost_micros", costMicros)
	return usage, nil
}

// Status returns the usage read model for u at now.
func (l *Ledger) Status(ctx context.Context, u user.User, now time.Time) (Status, error) {
	period := billing.CurrentPeriod(now)
	usage, err := l.store.Get(ctx, u.ID, period)
	if err != nil {
		return Status{}, fmt.Errorf("reading usage for %s: %w", u.ID, err)
	}
	usage.UserID = u.ID
	usage.PeriodStart = period.Start
	usage.PeriodEnd = period.End

	return Status{
		Usage: usage,
		Limit: l.limits.ForTier(u.Tier),
		Trial: billing.ResolveTrial(u, now, l.limits.TrialDays),
	}, nil
}
