// Package quota meters monthly message usage per member and enforces
// per-tier limits.
//
// Enforcement has two layers. CanSend is an advisory read used to deny
// cheaply before any model work happens. Record is the authoritative write:
// a single conditional read-modify-write at the store level, so two racing
// requests can never push a counter past its limit no matter how many
// service instances run.
package quota

import (
	"errors"
	"time"

	"github.com/mentora-ai/mentora/internal/billing"
	"github.com/mentora-ai/mentora/internal/user"
)

var (
	// ErrLimitReached indicates the conditional increment found the counter
	// already at its limit.
	ErrLimitReached = errors.New("message limit reached")
)

// Deny reasons exposed to callers and, eventually, API clients.
const (
	ReasonLimitExceeded   = "USAGE_LIMIT_EXCEEDED"
	ReasonTrialExpired    = "TRIAL_EXPIRED"
	ReasonAccountInactive = "ACCOUNT_INACTIVE"
)

// Limits holds the per-tier monthly quotas and the trial window length.
type Limits struct {
	BasicPerMonth int64
	VIPPerMonth   int64
	TrialDays     int
}

// ForTier returns the monthly message limit for a tier.
func (l Limits) ForTier(t user.Tier) int64 {
	if t == user.TierVIP {
		return l.VIPPerMonth
	}
	return l.BasicPerMonth
}

// Usage is one member's accumulated consumption for one billing period.
type Usage struct {
	UserID       string
	PeriodStart  time.Time
	PeriodEnd    time.Time
	MessagesUsed int64
	TokensUsed   int64
	CostMicros   int64
}

// Verdict is the outcome of a pre-send quota check.
type Verdict struct {
	Allowed bool

	// Reason is set when Allowed is false; one of the Reason* constants.
	Reason string

	Used      int64
	Limit     int64
	Remaining int64
}

// Status is the usage read model served to clients.
type Status struct {
	Usage Usage
	Limit int64
	Trial billing.Trial
}

// Remaining returns the messages left in the period, floored at 0.
func (s Status) Remaining() int64 {
	r := s.Limit - s.Usage.MessagesUsed
	if r < 0 {
		return 0
	}
	return r
}
