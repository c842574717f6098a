// Package user defines member identity and subscription tier for access control.
package user

import (
	"errors"
	"time"
)

// Tier identifies a member's subscription level.
// The tier drives monthly quotas and rate-limit multipliers.
type Tier string

const (
	// TierBasic is the entry tier. Basic members start inside a trial window.
	TierBasic Tier = "basic"

	// TierVIP is the paid tier with higher quotas and rate limits.
	TierVIP Tier = "vip"
)

// ErrUnknownTier indicates a tier value outside the known set.
var ErrUnknownTier = errors.New("unknown membership tier")

// ParseTier validates a raw tier string.
func ParseTier(s string) (Tier, error) {
	switch Tier(s) {
	case TierBasic, TierVIP:
		return Tier(s), nil
	default:
		return "", ErrUnknownTier
	}
}

// User is the access-control view of a member. It carries exactly the fields
// the admission path needs; profile data lives elsewhere.
type User struct {
	ID        string
	Email     string
	Tier      Tier
	Active    bool
	CreatedAt time.Time
}
