// Package billing resolves billing periods and trial windows.
//
// All period arithmetic is done in UTC regardless of the input location, so
// that a user's period boundary does not move when requests arrive from
// different time zones or the server's local zone changes.
package billing

import (
	"time"

	"github.com/mentora-ai/mentora/internal/user"
)

// Period is a half-open billing interval: Start <= t < End.
type Period struct {
	Start time.Time
	End   time.Time
}

// contains reports whether t falls inside the period.
func (p Period) contains(t time.Time) bool {
	t = t.UTC()
	return !t.Before(p.Start) && t.Before(p.End)
}

// CurrentPeriod returns the calendar-month billing period containing now.
// Start is the first instant of the month, End the first instant of the next
// month. December rolls over to January of the following year.
func CurrentPeriod(now time.Time) Period {
	now = now.UTC()
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return Period{
		Start: start,
		End:   start.AddDate(0, 1, 0),
	}
}

// Trial describes a user's trial state at a point in time.
type Trial struct {
	// Active is true while the user is inside the trial window.
	Active bool

	// EndsAt is the first instant at which the trial is over.
	// Zero for tiers that have no trial.
	EndsAt time.Time

	// DaysRemaining is the number of whole or partial days left, floored at 0.
	DaysRemaining int
}

// ResolveTrial computes the trial state for u at now.
//
// Only active basic-tier members have a trial; VIP members and deactivated
// accounts always resolve to an inactive trial. The window is half-open:
// a user created at T is in trial for now < T + trialDays.
func ResolveTrial(u user.User, now time.Time, trialDays int) Trial {
	if u.Tier != user.TierBasic || !u.Active {
		return Trial{}
	}

	now = now.UTC()
	endsAt := u.CreatedAt.UTC().Add(time.Duration(trialDays) * 24 * time.Hour)
	if !now.Before(endsAt) {
		return Trial{EndsAt: endsAt}
	}

	remaining := endsAt.Sub(now)
	days := int(remaining / (24 * time.Hour))
	if remaining%(24*time.Hour) != 0 {
		days++
	}
	return Trial{
		Active:        true,
		EndsAt:        endsAt,
		DaysRemaining: days,
	}
}
