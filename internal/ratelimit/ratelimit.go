// Package ratelimit enforces per-member sliding-window request limits.
//
// Each identity carries two rolling windows, one per minute and one per
// hour. A request is admitted only when BOTH windows have capacity, and a
// slot is consumed only on admission, so denied requests never eat into the
// allowance. VIP members get both limits scaled by a configurable
// multiplier.
//
// State is held in process memory. In a multi-instance deployment each
// instance enforces the limits independently, so the effective global limit
// is up to N times the configured one. This is an accepted trade against a
// shared counter store; the quota ledger, which has real billing
// consequences, is the layer with cross-instance atomicity.
package ratelimit

import (
	"log/slog"
	"sync"
	"time"

	"github.com/mentora-ai/mentora/internal/user"
)

const (
	cleanupInterval = 5 * time.Minute
	staleThreshold  = 2 * time.Hour
)

// Config holds the base window limits. Effective limits are the base values
// times the tier multiplier.
type Config struct {
	PerMinute     int
	PerHour       int
	VIPMultiplier int
}

// Result is the outcome of a rate check.
type Result struct {
	Allowed bool

	// RetryAfter is how long until the most-constraining violated window
	// frees a slot. Zero when Allowed.
	RetryAfter time.Duration

	// MinuteRemaining and HourRemaining are the slots left after this
	// request, for X-RateLimit-* response headers.
	MinuteRemaining int
	HourRemaining   int

	// MinuteLimit and HourLimit are the effective limits, after the
	// tier multiplier.
	MinuteLimit int
	HourLimit   int
}

// window is a rolling log of admission timestamps, oldest first.
type window struct {
	stamps []time.Time
	span   time.Duration
}

// prune drops timestamps older than the trailing span.
func (w *window) prune(now time.Time) {
	cutoff := now.Add(-w.span)
	i := 0
	for i < len(w.stamps) && !w.stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		w.stamps = append(w.stamps[:0], w.stamps[i:]...)
	}
}

// retryAfter returns the time until the oldest timestamp leaves the window.
// Call after prune; assumes the window is at or over its limit.
func (w *window) retryAfter(now time.Time) time.Duration {
	if len(w.stamps) == 0 {
		return 0
	}
	return w.stamps[0].Add(w.span).Sub(now)
}

// identity holds both windows for one member.
type identity struct {
	minute   window
	hour     window
	lastSeen time.Time
}

// Limiter applies sliding-window limits per identity.
//
// Limiter is safe for concurrent use by multiple goroutines.
type Limiter struct {
	mu          sync.Mutex
	identities  map[string]*identity
	cfg         Config
	logger      *slog.Logger
	lastCleanup time.Time
}

// New creates a Limiter.
func New(cfg Config, logger *slog.Logger) *Limiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Limiter{
		identities:  make(map[string]*identity),
		cfg:         cfg,
		logger:      logger,
		lastCleanup: time.Now(),
	}
}

// limitsFor returns the effective (minute, hour) limits for a tier.
func (l *Limiter) limitsFor(tier user.Tier) (int, int) {
	mult := 1
	if tier == user.TierVIP && l.cfg.VIPMultiplier > 1 {
		mult = l.cfg.VIPMultiplier
	}
	return l.cfg.PerMinute * mult, l.cfg.PerHour * mult
}

// CheckAndConsume admits or denies one request for id at now.
//
// Check and consumption are a single critical section: when admitted, the
// timestamp lands in both windows before the lock is released, so two racing
// requests cannot both claim the last slot. Denials consume nothing.
func (l *Limiter) CheckAndConsume(id string, tier user.Tier, now time.Time) Result {
	minuteLimit, hourLimit := l.limitsFor(tier)

	l.mu.Lock()
	defer l.mu.Unlock()

	// Periodic cleanup of idle identities, piggybacked on regular calls.
	if now.Sub(l.lastCleanup) > cleanupInterval {
		for k, v := range l.identities {
			if now.Sub(v.lastSeen) > staleThreshold {
				delete(l.identities, k)
			}
		}
		l.lastCleanup = now
	}

	ident, ok := l.identities[id]
	if !ok {
		ident = &identity{
			minute: window{span: time.Minute},
			hour:   window{span: time.Hour},
		}
		l.identities[id] = ident
	}
	ident.lastSeen = now

	ident.minute.prune(now)
	ident.hour.prune(now)

	res := Result{
		MinuteLimit: minuteLimit,
		HourLimit:   hourLimit,
	}

	minuteFull := len(ident.minute.stamps) >= minuteLimit
	hourFull := len(ident.hour.stamps) >= hourLimit
	if minuteFull || hourFull {
		var retry time.Duration
		if minuteFull {
			retry = ident.minute.retryAfter(now)
		}
		if hourFull {
			if hr := ident.hour.retryAfter(now); hr > retry {
				retry = hr
			}
		}
		if retry <= 0 {
			retry = time.Second
		}
		res.RetryAfter = retry
		res.MinuteRemaining = remaining(minuteLimit, len(ident.minute.stamps))
		res.HourRemaining = remaining(hourLimit, len(ident.hour.stamps))

		l.logger.Debug("request rate limited",
			"identity", id,
			"minute_used", len(ident.minute.stamps),
			"hour_used", len(ident.hour.stamps),
			"retry_after", retry)
		return res
	}

	ident.minute.stamps = append(ident.minute.stamps, now)
	ident.hour.stamps = append(ident.hour.stamps, now)

	res.Allowed = true
	res.MinuteRemaining = remaining(minuteLimit, len(ident.minute.stamps))
	res.HourRemaining = remaining(hourLimit, len(ident.hour.stamps))
	return res
}

func remaining(limit, used int) int {
	r := limit - used
	if r < 0 {
		return 0
	}
	return r
}
