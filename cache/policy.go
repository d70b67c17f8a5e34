package cache

import "time"

// Policy bounds entry lifetimes.
type Policy struct {
	// DefaultTTL applies when the caller names no TTL.
	DefaultTTL time.Duration

	// MaxTTL caps every TTL. Zero means no cap.
	MaxTTL time.Duration
}

// DefaultPolicy keeps entries for an hour and never longer than a day.
func DefaultPolicy() Policy {
	return Policy{DefaultTTL: time.Hour, MaxTTL: 24 * time.Hour}
}

// EffectiveTTL resolves a requested TTL: non-positive means DefaultTTL, and
// the result never exceeds MaxTTL.
func (p Policy) EffectiveTTL(requested time.Duration) time.Duration {
	ttl := requested
	if ttl <= 0 {
		ttl = p.DefaultTTL
	}
	if p.MaxTTL > 0 {
		ttl = min(ttl, p.MaxTTL)
	}
	return ttl
}

// TTLUntil is the default TTL shortened so the entry is gone by deadline.
// The result is non-positive when deadline is not after now.
func (p Policy) TTLUntil(now, deadline time.Time) time.Duration {
	return min(p.EffectiveTTL(0), deadline.Sub(now))
}
