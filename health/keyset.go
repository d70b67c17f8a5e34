package health

import (
	"context"
	"time"
)

// KeySetState is the view of a signing key cache needed to judge its health.
type KeySetState interface {
	Len() int
	Fresh() bool
	LastFetch() (time.Time, error)
	Refresh(ctx context.Context) error
}

// KeySetChecker reports whether tokens can currently be verified.
//
// A key set holding fresh keys is healthy. Otherwise a refresh is attempted:
// if it fails while stale keys remain the result is degraded, and with no
// keys at all it is unhealthy.
type KeySetChecker struct {
	keys KeySetState
}

// NewKeySetChecker creates a KeySetChecker.
func NewKeySetChecker(keys KeySetState) *KeySetChecker {
	return &KeySetChecker{keys: keys}
}

// Check implements Checker.
func (c *KeySetChecker) Check(ctx context.Context) Result {
	if !c.keys.Fresh() {
		if err := c.keys.Refresh(ctx); err != nil {
			details := c.details()
			if c.keys.Len() > 0 {
				return Degraded("key set refresh failed, serving stale keys", err).WithDetails(details)
			}
			return Unhealthy("key set unavailable", err).WithDetails(details)
		}
	}
	return Healthy("key set loaded").WithDetails(c.details())
}

func (c *KeySetChecker) details() map[string]any {
	details := map[string]any{"keys": c.keys.Len()}
	last, err := c.keys.LastFetch()
	if !last.IsZero() {
		details["last_fetch"] = last.UTC().Format(time.RFC3339)
	}
	if err != nil {
		details["last_error"] = err.Error()
	}
	return details
}
