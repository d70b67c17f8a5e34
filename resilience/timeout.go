package resilience

import (
	"context"
	"errors"
	"time"
)

// Timeout bounds each operation with a deadline.
//
// The operation must honor ctx; Timeout does not abandon a running
// operation, it only shortens its context.
type Timeout struct {
	d time.Duration
}

// NewTimeout creates a new timeout wrapper. A non-positive d defaults to 30s.
func NewTimeout(d time.Duration) *Timeout {
	if d <= 0 {
		d = 30 * time.Second
	}
	return &Timeout{d: d}
}

// Execute runs op with a derived deadline. A deadline hit caused by this
// wrapper is reported as ErrTimeout.
func (t *Timeout) Execute(ctx context.Context, op func(context.Context) error) error {
	opCtx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()

	err := op(opCtx)
	if err != nil && ctx.Err() == nil && errors.Is(opCtx.Err(), context.DeadlineExceeded) {
		return errors.Join(ErrTimeout, err)
	}
	return err
}

// Duration returns the configured timeout.
func (t *Timeout) Duration() time.Duration {
	return t.d
}
