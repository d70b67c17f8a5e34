package resilience

import (
	"context"
	"time"
)

// Policy is one resilience pattern wrapping an operation.
type Policy interface {
	Execute(ctx context.Context, op func(context.Context) error) error
}

// Stages of an Executor, outermost first.
const (
	stageRateLimit = iota
	stageBulkhead
	stageBreaker
	stageRetry
	stageTimeout
	stageCount
)

// Executor applies a fixed stack of policies around an operation:
// rate limiter, bulkhead, circuit breaker, retry and per-attempt timeout,
// in that order from the outside in. Unset stages are skipped.
//
// Because the breaker sits outside the retry, a failed retry sequence
// counts as one failure.
type Executor struct {
	stages [stageCount]Policy
}

// ExecutorOption sets one stage of an Executor.
type ExecutorOption func(*Executor)

// NewExecutor creates an Executor from opts.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func WithRateLimiter(rl *RateLimiter) ExecutorOption {
	return func(e *Executor) {
		if rl != nil {
			e.stages[stageRateLimit] = rl
		}
	}
}

func WithBulkhead(b *Bulkhead) ExecutorOption {
	return func(e *Executor) {
		if b != nil {
			e.stages[stageBulkhead] = b
		}
	}
}

func WithCircuitBreaker(cb *CircuitBreaker) ExecutorOption {
	return func(e *Executor) {
		if cb != nil {
			e.stages[stageBreaker] = cb
		}
	}
}

func WithRetry(r *Retry) ExecutorOption {
	return func(e *Executor) {
		if r != nil {
			e.stages[stageRetry] = r
		}
	}
}

// WithTimeout bounds every attempt with d.
func WithTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) { e.stages[stageTimeout] = NewTimeout(d) }
}

// Execute runs op through the configured stages.
func (e *Executor) Execute(ctx context.Context, op func(context.Context) error) error {
	run := op
	for i := stageCount - 1; i >= 0; i-- {
		p := e.stages[i]
		if p == nil {
			continue
		}
		inner := run
		run = func(ctx context.Context) error { return p.Execute(ctx, inner) }
	}
	return run(ctx)
}
