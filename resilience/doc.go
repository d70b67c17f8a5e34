// Package resilience wraps calls to network dependencies, such as the
// remote signing-key endpoint and the downstream tool server, in failure
// handling policies.
//
// Retry backs off between attempts (github.com/cenkalti/backoff/v5).
// CircuitBreaker fails fast while a dependency is down. RateLimiter is a
// token bucket (golang.org/x/time/rate) and Bulkhead bounds concurrency
// (golang.org/x/sync/semaphore). An Executor stacks them in a fixed order:
//
//	executor := resilience.NewExecutor(
//	    resilience.WithCircuitBreaker(resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
//	        MaxFailures:  3,
//	        ResetTimeout: 30 * time.Second,
//	    })),
//	    resilience.WithRetry(resilience.NewRetry(resilience.RetryConfig{
//	        MaxAttempts: 3,
//	        RetryIf:     resilience.IsRetryable,
//	    })),
//	    resilience.WithTimeout(10*time.Second),
//	)
//
//	err := executor.Execute(ctx, fetchKeys)
package resilience
