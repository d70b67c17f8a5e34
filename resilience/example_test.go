package resilience_test

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonwraymond/toolgate/resilience"
)

func ExampleCircuitBreaker_State() {
	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		MaxFailures:  2,
		ResetTimeout: time.Minute,
	})

	ctx := context.Background()
	fmt.Println("Initial state:", cb.State())

	for i := 0; i < 2; i++ {
		_ = cb.Execute(ctx, func(ctx context.Context) error {
			return errors.New("service unavailable")
		})
	}

	fmt.Println("After failures:", cb.State())
	// Output:
	// Initial state: closed
	// After failures: open
}

func ExampleExecutor() {
	executor := resilience.NewExecutor(
		resilience.WithRetry(resilience.NewRetry(resilience.RetryConfig{
			MaxAttempts:  3,
			InitialDelay: time.Millisecond,
			RetryIf:      resilience.IsRetryable,
		})),
		resilience.WithTimeout(time.Second),
	)

	attempts := 0
	err := executor.Execute(context.Background(), func(ctx context.Context) error {
		attempts++
		if attempts < 2 {
			return &resilience.StatusError{Code: 503}
		}
		return nil
	})

	fmt.Println(err, attempts)
	// Output:
	// <nil> 2
}
