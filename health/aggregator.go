package health

import (
	"context"
	"sync"
	"time"

	"github.com/jonwraymond/toolgate/observe"
)

// AggregatorConfig configures the health aggregator.
type AggregatorConfig struct {
	// Timeout is the maximum time to wait for all checks.
	// Default: 10 seconds
	Timeout time.Duration

	// Logger receives a warning for every check that is not healthy.
	Logger observe.Logger
}

// Aggregator runs named health checks in parallel and combines their
// results.
type Aggregator struct {
	config   AggregatorConfig
	mu       sync.RWMutex
	checkers map[string]Checker
}

// NewAggregator creates a new health aggregator.
func NewAggregator(config AggregatorConfig) *Aggregator {
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	if config.Logger == nil {
		config.Logger = observe.NopLogger()
	}
	return &Aggregator{
		config:   config,
		checkers: make(map[string]Checker),
	}
}

// Register adds a health checker under name, replacing any previous one.
func (a *Aggregator) Register(name string, checker Checker) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.checkers[name] = checker
}

// Check runs a single named health check.
func (a *Aggregator) Check(ctx context.Context, name string) (Result, error) {
	a.mu.RLock()
	checker, ok := a.checkers[name]
	a.mu.RUnlock()

	if !ok {
		return Result{}, ErrCheckerNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, a.config.Timeout)
	defer cancel()
	return a.runCheck(ctx, name, checker), nil
}

// CheckAll runs every registered check in parallel under one deadline.
func (a *Aggregator) CheckAll(ctx context.Context) map[string]Result {
	a.mu.RLock()
	names := make([]string, 0, len(a.checkers))
	checkers := make([]Checker, 0, len(a.checkers))
	for name, checker := range a.checkers {
		names = append(names, name)
		checkers = append(checkers, checker)
	}
	a.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, a.config.Timeout)
	defer cancel()

	out := make([]Result, len(checkers))
	var wg sync.WaitGroup
	for i := range checkers {
		wg.Go(func() { out[i] = a.runCheck(ctx, names[i], checkers[i]) })
	}
	wg.Wait()

	results := make(map[string]Result, len(out))
	for i, r := range out {
		results[names[i]] = r
	}
	return results
}

// OverallStatus is the worst status among results; no results is healthy.
func OverallStatus(results map[string]Result) Status {
	overall := StatusHealthy
	for _, r := range results {
		overall = max(overall, r.Status)
	}
	return overall
}

func (a *Aggregator) runCheck(ctx context.Context, name string, checker Checker) Result {
	start := time.Now()
	resultCh := make(chan Result, 1)

	go func() {
		resultCh <- checker.Check(ctx)
	}()

	var result Result
	select {
	case result = <-resultCh:
	case <-ctx.Done():
		result = Unhealthy("check timed out", ErrCheckTimeout)
	}
	result.Duration = time.Since(start)

	if result.Status != StatusHealthy {
		a.config.Logger.Warn(ctx, "health check not healthy",
			observe.Field{Key: "check", Value: name},
			observe.Field{Key: "status", Value: result.Status.String()},
			observe.Field{Key: "error", Value: result.Error},
		)
	}
	return result
}
