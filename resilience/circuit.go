package resilience

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State is the position of a circuit breaker.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

var stateNames = [...]string{"closed", "open", "half-open"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// CircuitBreakerConfig configures a CircuitBreaker.
type CircuitBreakerConfig struct {
	// MaxFailures consecutive failures open the circuit.
	// Default: 5
	MaxFailures int

	// ResetTimeout is how long an open circuit rejects calls before one
	// probe is let through.
	// Default: 30 seconds
	ResetTimeout time.Duration

	// OnStateChange runs with the breaker locked and must not call it.
	OnStateChange func(from, to State)

	// IsFailure classifies errors. Default: any error except
	// context.Canceled.
	IsFailure func(err error) bool

	// Now is the clock. Default: time.Now.
	Now func() time.Time
}

// CircuitBreaker fails fast with ErrCircuitOpen while a dependency keeps
// failing, then lets a single probe decide whether to close again.
type CircuitBreaker struct {
	config CircuitBreakerConfig

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probing  bool
}

// NewCircuitBreaker creates a closed breaker.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.MaxFailures <= 0 {
		config.MaxFailures = 5
	}
	if config.ResetTimeout <= 0 {
		config.ResetTimeout = 30 * time.Second
	}
	if config.IsFailure == nil {
		config.IsFailure = func(err error) bool {
			return err != nil && !errors.Is(err, context.Canceled)
		}
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &CircuitBreaker{config: config}
}

// Execute runs op unless the circuit is open.
func (cb *CircuitBreaker) Execute(ctx context.Context, op func(context.Context) error) error {
	probe, err := cb.admit()
	if err != nil {
		return err
	}
	err = op(ctx)
	cb.record(probe, cb.config.IsFailure(err))
	return err
}

// State returns the current position, moving an expired open circuit to
// half-open.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.currentLocked()
}

func (cb *CircuitBreaker) admit() (probe bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.currentLocked() {
	case StateOpen:
		return false, ErrCircuitOpen
	case StateHalfOpen:
		if cb.probing {
			return false, ErrCircuitOpen
		}
		cb.probing = true
		return true, nil
	}
	return false, nil
}

func (cb *CircuitBreaker) record(probe, failed bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if probe {
		cb.probing = false
		if failed {
			cb.openLocked()
		} else {
			cb.failures = 0
			cb.moveLocked(StateClosed)
		}
		return
	}
	if cb.state != StateClosed {
		return
	}
	if !failed {
		cb.failures = 0
		return
	}
	if cb.failures++; cb.failures >= cb.config.MaxFailures {
		cb.openLocked()
	}
}

func (cb *CircuitBreaker) currentLocked() State {
	if cb.state == StateOpen && cb.config.Now().Sub(cb.openedAt) >= cb.config.ResetTimeout {
		cb.moveLocked(StateHalfOpen)
	}
	return cb.state
}

func (cb *CircuitBreaker) openLocked() {
	cb.openedAt = cb.config.Now()
	cb.moveLocked(StateOpen)
}

func (cb *CircuitBreaker) moveLocked(to State) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	if cb.config.OnStateChange != nil {
		cb.config.OnStateChange(from, to)
	}
}
