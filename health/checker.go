package health

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrCheckTimeout is the error of a check that outlived its deadline.
	ErrCheckTimeout = errors.New("health: check timed out")

	// ErrCheckerNotFound is returned for an unregistered check name.
	ErrCheckerNotFound = errors.New("health: no such check")
)

// Status grades a component. Larger values are worse.
type Status int

const (
	StatusHealthy Status = iota
	StatusDegraded
	StatusUnhealthy
)

var statusNames = [...]string{"healthy", "degraded", "unhealthy"}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return "unknown"
	}
	return statusNames[s]
}

// Result is the outcome of one check.
type Result struct {
	Status   Status
	Message  string
	Details  map[string]any
	Duration time.Duration
	Error    error
}

func Healthy(message string) Result {
	return Result{Status: StatusHealthy, Message: message}
}

// Degraded means the component still serves requests, with reduced
// guarantees.
func Degraded(message string, err error) Result {
	return Result{Status: StatusDegraded, Message: message, Error: err}
}

func Unhealthy(message string, err error) Result {
	return Result{Status: StatusUnhealthy, Message: message, Error: err}
}

// WithDetails returns r carrying details.
func (r Result) WithDetails(details map[string]any) Result {
	r.Details = details
	return r
}

// Checker probes one component. Check may be called concurrently and must
// return once ctx is done.
type Checker interface {
	Check(ctx context.Context) Result
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func(ctx context.Context) Result

func (f CheckerFunc) Check(ctx context.Context) Result { return f(ctx) }

// Pinger is a dependency that can be probed for reachability, such as the
// Redis session backend.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingChecker reports p unhealthy while Ping fails.
func PingChecker(p Pinger) Checker {
	return CheckerFunc(func(ctx context.Context) Result {
		if err := p.Ping(ctx); err != nil {
			return Unhealthy("unreachable", err)
		}
		return Healthy("reachable")
	})
}
