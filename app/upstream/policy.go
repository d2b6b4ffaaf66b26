package upstream

import (
	"context"
	"log/slog"
	"time"
)

// Policy decides whether a failed call is attempted again.
type Policy interface {
	Name() string
	// Next returns the delay before the next attempt, or false to give up.
	// attempt is the 1-based number of the attempt that just failed.
	Next(attempt int, err error) (time.Duration, bool)
}

// Policy names accepted by PolicyByName.
const (
	PolicyFailFast = "fail-fast"
	PolicyRetry    = "retry"
)

type failFast struct{}

// FailFast gives up on the first failure of any kind.
func FailFast() Policy {
	return failFast{}
}

func (failFast) Name() string { return PolicyFailFast }

func (failFast) Next(int, error) (time.Duration, bool) {
	return 0, false
}

const (
	DefaultRetryAttempts = 3
	DefaultRetryDelay    = 2 * time.Second
)

// BoundedRetry attempts a call up to Attempts times, sleeping Delay between
// attempts, and only when the upstream answered 429 or 403.
type BoundedRetry struct {
	Attempts int
	Delay    time.Duration
}

func NewBoundedRetry() BoundedRetry {
	return BoundedRetry{Attempts: DefaultRetryAttempts, Delay: DefaultRetryDelay}
}

func (BoundedRetry) Name() string { return PolicyRetry }

func (r BoundedRetry) Next(attempt int, err error) (time.Duration, bool) {
	if attempt >= r.Attempts || !IsRejected(err) {
		return 0, false
	}
	return r.Delay, true
}

// PolicyByName maps a configuration value onto a Policy.
func PolicyByName(name string) Policy {
	if name == PolicyRetry {
		return NewBoundedRetry()
	}
	return FailFast()
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func logFailure(source string, err *Error, attempt int, policy Policy) {
	slog.Warn("Upstream call failed",
		"source", source,
		"endpoint", err.Endpoint,
		"kind", string(err.Kind),
		"status", err.Status,
		"attempt", attempt,
		"policy", policy.Name())
}
