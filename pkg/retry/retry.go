// Package retry bounds read-modify-write loops that lose
// compare-and-set races, backing off with jitter between attempts.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"
)

// AbortError marks an error the loop must surface without another attempt.
type AbortError struct {
	Err error
}

func (e *AbortError) Error() string {
	return "aborted: " + e.Err.Error()
}

func (e *AbortError) Unwrap() error {
	return e.Err
}

// Abort wraps err so Do returns it immediately. A nil err stays nil.
func Abort(err error) error {
	if err == nil {
		return nil
	}
	return &AbortError{Err: err}
}

// Policy bounds a retry loop. The backoff doubles from Base up to Cap,
// with equal jitter so racing writers do not reschedule in lockstep.
type Policy struct {
	Attempts int // total attempts, the first included
	Base     time.Duration
	Cap      time.Duration
}

// Conflicts is tuned for key-value revision conflicts, where the
// competing writer usually finishes within a few milliseconds.
func Conflicts() Policy {
	return Policy{Attempts: 10, Base: 10 * time.Millisecond, Cap: time.Second}
}

func (p Policy) withDefaults() Policy {
	if p.Attempts < 1 {
		p.Attempts = 1
	}
	if p.Base <= 0 {
		p.Base = 10 * time.Millisecond
	}
	if p.Cap < p.Base {
		p.Cap = p.Base
	}
	return p
}

// backoff returns the sleep before the attempt after attempt (1-based).
// Equal jitter keeps at least half the exponential delay.
func (p Policy) backoff(attempt int) time.Duration {
	d := p.Base
	for i := 1; i < attempt && d < p.Cap; i++ {
		d *= 2
	}
	if d > p.Cap || d <= 0 {
		d = p.Cap
	}
	return d/2 + rand.N(d/2+1)
}

// Do runs fn until it succeeds, returns an error wrapped with Abort,
// runs out of attempts, or ctx expires during a backoff. An aborted
// error is returned unwrapped.
func Do[T any](ctx context.Context, p Policy, fn func() (T, error)) (T, error) {
	var zero T
	p = p.withDefaults()

	var last error
	for attempt := 1; ; attempt++ {
		v, err := fn()
		if err == nil {
			return v, nil
		}
		var abort *AbortError
		if errors.As(err, &abort) {
			return zero, abort.Err
		}
		last = err

		if attempt == p.Attempts {
			return zero, fmt.Errorf("retry: gave up after %d attempts: %w", p.Attempts, last)
		}

		timer := time.NewTimer(p.backoff(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, fmt.Errorf("retry: attempt %d interrupted: %w", attempt, context.Cause(ctx))
		case <-timer.C:
		}
	}
}
