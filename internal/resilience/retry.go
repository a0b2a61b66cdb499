package resilience

import (
	"context"
	"errors"
	"time"
)

// Retry re-runs an operation after failures.
type Retry struct {
	// Retries is the number of additional attempts after the first one.
	Retries int

	// Backoff returns the delay before retry number attempt (1-based).
	// Nil means no delay.
	Backoff func(attempt int) time.Duration

	// ShouldRetry filters which errors are retried. Nil retries every error.
	// Context cancellation of the caller is never retried.
	ShouldRetry func(err error) bool

	// OnRetry is called before each delay.
	OnRetry func(attempt int, delay time.Duration, err error)

	// Sleep replaces the wait between attempts (tests). Defaults to Sleep.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Execute runs op until it succeeds, the retries are spent, or the error is
// not retryable. The last error is returned unchanged.
func (r *Retry) Execute(ctx context.Context, op Operation) error {
	sleep := r.Sleep
	if sleep == nil {
		sleep = Sleep
	}

	var err error
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			var delay time.Duration
			if r.Backoff != nil {
				delay = r.Backoff(attempt)
			}
			if r.OnRetry != nil {
				r.OnRetry(attempt, delay, err)
			}
			if serr := sleep(ctx, delay); serr != nil {
				return errors.Join(err, serr)
			}
		}

		err = op(ctx)
		if err == nil {
			return nil
		}
		if attempt >= r.Retries || ctx.Err() != nil {
			return err
		}
		if r.ShouldRetry != nil && !r.ShouldRetry(err) {
			return err
		}
	}
}

// LinearBackoff waits step × attempt.
func LinearBackoff(step time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		return step * time.Duration(attempt)
	}
}

// ExponentialBackoff waits unit × 2^attempt.
func ExponentialBackoff(unit time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		return unit * time.Duration(1<<uint(attempt))
	}
}

// CappedExponentialBackoff doubles from initial on every attempt and never
// exceeds max.
func CappedExponentialBackoff(initial, max time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		d := initial
		for i := 1; i < attempt; i++ {
			d *= 2
			if d >= max {
				return max
			}
		}
		if d > max {
			return max
		}
		return d
	}
}
