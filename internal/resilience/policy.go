// Package resilience holds the small set of policies the pipeline composes
// around fallible calls: retry, circuit breaker and fallback.
package resilience

import (
	"context"
	"time"
)

// Operation is a unit of work guarded by a Policy.
type Operation func(ctx context.Context) error

// Policy decides how, and whether, an Operation runs.
type Policy interface {
	Execute(ctx context.Context, op Operation) error
}

// PolicyFunc adapts a function to the Policy interface.
type PolicyFunc func(ctx context.Context, op Operation) error

func (f PolicyFunc) Execute(ctx context.Context, op Operation) error { return f(ctx, op) }

// Wrap composes policies, outermost first: Wrap(a, b).Execute(op) runs
// a(b(op)).
func Wrap(policies ...Policy) Policy {
	return PolicyFunc(func(ctx context.Context, op Operation) error {
		next := op
		for i := len(policies) - 1; i >= 0; i-- {
			p, inner := policies[i], next
			next = func(ctx context.Context) error { return p.Execute(ctx, inner) }
		}
		return next(ctx)
	})
}

// Sleep waits for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
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
