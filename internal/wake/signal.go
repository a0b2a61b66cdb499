// Package wake carries the "new work was queued" notification from the intake
// process to the worker process.
//
// A Signal is binary: any number of Make calls before a Wait coalesce into a
// single pending wake. Wait returning nil does not tell the caller whether a
// wake was observed or the timeout elapsed; both mean "poll now".
package wake

import (
	"context"
	"time"
)

// Signal is a binary, coalescing wake-up primitive.
type Signal interface {
	// Make raises the signal without blocking.
	Make(ctx context.Context) error

	// Wait blocks until the signal is raised, timeout elapses, or ctx is
	// done. It returns nil in the first two cases and ctx.Err() in the third.
	// Any other error is a failure of the signal backend.
	Wait(ctx context.Context, timeout time.Duration) error
}

// Local is a process-local Signal. It only wakes waiters that share the
// same value, so it cannot connect an intake and a worker that run as
// separate processes.
type Local struct {
	ch chan struct{}
}

// NewLocal returns an unraised Local signal.
func NewLocal() *Local {
	return &Local{ch: make(chan struct{}, 1)}
}

func (l *Local) Make(context.Context) error {
	select {
	case l.ch <- struct{}{}:
	default:
		// already raised
	}
	return nil
}

func (l *Local) Wait(ctx context.Context, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-l.ch:
		return nil
	case <-timer.C:
		return nil
	}
}
