package wake

import (
	"context"
	"errors"
	"time"

	"github.com/MrSnakeDoc/orderfiles/internal/logger"
	"github.com/MrSnakeDoc/orderfiles/internal/resilience"
)

const (
	// BreakerThreshold is the number of consecutive failed waits that opens
	// the breaker.
	BreakerThreshold = 2

	// FallbackDelay is how long a masked wait failure pauses the loop.
	FallbackDelay = 2 * time.Second
)

// Waiter waits on a Signal behind a circuit breaker. Backend failures and the
// open breaker are turned into a short sleep, so Wait only ever reports
// cancellation.
type Waiter struct {
	signal  Signal
	timeout time.Duration
	breaker *resilience.Breaker
	policy  resilience.Policy
	logger  logger.Logger
}

// WaiterOption customizes a Waiter.
type WaiterOption func(*waiterOptions)

type waiterOptions struct {
	delay   time.Duration
	breaker []resilience.BreakerOption
}

// WithFallbackDelay replaces FallbackDelay.
func WithFallbackDelay(d time.Duration) WaiterOption {
	return func(o *waiterOptions) { o.delay = d }
}

// WithBreakerOptions passes options to the underlying breaker.
func WithBreakerOptions(opts ...resilience.BreakerOption) WaiterOption {
	return func(o *waiterOptions) { o.breaker = append(o.breaker, opts...) }
}

// NewWaiter builds the wait stack: fallback(sleep) around a breaker that
// opens after BreakerThreshold failures and stays open for timeout.
func NewWaiter(signal Signal, timeout time.Duration, log logger.Logger, opts ...WaiterOption) *Waiter {
	o := waiterOptions{delay: FallbackDelay}
	for _, opt := range opts {
		opt(&o)
	}

	w := &Waiter{signal: signal, timeout: timeout, logger: log}

	breakerOpts := append([]resilience.BreakerOption{
		resilience.OnStateChange(w.logTransition),
	}, o.breaker...)
	w.breaker = resilience.NewBreaker(BreakerThreshold, timeout, breakerOpts...)

	w.policy = resilience.Wrap(
		&resilience.Fallback{
			ShouldHandle: func(err error) bool { return !cancelled(err) },
			Action: func(ctx context.Context, cause error) error {
				w.logger.Debug("signal wait failed, sleeping before next poll",
					logger.Duration("delay", o.delay),
					logger.Error(cause))
				return resilience.Sleep(ctx, o.delay)
			},
		},
		w.breaker,
	)
	return w
}

// Wait blocks until the signal is raised or the timeout elapses. It returns a
// non-nil error only when ctx is done.
func (w *Waiter) Wait(ctx context.Context) error {
	return w.policy.Execute(ctx, func(ctx context.Context) error {
		return w.signal.Wait(ctx, w.timeout)
	})
}

// BreakerState exposes the breaker for diagnostics.
func (w *Waiter) BreakerState() resilience.State { return w.breaker.State() }

func (w *Waiter) logTransition(from, to resilience.State, cause error) {
	switch to {
	case resilience.StateOpen:
		w.logger.Warn("signal circuit breaker opened",
			logger.String("from", from.String()),
			logger.Duration("open_for", w.timeout),
			logger.Error(cause))
	case resilience.StateClosed:
		w.logger.Info("signal circuit breaker reset",
			logger.String("from", from.String()))
	default:
		w.logger.Debug("signal circuit breaker half-open",
			logger.String("from", from.String()))
	}
}

func cancelled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
