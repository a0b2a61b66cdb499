package wake

import (
	"context"

	"github.com/MrSnakeDoc/orderfiles/internal/logger"
	"github.com/MrSnakeDoc/orderfiles/internal/resilience"
)

// notifyRetries is how many times a failed Make is repeated before giving up.
const notifyRetries = 3

// Notifier raises a Signal on behalf of the intake side. A failed raise is
// logged and swallowed: the work is already stored and the worker picks it up
// on its next timeout poll.
type Notifier struct {
	signal Signal
	policy resilience.Policy
	logger logger.Logger
}

// NewNotifier wraps signal with retry and a logging fallback.
func NewNotifier(signal Signal, log logger.Logger) *Notifier {
	n := &Notifier{signal: signal, logger: log}
	n.policy = resilience.Wrap(
		&resilience.Fallback{
			Action: func(_ context.Context, cause error) error {
				n.logger.Error("failed to raise wake signal, worker will poll on timeout",
					logger.Error(cause))
				return nil
			},
		},
		&resilience.Retry{Retries: notifyRetries},
	)
	return n
}

// Notify raises the signal. It never fails the caller.
func (n *Notifier) Notify(ctx context.Context) {
	_ = n.policy.Execute(ctx, n.signal.Make)
}
