package resilience

import "context"

// Fallback replaces the failure of an operation with the result of Action.
type Fallback struct {
	// Action receives the original error. Its return value becomes the
	// result of Execute.
	Action func(ctx context.Context, cause error) error

	// ShouldHandle selects the errors that trigger Action. Nil handles all.
	ShouldHandle func(err error) bool
}

func (f *Fallback) Execute(ctx context.Context, op Operation) error {
	err := op(ctx)
	if err == nil {
		return nil
	}
	if f.ShouldHandle != nil && !f.ShouldHandle(err) {
		return err
	}
	return f.Action(ctx, err)
}
