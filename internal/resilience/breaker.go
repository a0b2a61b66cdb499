package resilience

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned without running the operation while the breaker is
// open.
var ErrOpen = errors.New("resilience: circuit breaker is open")

// State of a Breaker.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Breaker stops calling an operation for a cooldown period after a number of
// consecutive failures.
//
//	closed    --threshold failures-->  open
//	open      --openFor elapsed----->  half-open (one trial call)
//	half-open --success------------->  closed
//	half-open --failure------------->  open
type Breaker struct {
	threshold int
	openFor   time.Duration
	now       func() time.Time
	onChange  func(from, to State, cause error)

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	trial    bool
}

// BreakerOption customizes a Breaker.
type BreakerOption func(*Breaker)

// WithClock injects the time source.
func WithClock(now func() time.Time) BreakerOption {
	return func(b *Breaker) { b.now = now }
}

// OnStateChange registers a hook called on every transition. cause is the
// error that opened the breaker, nil otherwise. The hook runs outside the
// breaker lock.
func OnStateChange(fn func(from, to State, cause error)) BreakerOption {
	return func(b *Breaker) { b.onChange = fn }
}

// NewBreaker opens after threshold consecutive failures and stays open for
// openFor.
func NewBreaker(threshold int, openFor time.Duration, opts ...BreakerOption) *Breaker {
	if threshold < 1 {
		threshold = 1
	}
	b := &Breaker{
		threshold: threshold,
		openFor:   openFor,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// State returns the current state, promoting open to half-open when the
// cooldown has elapsed.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.openFor {
		return StateHalfOpen
	}
	return b.state
}

func (b *Breaker) Execute(ctx context.Context, op Operation) error {
	if err := b.before(); err != nil {
		return err
	}
	err := op(ctx)
	b.after(err)
	return err
}

func (b *Breaker) before() error {
	b.mu.Lock()
	var from State
	changed := false

	switch b.state {
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.openFor {
			b.mu.Unlock()
			return ErrOpen
		}
		from, changed = b.state, true
		b.state = StateHalfOpen
		b.trial = true
	case StateHalfOpen:
		if b.trial {
			b.mu.Unlock()
			return ErrOpen
		}
		b.trial = true
	}
	b.mu.Unlock()

	if changed {
		b.notify(from, StateHalfOpen, nil)
	}
	return nil
}

func (b *Breaker) after(err error) {
	// The caller going away says nothing about the health of the operation.
	if err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		b.mu.Lock()
		b.trial = false
		b.mu.Unlock()
		return
	}

	b.mu.Lock()
	from := b.state
	b.trial = false

	if err == nil {
		b.failures = 0
		b.state = StateClosed
		b.mu.Unlock()
		if from != StateClosed {
			b.notify(from, StateClosed, nil)
		}
		return
	}

	b.failures++
	if from == StateHalfOpen || b.failures >= b.threshold {
		b.state = StateOpen
		b.openedAt = b.now()
		b.mu.Unlock()
		if from != StateOpen {
			b.notify(from, StateOpen, err)
		}
		return
	}
	b.mu.Unlock()
}

func (b *Breaker) notify(from, to State, cause error) {
	if b.onChange != nil {
		b.onChange(from, to, cause)
	}
}
