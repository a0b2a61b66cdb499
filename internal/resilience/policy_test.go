package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapOrdersPoliciesOutermostFirst(t *testing.T) {
	var trace []string
	tag := func(name string) Policy {
		return PolicyFunc(func(ctx context.Context, op Operation) error {
			trace = append(trace, name+">")
			err := op(ctx)
			trace = append(trace, "<"+name)
			return err
		})
	}

	err := Wrap(tag("outer"), tag("inner")).Execute(context.Background(), func(context.Context) error {
		trace = append(trace, "op")
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"outer>", "inner>", "op", "<inner", "<outer"}, trace)
}

func TestFallbackMasksBreakerOpen(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	fallbacks := 0
	p := Wrap(
		&Fallback{Action: func(context.Context, error) error { fallbacks++; return nil }},
		NewBreaker(2, time.Minute, WithClock(clock.Now)),
	)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		require.NoError(t, p.Execute(ctx, fail))
	}
	assert.Equal(t, 4, fallbacks)
}

func TestFallbackShouldHandle(t *testing.T) {
	other := errors.New("other")
	f := &Fallback{
		Action:       func(context.Context, error) error { return nil },
		ShouldHandle: func(err error) bool { return errors.Is(err, errBoom) },
	}

	assert.NoError(t, f.Execute(context.Background(), fail))
	assert.ErrorIs(t, f.Execute(context.Background(), func(context.Context) error { return other }), other)
}

func TestRetryThenFallback(t *testing.T) {
	var cause error
	calls := 0
	p := Wrap(
		&Fallback{Action: func(_ context.Context, err error) error { cause = err; return nil }},
		&Retry{Retries: 3},
	)

	err := p.Execute(context.Background(), func(context.Context) error {
		calls++
		return errBoom
	})

	require.NoError(t, err)
	assert.Equal(t, 4, calls)
	assert.ErrorIs(t, cause, errBoom)
}

func TestSleepCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := Sleep(ctx, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}
