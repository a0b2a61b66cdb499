//go:build integration

package wake

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/orderfiles/internal/testutils"
)

func TestIntegrationRedisSignal(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	addr := testutils.StartRedis(t, ctx)

	// two clients stand in for the intake and the worker process
	producer := redis.NewClient(&redis.Options{Addr: addr})
	consumer := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() {
		_ = producer.Close()
		_ = consumer.Close()
	})

	raise := NewRedis(producer, "")
	await := NewRedis(consumer, "")
	require.Equal(t, DefaultKey, raise.Key())

	t.Run("wakes a waiter in another client", func(t *testing.T) {
		woke := make(chan error, 1)
		go func() { woke <- await.Wait(ctx, 30*time.Second) }()

		time.Sleep(100 * time.Millisecond)
		require.NoError(t, raise.Make(ctx))

		select {
		case err := <-woke:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("waiter was not woken")
		}
	})

	t.Run("raises coalesce", func(t *testing.T) {
		for range 5 {
			require.NoError(t, raise.Make(ctx))
		}
		n, err := consumer.LLen(ctx, DefaultKey).Result()
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		require.NoError(t, await.Wait(ctx, time.Second))

		n, err = consumer.LLen(ctx, DefaultKey).Result()
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("timeout is not an error", func(t *testing.T) {
		start := time.Now()
		require.NoError(t, await.Wait(ctx, time.Second))
		assert.GreaterOrEqual(t, time.Since(start), 900*time.Millisecond)
	})

	t.Run("cancellation returns promptly", func(t *testing.T) {
		waitCtx, stop := context.WithCancel(ctx)
		time.AfterFunc(50*time.Millisecond, stop)

		start := time.Now()
		err := await.Wait(waitCtx, 30*time.Second)

		assert.ErrorIs(t, err, context.Canceled)
		assert.Less(t, time.Since(start), 5*time.Second)
	})
}
