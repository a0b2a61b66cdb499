package wake

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultKey is the list both processes agree on when none is configured.
const DefaultKey = "orderfiles:signal"

// minBlock is the smallest BLPOP timeout. go-redis sends it in whole
// seconds and rounds anything shorter up to one second.
const minBlock = time.Second

// Redis is a Signal shared by every process connected to the same Redis
// server. The pending wake is a single element list under key: Make pushes
// and trims it to one element, Wait pops it with BLPOP.
type Redis struct {
	client redis.UniversalClient
	key    string
}

// NewRedis returns a Signal stored under key, or DefaultKey when key is
// empty.
func NewRedis(client redis.UniversalClient, key string) *Redis {
	if key == "" {
		key = DefaultKey
	}
	return &Redis{client: client, key: key}
}

// Key returns the list the signal lives under.
func (r *Redis) Key() string { return r.key }

func (r *Redis) Make(ctx context.Context) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, r.key, 1)
		pipe.LTrim(ctx, r.key, 0, 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to raise signal %s: %w", r.key, err)
	}
	return nil
}

func (r *Redis) Wait(ctx context.Context, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if timeout < minBlock {
		timeout = minBlock
	}

	// BLPOP holds a pooled connection until it returns. Running it on its own
	// goroutine lets cancellation return right away; the command still ends
	// by itself once the server side timeout passes.
	done := make(chan error, 1)
	go func() {
		done <- r.client.BLPop(context.WithoutCancel(ctx), timeout, r.key).Err()
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		if err == nil || errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("failed to wait on signal %s: %w", r.key, err)
	}
}
