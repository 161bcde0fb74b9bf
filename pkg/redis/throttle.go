package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Throttle allows one action per key per window.
type Throttle struct {
	client *redis.Client
	prefix string
}

func NewThrottle(client *redis.Client, prefix string) *Throttle {
	return &Throttle{client: client, prefix: prefix}
}

// Allow reports whether the action may proceed and, if so, starts the window.
func (t *Throttle) Allow(ctx context.Context, key string, window time.Duration) (bool, error) {
	if window <= 0 {
		return true, nil
	}
	ok, err := t.client.SetNX(ctx, t.key(key), 1, window).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check throttle: %w", err)
	}
	return ok, nil
}

// Release ends key's window early, for actions that were allowed but then
// failed.
func (t *Throttle) Release(ctx context.Context, key string) error {
	if err := t.client.Del(ctx, t.key(key)).Err(); err != nil {
		return fmt.Errorf("failed to release throttle: %w", err)
	}
	return nil
}

func (t *Throttle) key(key string) string {
	return fmt.Sprintf("%s:%s", t.prefix, key)
}
