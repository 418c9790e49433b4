package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter counts hits against a key.
type Limiter interface {
	// Allow records a hit and returns ErrRateLimited once the key is over budget.
	Allow(ctx context.Context, key string) error
	// Reset forgets the key.
	Reset(ctx context.Context, key string) error
}

// FixedWindow enforces at most Limit hits per Window per key using Redis
// counters.
type FixedWindow struct {
	redis  redis.UniversalClient
	prefix string
	limit  int
	window time.Duration
}

// NewFixedWindow creates a [FixedWindow] backed by the given Redis client.
// Keys are namespaced by prefix.
func NewFixedWindow(redisClient redis.UniversalClient, prefix string, limit int, window time.Duration) *FixedWindow {
	return &FixedWindow{
		redis:  redisClient,
		prefix: prefix,
		limit:  limit,
		window: window,
	}
}

// Allow increments the key's counter and rejects hits past the limit.
func (l *FixedWindow) Allow(ctx context.Context, key string) error {
	count, err := l.incrementWithTTL(ctx, l.prefix+key)
	if err != nil {
		return err
	}
	if count > int64(l.limit) {
		return ErrRateLimited
	}
	return nil
}

// Reset clears the key's counter.
func (l *FixedWindow) Reset(ctx context.Context, key string) error {
	if err := l.redis.Del(ctx, l.prefix+key).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Count returns the current counter for key. Missing keys return zero.
func (l *FixedWindow) Count(ctx context.Context, key string) (int, error) {
	count, err := l.redis.Get(ctx, l.prefix+key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return int(count), nil
}

func (l *FixedWindow) incrementWithTTL(ctx context.Context, key string) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, l.window).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count, nil
}
