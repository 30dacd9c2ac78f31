package redis

import (
	"context"
	"fmt"
	"time"
)

// RateLimiter counts requests per key in fixed windows (INCR + EXPIRE on
// first hit). RetryAfter comes from the key's remaining TTL.
type RateLimiter struct {
	client RedisClient
}

func NewRateLimiter(client RedisClient) *RateLimiter {
	return &RateLimiter{client: client}
}

// Allow consumes one slot from the window. When the limit is exceeded it
// returns allowed=false plus a retry-after hint.
func (r *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (allowed bool, retryAfter time.Duration, err error) {
	count, err := r.client.Incr(ctx, key)
	if err != nil {
		return false, 0, err
	}
	if count == 1 {
		if err := r.client.Expire(ctx, key, window); err != nil {
			return false, 0, err
		}
	}
	if count > int64(limit) {
		ttl, err := r.client.TTL(ctx, key)
		if err != nil || ttl < 0 {
			ttl = window
		}
		return false, ttl, nil
	}
	return true, 0, nil
}

// Refund gives one slot back, used by the auth window so successful
// logins do not count against the attempt budget.
func (r *RateLimiter) Refund(ctx context.Context, key string) error {
	_, err := r.client.Decr(ctx, key)
	return err
}

func ClientKey(scope, clientIP string) string {
	return fmt.Sprintf("rate_limit:%s:%s", scope, clientIP)
}
