// Package throttle counts login attempts per client IP in redis. It exists
// to blunt online password guessing, not to be a general rate limiter.
package throttle

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type LoginLimiter struct {
	client   *redis.Client
	attempts int
	window   time.Duration
}

// NewLoginLimiter builds a limiter over client. A nil client disables
// throttling; Allow then always returns true.
func NewLoginLimiter(client *redis.Client, attempts int, window time.Duration) *LoginLimiter {
	if attempts <= 0 {
		attempts = 10
	}
	if window <= 0 {
		window = 15 * time.Minute
	}
	return &LoginLimiter{
		client:   client,
		attempts: attempts,
		window:   window,
	}
}

// Allow records one attempt for ip and reports whether it is still within
// the window's budget. The counter expires on its own; successful logins do
// not reset it. Redis errors fail open so an outage cannot lock everyone out.
func (l *LoginLimiter) Allow(ctx context.Context, ip string) (bool, error) {
	if l.client == nil || ip == "" {
		return true, nil
	}

	key := fmt.Sprintf("login_attempts:%s", ip)

	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return true, fmt.Errorf("incr %s: %w", key, err)
	}
	if count == 1 {
		if err := l.client.Expire(ctx, key, l.window).Err(); err != nil {
			return true, fmt.Errorf("expire %s: %w", key, err)
		}
	}

	return count <= int64(l.attempts), nil
}
