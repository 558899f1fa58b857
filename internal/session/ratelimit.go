package session

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter counts failed login attempts per client fingerprint in a
// fixed redis window. A nil client disables limiting entirely.
type RateLimiter struct {
	client *redis.Client
	prefix string
	limit  int
	window time.Duration
}

func NewRateLimiter(client *redis.Client, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		client: client,
		prefix: "login_attempts:",
		limit:  limit,
		window: window,
	}
}

// TooManyFailures reports whether the fingerprint has exhausted its
// attempts for the current window.
func (l *RateLimiter) TooManyFailures(ctx context.Context, fingerprint string) (bool, error) {
	if l == nil || l.client == nil {
		return false, nil
	}
	count, err := l.client.Get(ctx, l.prefix+fingerprint).Int()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read login attempts: %w", err)
	}
	return count >= l.limit, nil
}

// RecordFailure increments the fingerprint's failure count. The window
// TTL is set when the first failure creates the key.
func (l *RateLimiter) RecordFailure(ctx context.Context, fingerprint string) error {
	if l == nil || l.client == nil {
		return nil
	}
	key := l.prefix + fingerprint
	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("record login attempt: %w", err)
	}
	if count == 1 {
		if err := l.client.Expire(ctx, key, l.window).Err(); err != nil {
			return fmt.Errorf("set attempt window: %w", err)
		}
	}
	return nil
}

// Clear forgets the fingerprint's failures after a successful login.
func (l *RateLimiter) Clear(ctx context.Context, fingerprint string) error {
	if l == nil || l.client == nil {
		return nil
	}
	if err := l.client.Del(ctx, l.prefix+fingerprint).Err(); err != nil {
		return fmt.Errorf("clear login attempts: %w", err)
	}
	return nil
}
