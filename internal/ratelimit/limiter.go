// Package ratelimit throttles login attempts per identifier and per client IP
// using fixed windows in Redis.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrRateLimited is returned when a key has exceeded its attempts for the current window.
	ErrRateLimited = errors.New("too many login attempts")
	// ErrUnavailable wraps Redis failures. Callers decide whether to fail open.
	ErrUnavailable = errors.New("rate limiter unavailable")
)

// Limiter is consulted before each login attempt. Reset clears the identifier
// counter after a successful login.
type Limiter interface {
	Allow(ctx context.Context, identifier, ip string) error
	Reset(ctx context.Context, identifier string) error
}

// RedisLimiter counts attempts with INCR and starts the window with EXPIRE on
// the first hit.
type RedisLimiter struct {
	client *redis.Client
	max    int64
	window time.Duration
	prefix string
}

// NewRedisLimiter allows maxAttempts attempts per window for each identifier and each IP.
func NewRedisLimiter(client *redis.Client, maxAttempts int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{client: client, max: int64(maxAttempts), window: window, prefix: "devauth:login"}
}

// NewFromURL parses a redis:// URL and returns a limiter and its client. The
// caller owns the client and must close it.
func NewFromURL(url string, maxAttempts int, window time.Duration) (*RedisLimiter, *redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	return NewRedisLimiter(client, maxAttempts, window), client, nil
}

// Allow records one attempt for identifier and for ip. Empty keys are skipped.
func (l *RedisLimiter) Allow(ctx context.Context, identifier, ip string) error {
	if l == nil || l.max <= 0 {
		return nil
	}
	if id := strings.ToLower(strings.TrimSpace(identifier)); id != "" {
		if err := l.hit(ctx, l.prefix+":id:"+id); err != nil {
			return err
		}
	}
	if ip != "" && ip != "unknown" {
		if err := l.hit(ctx, l.prefix+":ip:"+ip); err != nil {
			return err
		}
	}
	return nil
}

// Reset clears the identifier counter.
func (l *RedisLimiter) Reset(ctx context.Context, identifier string) error {
	if l == nil {
		return nil
	}
	id := strings.ToLower(strings.TrimSpace(identifier))
	if id == "" {
		return nil
	}
	if err := l.client.Del(ctx, l.prefix+":id:"+id).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Ping checks the Redis connection.
func (l *RedisLimiter) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

func (l *RedisLimiter) hit(ctx context.Context, key string) error {
	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if count == 1 {
		if err := l.client.Expire(ctx, key, l.window).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	if count > l.max {
		return ErrRateLimited
	}
	return nil
}

// Noop never limits.
type Noop struct{}

func (Noop) Allow(context.Context, string, string) error { return nil }

func (Noop) Reset(context.Context, string) error { return nil }

var (
	_ Limiter = (*RedisLimiter)(nil)
	_ Limiter = Noop{}
)
