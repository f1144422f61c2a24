package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisLimiter_IdentifierWindow(t *testing.T) {
	mr, client := newTestRedis(t)
	l := NewRedisLimiter(client, 3, time.Minute)
	ctx := context.Background()

	for i := range 3 {
		if err := l.Allow(ctx, "alice", ""); err != nil {
			t.Fatalf("attempt %d: %v", i+1, err)
		}
	}
	if err := l.Allow(ctx, "ALICE ", ""); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("4th attempt err = %v, want ErrRateLimited", err)
	}
	if err := l.Allow(ctx, "bob", ""); err != nil {
		t.Errorf("other identifier limited: %v", err)
	}

	mr.FastForward(time.Minute + time.Second)
	if err := l.Allow(ctx, "alice", ""); err != nil {
		t.Errorf("after window: %v", err)
	}
}

func TestRedisLimiter_IPWindow(t *testing.T) {
	_, client := newTestRedis(t)
	l := NewRedisLimiter(client, 2, time.Minute)
	ctx := context.Background()

	if err := l.Allow(ctx, "a", "10.0.0.1"); err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if err := l.Allow(ctx, "b", "10.0.0.1"); err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if err := l.Allow(ctx, "c", "10.0.0.1"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("err = %v, want ErrRateLimited", err)
	}
	if err := l.Allow(ctx, "d", "unknown"); err != nil {
		t.Errorf("unknown IP should not be counted: %v", err)
	}
}

func TestRedisLimiter_Reset(t *testing.T) {
	_, client := newTestRedis(t)
	l := NewRedisLimiter(client, 1, time.Minute)
	ctx := context.Background()

	_ = l.Allow(ctx, "alice", "")
	if err := l.Allow(ctx, "alice", ""); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("err = %v, want ErrRateLimited", err)
	}
	if err := l.Reset(ctx, "alice"); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if err := l.Allow(ctx, "alice", ""); err != nil {
		t.Errorf("after Reset: %v", err)
	}
}

func TestRedisLimiter_DisabledAndUnavailable(t *testing.T) {
	mr, client := newTestRedis(t)
	ctx := context.Background()

	off := NewRedisLimiter(client, 0, time.Minute)
	for range 5 {
		if err := off.Allow(ctx, "alice", "10.0.0.1"); err != nil {
			t.Fatalf("disabled limiter: %v", err)
		}
	}

	l := NewRedisLimiter(client, 5, time.Minute)
	mr.Close()
	if err := l.Allow(ctx, "alice", ""); !errors.Is(err, ErrUnavailable) {
		t.Errorf("err = %v, want ErrUnavailable", err)
	}
}

func TestNewFromURL(t *testing.T) {
	mr, _ := newTestRedis(t)
	l, client, err := NewFromURL("redis://"+mr.Addr()+"/0", 1, time.Minute)
	if err != nil {
		t.Fatalf("NewFromURL: %v", err)
	}
	defer client.Close()
	if err := l.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if _, _, err := NewFromURL("://bad", 1, time.Minute); err == nil {
		t.Error("NewFromURL should reject a malformed URL")
	}
}
