package ratelimit

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func TestFixedWindowLimiter(t *testing.T) {
	mr := miniredis.RunT(t)
	l, err := NewFixedWindowLimiter(mr.Addr(), "test", 2, time.Minute)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	defer l.Close()
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := l.Allow(ctx, "1.2.3.4")
		if err != nil || !ok {
			t.Fatalf("request %d should pass: ok=%v err=%v", i+1, ok, err)
		}
	}
	if ok, _ := l.Allow(ctx, "1.2.3.4"); ok {
		t.Fatalf("third request should be blocked")
	}
	if ok, _ := l.Allow(ctx, "5.6.7.8"); !ok {
		t.Fatalf("other keys have their own quota")
	}
}

func TestFixedWindowLimiter_NextWindow(t *testing.T) {
	mr := miniredis.RunT(t)
	l, err := NewFixedWindowLimiter(mr.Addr(), "", 1, time.Minute)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	defer l.Close()

	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	if ok, _ := l.Allow(ctx, "k"); !ok {
		t.Fatalf("first request should pass")
	}
	if ok, _ := l.Allow(ctx, "k"); ok {
		t.Fatalf("second request in the window should be blocked")
	}
	now = now.Add(time.Minute)
	if ok, _ := l.Allow(ctx, "k"); !ok {
		t.Fatalf("a new window resets the quota")
	}
	if !mr.Exists(fmt.Sprintf("%s:k:%d", defaultPrefix, now.UnixMilli()/time.Minute.Milliseconds())) {
		t.Fatalf("expected window key under the default prefix")
	}
}

func TestFixedWindowLimiter_FailClosed(t *testing.T) {
	mr := miniredis.RunT(t)
	l, err := NewFixedWindowLimiter(mr.Addr(), "test", 1, time.Second)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	defer l.Close()
	mr.Close()

	ok, err := l.Allow(context.Background(), "k")
	if ok || err == nil {
		t.Fatalf("limiter should deny with an error when redis is down: ok=%v err=%v", ok, err)
	}
}

func TestNewFixedWindowLimiter_Invalid(t *testing.T) {
	if _, err := NewFixedWindowLimiter("", "", 1, time.Second); err == nil {
		t.Fatalf("expected error for empty addr")
	}
	if _, err := NewFixedWindowLimiter("localhost:6379", "", 0, time.Second); err == nil {
		t.Fatalf("expected error for zero limit")
	}
}
