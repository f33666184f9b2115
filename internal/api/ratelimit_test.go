package api

import (
	"testing"
	"time"
)

func TestRateLimiterPerClient(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	l := NewRateLimiter(1, 2)
	l.now = func() time.Time { return now }

	if !l.Allow("a") || !l.Allow("a") {
		t.Fatalf("burst of 2 must be allowed")
	}
	if l.Allow("a") {
		t.Fatalf("third request within a second must be limited")
	}
	if !l.Allow("b") {
		t.Fatalf("other client must not be limited")
	}

	now = now.Add(time.Second)
	if !l.Allow("a") {
		t.Fatalf("token must be refilled after a second")
	}

	now = now.Add(10 * time.Minute)
	l.Allow("c")
	l.mu.Lock()
	_, stale := l.visitors["a"]
	l.mu.Unlock()
	if stale {
		t.Fatalf("stale visitor was not evicted")
	}
}

func TestRateLimiterDisabled(t *testing.T) {
	var nilLimiter *RateLimiter
	if !nilLimiter.Allow("x") {
		t.Fatalf("nil limiter must allow")
	}
	l := NewRateLimiter(0, 0)
	for i := 0; i < 100; i++ {
		if !l.Allow("x") {
			t.Fatalf("disabled limiter rejected request %d", i)
		}
	}
}
