package api

import (
	"testing"
	"time"
)

func TestRateLimiterAllowsUpToLimit(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		if !rl.Allow("user") {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if rl.Allow("user") {
		t.Error("request over the limit should be rejected")
	}
}

func TestRateLimiterKeysAreIndependent(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(1, time.Minute)

	if !rl.Allow("user-a") {
		t.Fatal("first request for user-a should be allowed")
	}
	if !rl.Allow("user-b") {
		t.Error("user-b must not be affected by user-a's requests")
	}
}

func TestRateLimiterWindowExpiry(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(1, 20*time.Millisecond)

	if !rl.Allow("user") {
		t.Fatal("first request should be allowed")
	}
	if rl.Allow("user") {
		t.Fatal("second request inside the window should be rejected")
	}

	time.Sleep(30 * time.Millisecond)
	if !rl.Allow("user") {
		t.Error("request after the window should be allowed again")
	}
}
