package api

import (
	"testing"
	"time"
)

func TestIPLimiterBlocksOverLimit(t *testing.T) {
	limiter := newIPLimiter(3, time.Minute)
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		if !limiter.Allow("10.0.0.1", now) {
			t.Fatalf("request %d blocked below the limit", i+1)
		}
	}
	if limiter.Allow("10.0.0.1", now) {
		t.Fatal("request over the limit allowed")
	}
	if !limiter.Allow("10.0.0.2", now) {
		t.Fatal("another IP blocked by an unrelated counter")
	}
}

func TestIPLimiterWindowRolls(t *testing.T) {
	limiter := newIPLimiter(1, time.Minute)
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	if !limiter.Allow("10.0.0.1", now) {
		t.Fatal("first request blocked")
	}
	if limiter.Allow("10.0.0.1", now.Add(30*time.Second)) {
		t.Fatal("second request inside the window allowed")
	}
	if !limiter.Allow("10.0.0.1", now.Add(time.Minute)) {
		t.Fatal("request after the window rolled was blocked")
	}
}
