package gateway

import (
	"testing"
	"time"
)

func TestRateLimiterBlocksOverLimit(t *testing.T) {
	rl := NewRateLimiter(3, time.Minute)
	for i := 0; i < 3; i++ {
		if !rl.Allow("c1") {
			t.Fatalf("attempt %d blocked under the limit", i+1)
		}
	}
	if rl.Allow("c1") {
		t.Error("fourth attempt allowed over a limit of 3")
	}
	// Other connections have their own window.
	if !rl.Allow("c2") {
		t.Error("independent connection blocked")
	}
}

func TestRateLimiterWindowExpiry(t *testing.T) {
	rl := NewRateLimiter(1, 20*time.Millisecond)
	if !rl.Allow("c1") {
		t.Fatal("first attempt blocked")
	}
	if rl.Allow("c1") {
		t.Fatal("second attempt allowed inside the window")
	}
	time.Sleep(30 * time.Millisecond)
	if !rl.Allow("c1") {
		t.Error("attempt blocked after the window expired")
	}
}

func TestRateLimiterDisabled(t *testing.T) {
	rl := NewRateLimiter(0, time.Minute)
	for i := 0; i < 100; i++ {
		if !rl.Allow("c1") {
			t.Fatal("disabled limiter blocked an attempt")
		}
	}
}

func TestRateLimiterForget(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	rl.Allow("c1")
	rl.Forget("c1")
	if !rl.Allow("c1") {
		t.Error("window survived Forget")
	}
}
