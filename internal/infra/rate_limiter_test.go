package infra

import (
	"context"
	"testing"
	"time"
)

func newClockedLimiter(burst int, perSecond float64) (*RateLimiter, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	rl := NewRateLimiter(burst, perSecond)
	rl.now = clock.now
	rl.lastFill = clock.t
	return rl, clock
}

func TestRateLimiter_Burst(t *testing.T) {
	rl, _ := newClockedLimiter(2, 10)

	if !rl.TryAcquire() || !rl.TryAcquire() {
		t.Fatal("expected burst of 2 to succeed")
	}
	if rl.TryAcquire() {
		t.Error("expected third TryAcquire to fail")
	}
}

func TestRateLimiter_Refill(t *testing.T) {
	rl, clock := newClockedLimiter(1, 10)
	rl.TryAcquire()

	clock.advance(50 * time.Millisecond)
	if rl.TryAcquire() {
		t.Error("half a token should not be enough")
	}

	clock.advance(50 * time.Millisecond)
	if !rl.TryAcquire() {
		t.Error("expected token after 100ms at 10/s")
	}
}

func TestRateLimiter_RefillCapsAtBurst(t *testing.T) {
	rl, clock := newClockedLimiter(2, 10)
	rl.TryAcquire()
	rl.TryAcquire()

	clock.advance(time.Hour)
	for i := 0; i < 2; i++ {
		if !rl.TryAcquire() {
			t.Fatalf("token %d missing after refill", i)
		}
	}
	if rl.TryAcquire() {
		t.Error("refill exceeded burst")
	}
}

func TestRateLimiter_WaitBlocks(t *testing.T) {
	rl := NewRateLimiter(1, 100)
	ctx := context.Background()

	if err := rl.Wait(ctx); err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	if err := rl.Wait(ctx); err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed < 5*time.Millisecond {
		t.Errorf("expected Wait to block, but elapsed=%v", elapsed)
	}
}

func TestRateLimiter_WaitCancelled(t *testing.T) {
	rl := NewRateLimiter(1, 0.1)
	rl.TryAcquire()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := rl.Wait(ctx); err != context.DeadlineExceeded {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestBitMEXRESTLimiter(t *testing.T) {
	rl := NewBitMEXRESTLimiter()
	for i := 0; i < BitMEXRESTBurst; i++ {
		if !rl.TryAcquire() {
			t.Fatalf("burst token %d refused", i)
		}
	}
	if rl.TryAcquire() {
		t.Error("expected limiter to be empty after burst")
	}
}
