// Portcullis - API Request Gateway and Pipeline Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/portcullis

package ratelimit

import (
	"sync"
	"testing"
	"time"
)

// fakeClock drives the limiter deterministically.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testLimiter() (*Limiter, *fakeClock) {
	l := NewLimiter()
	clock := newFakeClock()
	l.now = clock.Now
	return l, clock
}

func TestFixedWindowQuota(t *testing.T) {
	l, _ := testLimiter()
	cfg := Config{Window: time.Minute, Max: 3}

	for i := 1; i <= 3; i++ {
		d := l.Allow("GET:/x", "client-a", cfg)
		if !d.Allowed {
			t.Fatalf("request %d rejected", i)
		}
		if d.Remaining != 3-i {
			t.Errorf("request %d: Remaining = %d, want %d", i, d.Remaining, 3-i)
		}
	}

	d := l.Allow("GET:/x", "client-a", cfg)
	if d.Allowed {
		t.Fatal("request 4 admitted over quota")
	}
	if d.Limit != 3 || d.Window != time.Minute {
		t.Errorf("decision = %+v", d)
	}
	if d.RetryAfter <= 0 || d.RetryAfter > time.Minute {
		t.Errorf("RetryAfter = %v", d.RetryAfter)
	}
}

func TestFixedWindowReset(t *testing.T) {
	l, clock := testLimiter()
	cfg := Config{Window: time.Minute, Max: 1}

	if !l.Allow("GET:/x", "a", cfg).Allowed {
		t.Fatal("first request rejected")
	}
	if l.Allow("GET:/x", "a", cfg).Allowed {
		t.Fatal("second request admitted")
	}

	clock.Advance(time.Minute)
	if !l.Allow("GET:/x", "a", cfg).Allowed {
		t.Error("request after window elapse rejected")
	}
}

func TestFixedWindowRetryAfterShrinks(t *testing.T) {
	l, clock := testLimiter()
	cfg := Config{Window: time.Minute, Max: 1}

	l.Allow("GET:/x", "a", cfg)
	first := l.Allow("GET:/x", "a", cfg)

	clock.Advance(40 * time.Second)
	second := l.Allow("GET:/x", "a", cfg)

	if first.RetryAfter != time.Minute {
		t.Errorf("first RetryAfter = %v, want 1m", first.RetryAfter)
	}
	if second.RetryAfter != 20*time.Second {
		t.Errorf("second RetryAfter = %v, want 20s", second.RetryAfter)
	}
}

func TestKeysIndependent(t *testing.T) {
	l, _ := testLimiter()
	cfg := Config{Window: time.Minute, Max: 1}

	if !l.Allow("GET:/x", "client-a", cfg).Allowed {
		t.Fatal("client-a rejected")
	}
	if !l.Allow("GET:/x", "client-b", cfg).Allowed {
		t.Error("client-b must have its own counter")
	}
	if !l.Allow("GET:/y", "client-a", cfg).Allowed {
		t.Error("another endpoint must have its own counter")
	}
	if l.Allow("GET:/x", "client-a", cfg).Allowed {
		t.Error("client-a second request admitted")
	}
}

func TestUnlimitedConfig(t *testing.T) {
	l, _ := testLimiter()

	for i := 0; i < 100; i++ {
		if !l.Allow("GET:/x", "a", Config{}).Allowed {
			t.Fatal("zero config must not limit")
		}
		if !l.Allow("GET:/x", "a", Config{Window: time.Minute}).Allowed {
			t.Fatal("Max=0 must not limit")
		}
	}
}

func TestDefaultKeyFunc(t *testing.T) {
	if got := DefaultKeyFunc(KeyInput{ClientAddr: "10.0.0.1"}); got != "10.0.0.1" {
		t.Errorf("key = %q", got)
	}
	if got := DefaultKeyFunc(KeyInput{}); got != "unknown" {
		t.Errorf("key = %q, want unknown bucket", got)
	}

	cfg := Config{KeyFunc: func(in KeyInput) string { return in.Headers["X-Tenant-ID"] }}
	got := cfg.Key(KeyInput{Headers: map[string]string{"X-Tenant-ID": "t1"}})
	if got != "t1" {
		t.Errorf("custom key = %q", got)
	}
}

func TestTokenBucketStrategy(t *testing.T) {
	l := NewLimiter()
	cfg := Config{Window: time.Minute, Max: 5, Strategy: StrategyTokenBucket}

	// The bucket starts full: Max requests pass immediately.
	for i := 1; i <= 5; i++ {
		if !l.Allow("GET:/x", "a", cfg).Allowed {
			t.Fatalf("request %d rejected with a full bucket", i)
		}
	}

	d := l.Allow("GET:/x", "a", cfg)
	if d.Allowed {
		t.Fatal("request over burst admitted")
	}
	if d.RetryAfter <= 0 {
		t.Errorf("RetryAfter = %v, want positive", d.RetryAfter)
	}

	// A rejected reservation must not consume tokens: the next caller
	// sees the same state, not a deeper deficit.
	d2 := l.Allow("GET:/x", "a", cfg)
	if d2.Allowed {
		t.Fatal("still over burst")
	}
	if d2.RetryAfter > d.RetryAfter+time.Second {
		t.Errorf("RetryAfter grew from %v to %v; cancelled reservations leaked", d.RetryAfter, d2.RetryAfter)
	}
}

func TestSweepRemovesIdleCounters(t *testing.T) {
	l, clock := testLimiter()
	cfg := Config{Window: time.Minute, Max: 10}

	l.Allow("GET:/x", "a", cfg)
	l.Allow("GET:/x", "b", cfg)

	clock.Advance(30 * time.Minute)
	l.Allow("GET:/x", "c", cfg)

	if removed := l.Sweep(10 * time.Minute); removed != 2 {
		t.Errorf("Sweep removed %d, want 2", removed)
	}
	if l.Len() != 1 {
		t.Errorf("Len = %d, want 1", l.Len())
	}
}

func TestConcurrentAllowLosesNoIncrements(t *testing.T) {
	l, _ := testLimiter()
	cfg := Config{Window: time.Minute, Max: 50}

	var wg sync.WaitGroup
	var allowed, rejected int
	var mu sync.Mutex

	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				d := l.Allow("GET:/x", "shared", cfg)
				mu.Lock()
				if d.Allowed {
					allowed++
				} else {
					rejected++
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != 50 || rejected != 50 {
		t.Errorf("allowed=%d rejected=%d, want exactly 50/50", allowed, rejected)
	}
}
