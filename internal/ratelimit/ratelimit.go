// Portcullis - API Request Gateway and Pipeline Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/portcullis

// Package ratelimit tracks request counts per (endpoint, client-key,
// time-window) and rejects over-quota requests.
//
// The default strategy is fixed-window counting: a counter per
// (endpoint, key) increments on every request and resets on first access
// after the window elapses. Fixed windows admit up to 2x the nominal
// rate across a window boundary; endpoints needing smoother limits can
// select the token-bucket strategy backed by golang.org/x/time/rate.
package ratelimit

import (
	"sync"
	"time"
)

// Strategy selects the limiting algorithm for an endpoint.
type Strategy string

const (
	// StrategyFixedWindow is the default: hard counter reset at window
	// boundaries, retry-after is the time remaining in the window.
	StrategyFixedWindow Strategy = "fixed_window"

	// StrategyTokenBucket smooths the limit over the window using a
	// token bucket with burst = Max.
	StrategyTokenBucket Strategy = "token_bucket"
)

// KeyInput carries the request attributes available for key derivation.
// PrincipalID is empty when the limiter runs before authentication;
// custom key functions that need caller identity can derive it from
// Headers instead.
type KeyInput struct {
	ClientAddr  string
	PrincipalID string
	Headers     map[string]string
}

// KeyFunc derives the client key a counter is tracked under.
type KeyFunc func(in KeyInput) string

// DefaultKeyFunc keys by client address. Callers with no derivable
// address collapse into the shared "unknown" bucket; deployments that
// find that unacceptable should install a KeyFunc with a stronger
// identity source.
func DefaultKeyFunc(in KeyInput) string {
	if in.ClientAddr == "" {
		return "unknown"
	}
	return in.ClientAddr
}

// Config declares an endpoint's rate-limit policy.
type Config struct {
	// Window is the counting window length.
	Window time.Duration

	// Max is the number of requests admitted per window per key.
	Max int

	// Strategy selects the algorithm; empty means fixed window.
	Strategy Strategy

	// KeyFunc overrides DefaultKeyFunc.
	KeyFunc KeyFunc
}

// Key derives the client key for the given input.
func (c Config) Key(in KeyInput) string {
	if c.KeyFunc != nil {
		return c.KeyFunc(in)
	}
	return DefaultKeyFunc(in)
}

// Decision is the outcome of an admission check.
type Decision struct {
	// Allowed reports whether the request is admitted.
	Allowed bool

	// Limit and Window echo the policy that produced the decision.
	Limit  int
	Window time.Duration

	// Remaining is the number of requests left in the current window.
	Remaining int

	// RetryAfter is how long the caller should wait before retrying.
	// Positive only on rejection.
	RetryAfter time.Duration
}

// windowCounter is a fixed-window count for one (endpoint, key).
type windowCounter struct {
	count      int
	start      time.Time
	lastAccess time.Time
}

// Limiter holds per-key counters for all endpoints. Safe for concurrent
// use; admission for a single key is atomic under the limiter mutex so
// concurrent requests cannot lose an increment.
type Limiter struct {
	mu       sync.Mutex
	counters map[string]*windowCounter
	buckets  map[string]*bucketEntry

	// now is the clock, replaceable in tests.
	now func() time.Time
}

// NewLimiter creates an empty Limiter.
func NewLimiter() *Limiter {
	return &Limiter{
		counters: make(map[string]*windowCounter),
		buckets:  make(map[string]*bucketEntry),
		now:      time.Now,
	}
}

// Allow runs the admission check for one request against the endpoint's
// policy. Counters for different keys are independent.
func (l *Limiter) Allow(endpoint, key string, cfg Config) Decision {
	if cfg.Max <= 0 || cfg.Window <= 0 {
		return Decision{Allowed: true, Limit: cfg.Max, Window: cfg.Window}
	}

	if cfg.Strategy == StrategyTokenBucket {
		return l.allowTokenBucket(endpoint, key, cfg)
	}
	return l.allowFixedWindow(endpoint, key, cfg)
}

// allowFixedWindow implements the default strategy.
func (l *Limiter) allowFixedWindow(endpoint, key string, cfg Config) Decision {
	ck := endpoint + "|" + key
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	counter, exists := l.counters[ck]
	if !exists || now.Sub(counter.start) >= cfg.Window {
		// First request for the key, or first access after expiry:
		// the window restarts and the count resets.
		counter = &windowCounter{start: now}
		l.counters[ck] = counter
	}
	counter.count++
	counter.lastAccess = now

	if counter.count > cfg.Max {
		return Decision{
			Allowed:    false,
			Limit:      cfg.Max,
			Window:     cfg.Window,
			Remaining:  0,
			RetryAfter: counter.start.Add(cfg.Window).Sub(now),
		}
	}

	return Decision{
		Allowed:   true,
		Limit:     cfg.Max,
		Window:    cfg.Window,
		Remaining: cfg.Max - counter.count,
	}
}

// Sweep removes counters that have been idle for at least maxIdle and
// returns how many were dropped. Counters reset on next access anyway;
// sweeping only bounds memory under high key cardinality.
func (l *Limiter) Sweep(maxIdle time.Duration) int {
	threshold := l.now().Add(-maxIdle)

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, counter := range l.counters {
		if counter.lastAccess.Before(threshold) {
			delete(l.counters, key)
			removed++
		}
	}
	for key, entry := range l.buckets {
		if entry.lastAccess.Before(threshold) {
			delete(l.buckets, key)
			removed++
		}
	}
	return removed
}

// Reset drops all counters. Intended for tests.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.counters = make(map[string]*windowCounter)
	l.buckets = make(map[string]*bucketEntry)
}

// Len returns the number of live counters across both strategies.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.counters) + len(l.buckets)
}
