// Portcullis - API Request Gateway and Pipeline Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/portcullis

package ratelimit

import (
	"time"

	"golang.org/x/time/rate"
)

// bucketEntry wraps a token-bucket limiter with its last access time for
// sweeping.
type bucketEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// allowTokenBucket implements StrategyTokenBucket: tokens refill at
// Max/Window and the bucket holds at most Max, so sustained throughput
// matches the fixed-window quota without the boundary burst.
func (l *Limiter) allowTokenBucket(endpoint, key string, cfg Config) Decision {
	ck := endpoint + "|" + key
	now := l.now()

	l.mu.Lock()
	entry, exists := l.buckets[ck]
	if !exists {
		refill := rate.Limit(float64(cfg.Max) / cfg.Window.Seconds())
		entry = &bucketEntry{limiter: rate.NewLimiter(refill, cfg.Max)}
		l.buckets[ck] = entry
	}
	entry.lastAccess = now
	limiter := entry.limiter
	l.mu.Unlock()

	// Reserve outside the map lock; the rate.Limiter has its own.
	reservation := limiter.Reserve()
	if delay := reservation.Delay(); delay > 0 {
		reservation.Cancel()
		return Decision{
			Allowed:    false,
			Limit:      cfg.Max,
			Window:     cfg.Window,
			RetryAfter: delay,
		}
	}

	return Decision{
		Allowed:   true,
		Limit:     cfg.Max,
		Window:    cfg.Window,
		Remaining: int(limiter.Tokens()),
	}
}
