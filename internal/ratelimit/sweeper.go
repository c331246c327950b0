// Portcullis - API Request Gateway and Pipeline Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/portcullis

package ratelimit

import (
	"context"
	"time"

	"github.com/tomtom215/portcullis/internal/logging"
)

// Sweeper periodically removes idle counters from a Limiter. It
// implements suture.Service via Serve and is intended to run under the
// application supervisor.
type Sweeper struct {
	limiter  *Limiter
	interval time.Duration
	maxIdle  time.Duration
}

// NewSweeper creates a Sweeper. interval defaults to 5 minutes and
// maxIdle to 1 hour when non-positive.
func NewSweeper(limiter *Limiter, interval, maxIdle time.Duration) *Sweeper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if maxIdle <= 0 {
		maxIdle = time.Hour
	}
	return &Sweeper{limiter: limiter, interval: interval, maxIdle: maxIdle}
}

// Serve runs the sweep loop until the context is cancelled.
func (s *Sweeper) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if removed := s.limiter.Sweep(s.maxIdle); removed > 0 {
				logging.Debug().Int("removed", removed).Msg("Swept idle rate-limit counters")
			}
		}
	}
}

// String names the service for supervisor logs.
func (s *Sweeper) String() string {
	return "ratelimit-sweeper"
}
