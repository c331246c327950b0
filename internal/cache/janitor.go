// Portcullis - API Request Gateway and Pipeline Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/portcullis

package cache

import (
	"context"
	"time"

	"github.com/tomtom215/portcullis/internal/logging"
)

// sweepable is the subset of stores the janitor can service. BadgerStore
// expires entries natively and does not need one.
type sweepable interface {
	Sweep() int
}

// Janitor periodically drops expired entries from a sweepable store. It
// implements suture.Service via Serve and runs under the application
// supervisor.
type Janitor struct {
	store    sweepable
	interval time.Duration
}

// NewJanitor creates a Janitor. interval defaults to 1 minute when
// non-positive.
func NewJanitor(store sweepable, interval time.Duration) *Janitor {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Janitor{store: store, interval: interval}
}

// Serve runs the sweep loop until the context is cancelled.
func (j *Janitor) Serve(ctx context.Context) error {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if removed := j.store.Sweep(); removed > 0 {
				logging.Debug().Int("removed", removed).Msg("Swept expired cache entries")
			}
		}
	}
}

// String names the service for supervisor logs.
func (j *Janitor) String() string {
	return "cache-janitor"
}
