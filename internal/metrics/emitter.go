// Portcullis - API Request Gateway and Pipeline Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/portcullis

package metrics

import (
	"context"
	"time"

	"github.com/tomtom215/portcullis/internal/logging"
)

// Sink receives periodic statistics snapshots. Implementations must not
// retain the slice past the call.
type Sink interface {
	Emit(snapshots []Snapshot)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(snapshots []Snapshot)

// Emit implements Sink.
func (f SinkFunc) Emit(snapshots []Snapshot) { f(snapshots) }

// LogSink writes snapshot summaries to the application log.
type LogSink struct{}

// Emit implements Sink.
func (LogSink) Emit(snapshots []Snapshot) {
	for _, s := range snapshots {
		if s.Requests == 0 {
			continue
		}
		logging.Info().
			Str("endpoint", s.Endpoint).
			Int64("requests", s.Requests).
			Float64("error_rate", s.ErrorRate).
			Dur("p95", s.P95Latency).
			Dur("p99", s.P99Latency).
			Msg("Endpoint statistics")
	}
}

// Emitter periodically pushes Collector snapshots to a Sink. It
// implements suture.Service via Serve and runs under the application
// supervisor.
type Emitter struct {
	collector *Collector
	sink      Sink
	interval  time.Duration
}

// NewEmitter creates an Emitter. interval defaults to 1 minute when
// non-positive; sink defaults to LogSink when nil.
func NewEmitter(collector *Collector, sink Sink, interval time.Duration) *Emitter {
	if interval <= 0 {
		interval = time.Minute
	}
	if sink == nil {
		sink = LogSink{}
	}
	return &Emitter{collector: collector, sink: sink, interval: interval}
}

// Serve runs the emit loop until the context is cancelled.
func (e *Emitter) Serve(ctx context.Context) error {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			e.sink.Emit(e.collector.SnapshotAll())
		}
	}
}

// String names the service for supervisor logs.
func (e *Emitter) String() string {
	return "metrics-emitter"
}
