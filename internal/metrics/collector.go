// Portcullis - API Request Gateway and Pipeline Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/portcullis

// Package metrics aggregates per-endpoint request statistics and
// mirrors them to Prometheus.
//
// The Collector keeps a bounded ring of recent latency samples per
// endpoint so percentile snapshots stay O(ring) regardless of uptime.
package metrics

import (
	"sort"
	"sync"
	"time"
)

// ringCapacity bounds the latency samples retained per endpoint.
// Percentiles reflect the most recent ringCapacity requests.
const ringCapacity = 1000

// endpointStats accumulates counters and the latency ring for one
// endpoint.
type endpointStats struct {
	requests int64
	errors   int64

	byStatus map[int]int64

	cacheHits   int64
	cacheMisses int64

	rateLimited int64

	// samples is a fixed ring; next points at the slot the next sample
	// overwrites once the ring has filled.
	samples []time.Duration
	next    int
	filled  bool
}

// Snapshot is a point-in-time statistics view for one endpoint.
type Snapshot struct {
	Endpoint string `json:"endpoint"`

	Requests int64 `json:"requests"`
	Errors   int64 `json:"errors"`

	// ErrorRate is errors/requests in [0,1]; 0 when no requests.
	ErrorRate float64 `json:"error_rate"`

	ByStatus map[int]int64 `json:"by_status"`

	CacheHits   int64 `json:"cache_hits"`
	CacheMisses int64 `json:"cache_misses"`
	RateLimited int64 `json:"rate_limited"`

	// Latency aggregates cover the retained sample window.
	AvgLatency time.Duration `json:"avg_latency"`
	P95Latency time.Duration `json:"p95_latency"`
	P99Latency time.Duration `json:"p99_latency"`
}

// Collector accumulates per-endpoint request statistics. Safe for
// concurrent use.
type Collector struct {
	mu    sync.RWMutex
	stats map[string]*endpointStats
}

// NewCollector creates an empty Collector.
func NewCollector() *Collector {
	return &Collector{stats: make(map[string]*endpointStats)}
}

// Record accumulates one completed request. Statuses >= 400 count as
// errors.
func (c *Collector) Record(endpoint string, status int, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.endpoint(endpoint)
	s.requests++
	s.byStatus[status]++
	if status >= 400 {
		s.errors++
	}

	s.samples[s.next] = duration
	s.next++
	if s.next == ringCapacity {
		s.next = 0
		s.filled = true
	}
}

// RecordCache accumulates a cache lookup outcome.
func (c *Collector) RecordCache(endpoint string, hit bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.endpoint(endpoint)
	if hit {
		s.cacheHits++
	} else {
		s.cacheMisses++
	}
}

// RecordRateLimited accumulates a rate-limit rejection. The rejection
// also flows through Record with status 429; this counter exists so the
// snapshot distinguishes quota rejections from other 4xx.
func (c *Collector) RecordRateLimited(endpoint string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.endpoint(endpoint).rateLimited++
}

// endpoint returns the stats bucket, creating it on first use. Caller
// holds mu.
func (c *Collector) endpoint(endpoint string) *endpointStats {
	s, ok := c.stats[endpoint]
	if !ok {
		s = &endpointStats{
			byStatus: make(map[int]int64),
			samples:  make([]time.Duration, ringCapacity),
		}
		c.stats[endpoint] = s
	}
	return s
}

// Snapshot returns the current statistics for one endpoint. The zero
// Snapshot (with the endpoint name set) is returned for endpoints never
// recorded.
func (c *Collector) Snapshot(endpoint string) Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s, ok := c.stats[endpoint]
	if !ok {
		return Snapshot{Endpoint: endpoint, ByStatus: map[int]int64{}}
	}
	return c.snapshotLocked(endpoint, s)
}

// SnapshotAll returns snapshots for every recorded endpoint, sorted by
// endpoint key.
func (c *Collector) SnapshotAll() []Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Snapshot, 0, len(c.stats))
	for endpoint, s := range c.stats {
		out = append(out, c.snapshotLocked(endpoint, s))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Endpoint < out[j].Endpoint })
	return out
}

// snapshotLocked builds a Snapshot. Caller holds mu (read or write).
func (c *Collector) snapshotLocked(endpoint string, s *endpointStats) Snapshot {
	snap := Snapshot{
		Endpoint:    endpoint,
		Requests:    s.requests,
		Errors:      s.errors,
		ByStatus:    make(map[int]int64, len(s.byStatus)),
		CacheHits:   s.cacheHits,
		CacheMisses: s.cacheMisses,
		RateLimited: s.rateLimited,
	}
	for status, n := range s.byStatus {
		snap.ByStatus[status] = n
	}
	if s.requests > 0 {
		snap.ErrorRate = float64(s.errors) / float64(s.requests)
	}

	n := s.next
	if s.filled {
		n = ringCapacity
	}
	if n == 0 {
		return snap
	}

	sorted := make([]time.Duration, n)
	copy(sorted, s.samples[:n])
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var total time.Duration
	for _, d := range sorted {
		total += d
	}
	snap.AvgLatency = total / time.Duration(n)
	snap.P95Latency = sorted[percentileIndex(n, 95)]
	snap.P99Latency = sorted[percentileIndex(n, 99)]
	return snap
}

// percentileIndex maps a percentile to a sorted-slice index using the
// nearest-rank method.
func percentileIndex(n, pct int) int {
	idx := (n*pct + 99) / 100
	if idx > 0 {
		idx--
	}
	if idx >= n {
		idx = n - 1
	}
	return idx
}

// Reset drops all accumulated statistics.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats = make(map[string]*endpointStats)
}
