// Portcullis - API Request Gateway and Pipeline Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/portcullis

package metrics

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestCollectorCountsAndErrorRate(t *testing.T) {
	c := NewCollector()

	for i := 0; i < 8; i++ {
		c.Record("GET:/api/products", 200, 10*time.Millisecond)
	}
	c.Record("GET:/api/products", 500, 20*time.Millisecond)
	c.Record("GET:/api/products", 429, 1*time.Millisecond)

	snap := c.Snapshot("GET:/api/products")
	if snap.Requests != 10 {
		t.Errorf("Requests = %d, want 10", snap.Requests)
	}
	if snap.Errors != 2 {
		t.Errorf("Errors = %d, want 2", snap.Errors)
	}
	if snap.ErrorRate != 0.2 {
		t.Errorf("ErrorRate = %v, want 0.2", snap.ErrorRate)
	}
	if snap.ByStatus[200] != 8 || snap.ByStatus[500] != 1 || snap.ByStatus[429] != 1 {
		t.Errorf("ByStatus = %v", snap.ByStatus)
	}
}

func TestCollectorPercentiles(t *testing.T) {
	c := NewCollector()

	// 100 samples: 1ms..100ms.
	for i := 1; i <= 100; i++ {
		c.Record("GET:/x", 200, time.Duration(i)*time.Millisecond)
	}

	snap := c.Snapshot("GET:/x")
	if snap.P95Latency != 95*time.Millisecond {
		t.Errorf("P95 = %v, want 95ms", snap.P95Latency)
	}
	if snap.P99Latency != 99*time.Millisecond {
		t.Errorf("P99 = %v, want 99ms", snap.P99Latency)
	}
	wantAvg := 50500 * time.Microsecond // mean of 1..100 ms
	if snap.AvgLatency != wantAvg {
		t.Errorf("Avg = %v, want %v", snap.AvgLatency, wantAvg)
	}
}

func TestCollectorRingBounded(t *testing.T) {
	c := NewCollector()

	// Overfill the ring with slow samples, then fill it entirely with
	// fast ones; the slow samples must age out of the percentiles.
	for i := 0; i < ringCapacity; i++ {
		c.Record("GET:/x", 200, time.Second)
	}
	for i := 0; i < ringCapacity; i++ {
		c.Record("GET:/x", 200, time.Millisecond)
	}

	snap := c.Snapshot("GET:/x")
	if snap.P99Latency != time.Millisecond {
		t.Errorf("P99 = %v, want 1ms after ring turnover", snap.P99Latency)
	}
	if snap.Requests != 2*ringCapacity {
		t.Errorf("Requests = %d, want %d", snap.Requests, 2*ringCapacity)
	}
}

func TestCollectorUnknownEndpoint(t *testing.T) {
	c := NewCollector()
	snap := c.Snapshot("GET:/never")
	if snap.Requests != 0 || snap.ErrorRate != 0 || snap.AvgLatency != 0 {
		t.Errorf("zero snapshot expected, got %+v", snap)
	}
}

func TestCollectorCacheAndRateLimit(t *testing.T) {
	c := NewCollector()

	c.RecordCache("GET:/x", true)
	c.RecordCache("GET:/x", true)
	c.RecordCache("GET:/x", false)
	c.RecordRateLimited("GET:/x")

	snap := c.Snapshot("GET:/x")
	if snap.CacheHits != 2 || snap.CacheMisses != 1 {
		t.Errorf("cache counters = %d/%d, want 2/1", snap.CacheHits, snap.CacheMisses)
	}
	if snap.RateLimited != 1 {
		t.Errorf("RateLimited = %d, want 1", snap.RateLimited)
	}
}

func TestCollectorSnapshotAllSorted(t *testing.T) {
	c := NewCollector()
	c.Record("GET:/b", 200, time.Millisecond)
	c.Record("GET:/a", 200, time.Millisecond)
	c.Record("POST:/a", 201, time.Millisecond)

	snaps := c.SnapshotAll()
	if len(snaps) != 3 {
		t.Fatalf("len = %d, want 3", len(snaps))
	}
	for i := 1; i < len(snaps); i++ {
		if snaps[i-1].Endpoint > snaps[i].Endpoint {
			t.Errorf("snapshots out of order: %q before %q", snaps[i-1].Endpoint, snaps[i].Endpoint)
		}
	}
}

func TestCollectorConcurrent(t *testing.T) {
	c := NewCollector()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				c.Record("GET:/x", 200, time.Millisecond)
				c.Snapshot("GET:/x")
			}
		}()
	}
	wg.Wait()

	if got := c.Snapshot("GET:/x").Requests; got != 1600 {
		t.Errorf("Requests = %d, want 1600", got)
	}
}

func TestCollectorReset(t *testing.T) {
	c := NewCollector()
	c.Record("GET:/x", 200, time.Millisecond)
	c.Reset()
	if got := c.Snapshot("GET:/x").Requests; got != 0 {
		t.Errorf("Requests = %d after Reset, want 0", got)
	}
}

func TestEmitterDeliversSnapshots(t *testing.T) {
	c := NewCollector()
	c.Record("GET:/x", 200, time.Millisecond)

	delivered := make(chan []Snapshot, 1)
	sink := SinkFunc(func(snaps []Snapshot) {
		select {
		case delivered <- snaps:
		default:
		}
	})

	e := NewEmitter(c, sink, 10*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = e.Serve(ctx) }()

	select {
	case snaps := <-delivered:
		if len(snaps) != 1 || snaps[0].Endpoint != "GET:/x" {
			t.Errorf("snapshots = %+v", snaps)
		}
	case <-time.After(time.Second):
		t.Fatal("emitter did not deliver within 1s")
	}
}
