// Portcullis - API Request Gateway and Pipeline Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/portcullis

package cache

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// lruNode is one entry in the memory store's recency list.
type lruNode struct {
	key   string
	entry *Entry
	prev  *lruNode
	next  *lruNode
}

// MemoryStore is a thread-safe LRU response cache with TTL support.
// It provides O(1) Get, Set, Delete, and eviction.
//
// A doubly-linked list tracks recency and a hashmap provides lookups;
// head.next is the most recently used, tail.prev the least. Expired
// entries are dropped lazily on access and proactively by Sweep.
type MemoryStore struct {
	mu sync.Mutex

	// capacity is the maximum number of entries before LRU eviction.
	capacity int

	items map[string]*lruNode

	// head and tail are sentinel nodes for the recency list.
	head *lruNode
	tail *lruNode

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

// NewMemoryStore creates a MemoryStore. capacity defaults to 10000 when
// non-positive.
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = 10000
	}

	s := &MemoryStore{
		capacity: capacity,
		items:    make(map[string]*lruNode, capacity),
		head:     &lruNode{},
		tail:     &lruNode{},
	}
	s.head.next = s.tail
	s.tail.prev = s.head
	return s
}

// Get returns the unexpired entry for key, promoting it to most
// recently used.
func (s *MemoryStore) Get(key string) (*Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	node, exists := s.items[key]
	if !exists {
		s.misses.Add(1)
		return nil, false
	}

	if node.entry.IsExpired() {
		s.removeNode(node)
		s.misses.Add(1)
		return nil, false
	}

	s.moveToFront(node)
	s.hits.Add(1)
	return node.entry, true
}

// Set stores an entry under key, evicting the least recently used entry
// when at capacity. The entry's ExpiresAt is set from ttl.
func (s *MemoryStore) Set(key string, entry *Entry, ttl time.Duration) {
	if entry == nil || ttl <= 0 {
		return
	}
	entry.ExpiresAt = time.Now().Add(ttl)

	s.mu.Lock()
	defer s.mu.Unlock()

	if node, exists := s.items[key]; exists {
		node.entry = entry
		s.moveToFront(node)
		return
	}

	if len(s.items) >= s.capacity {
		if lru := s.tail.prev; lru != s.head {
			s.removeNode(lru)
			s.evictions.Add(1)
		}
	}

	node := &lruNode{key: key, entry: entry}
	s.items[key] = node
	s.pushFront(node)
}

// Delete removes one key.
func (s *MemoryStore) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if node, exists := s.items[key]; exists {
		s.removeNode(node)
	}
}

// InvalidatePattern removes all keys containing the substring and
// returns how many were removed. Default keys start with the endpoint
// identity, so invalidating by "POST:/api/orders" clears that
// endpoint's entries across all vary partitions.
func (s *MemoryStore) InvalidatePattern(substring string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, node := range s.items {
		if strings.Contains(key, substring) {
			s.removeNode(node)
			removed++
		}
	}
	return removed
}

// Clear removes all entries.
func (s *MemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = make(map[string]*lruNode, s.capacity)
	s.head.next = s.tail
	s.tail.prev = s.head
}

// Len returns the current number of entries, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Sweep removes expired entries and returns how many were dropped.
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for _, node := range s.items {
		if node.entry.IsExpired() {
			s.removeNode(node)
			removed++
		}
	}
	return removed
}

// Stats returns a snapshot of the hit/miss/eviction counters.
func (s *MemoryStore) Stats() Stats {
	return Stats{
		Hits:      s.hits.Load(),
		Misses:    s.misses.Load(),
		Evictions: s.evictions.Load(),
	}
}

// removeNode unlinks a node and drops it from the map. Caller holds mu.
func (s *MemoryStore) removeNode(node *lruNode) {
	node.prev.next = node.next
	node.next.prev = node.prev
	node.prev = nil
	node.next = nil
	delete(s.items, node.key)
}

// pushFront inserts a node as most recently used. Caller holds mu.
func (s *MemoryStore) pushFront(node *lruNode) {
	node.prev = s.head
	node.next = s.head.next
	s.head.next.prev = node
	s.head.next = node
}

// moveToFront promotes an existing node. Caller holds mu.
func (s *MemoryStore) moveToFront(node *lruNode) {
	node.prev.next = node.next
	node.next.prev = node.prev
	s.pushFront(node)
}
