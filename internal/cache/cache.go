// Portcullis - API Request Gateway and Pipeline Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/portcullis

// Package cache stores and serves successful read-endpoint responses,
// keyed by endpoint identity plus the endpoint's configured vary
// dimensions.
//
// Two Store implementations are provided: an in-memory LRU with TTL
// (the default) and a badger-backed store for persistence across
// restarts. Both are safe for concurrent use.
package cache

import (
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// VaryDimension is a request attribute used to partition cached
// responses.
type VaryDimension string

const (
	// VaryQuery partitions by the request's query parameters.
	VaryQuery VaryDimension = "query"

	// VaryParams partitions by the resolved path parameters.
	VaryParams VaryDimension = "params"

	// VaryPrincipal partitions by the authenticated principal id.
	VaryPrincipal VaryDimension = "principal"
)

// KeyInput carries the request attributes available for key derivation.
type KeyInput struct {
	// Endpoint is the canonical endpoint key (METHOD:path).
	Endpoint string

	Query       map[string]string
	Params      map[string]string
	PrincipalID string
}

// KeyFunc derives a cache key from a request.
type KeyFunc func(in KeyInput) string

// Config declares an endpoint's caching policy.
type Config struct {
	// Enabled turns response caching on for the endpoint.
	Enabled bool

	// TTL is how long stored responses stay servable.
	TTL time.Duration

	// Vary selects which request attributes partition the cache.
	// Empty means the endpoint identity alone is the key.
	Vary []VaryDimension

	// KeyFunc overrides the default composite key derivation.
	KeyFunc KeyFunc
}

// Key derives the cache key for the given input: the custom KeyFunc if
// set, otherwise the endpoint identity plus a deterministic hash of the
// configured vary dimensions.
func (c Config) Key(in KeyInput) string {
	if c.KeyFunc != nil {
		return c.KeyFunc(in)
	}
	return defaultKey(c.Vary, in)
}

// varyPayload is the canonical serialization input for default keys.
// JSON object keys marshal sorted, making the serialization
// deterministic for equal maps.
type varyPayload struct {
	Query     map[string]string `json:"query,omitempty"`
	Params    map[string]string `json:"params,omitempty"`
	Principal string            `json:"principal,omitempty"`
}

// defaultKey builds "endpoint:hexhash" from the selected dimensions.
func defaultKey(vary []VaryDimension, in KeyInput) string {
	payload := varyPayload{}
	for _, dim := range vary {
		switch dim {
		case VaryQuery:
			payload.Query = in.Query
		case VaryParams:
			payload.Params = in.Params
		case VaryPrincipal:
			payload.Principal = in.PrincipalID
		}
	}

	data, err := json.Marshal(payload)
	if err != nil {
		// Marshal of string maps cannot fail; fall back defensively.
		return fmt.Sprintf("%s:%v", in.Endpoint, payload)
	}

	hash := sha256.Sum256(data)
	return fmt.Sprintf("%s:%x", in.Endpoint, hash[:16])
}

// Entry is a stored response: body bytes, status, headers, and expiry.
type Entry struct {
	Status    int               `json:"status"`
	Body      []byte            `json:"body"`
	Headers   map[string]string `json:"headers,omitempty"`
	ExpiresAt time.Time         `json:"expires_at"`
}

// IsExpired reports whether the entry has passed its expiry.
func (e *Entry) IsExpired() bool {
	return time.Now().After(e.ExpiresAt)
}

// Store is the pluggable response-cache backend.
type Store interface {
	// Get returns the unexpired entry for key, or false.
	Get(key string) (*Entry, bool)

	// Set stores an entry under key with the given TTL.
	Set(key string, entry *Entry, ttl time.Duration)

	// Delete removes one key.
	Delete(key string)

	// InvalidatePattern removes all keys containing the substring and
	// returns how many were removed.
	InvalidatePattern(substring string) int

	// Clear removes all entries.
	Clear()

	// Len returns the current number of entries.
	Len() int
}

// Stats tracks store performance counters.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
}
