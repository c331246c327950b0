// Portcullis - API Request Gateway and Pipeline Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/portcullis

package cache

import (
	"errors"
	"fmt"
	"strings"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/portcullis/internal/logging"
)

// cacheKeyPrefix namespaces response-cache keys within the database.
var cacheKeyPrefix = []byte("cache:")

// BadgerStore is a persistent response cache backed by BadgerDB. Entries
// survive process restarts and expire via badger's native TTL; the
// Entry's own ExpiresAt is still checked on read so clock semantics
// match MemoryStore.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadgerStore opens (or creates) a BadgerStore at path.
func OpenBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil // Suppress BadgerDB logs

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger db for response cache: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// NewBadgerStore wraps an already-open database.
func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

// Close closes the underlying database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// Get returns the unexpired entry for key, or false.
func (s *BadgerStore) Get(key string) (*Entry, bool) {
	var entry Entry
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(storageKey(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &entry)
		})
	})
	if err != nil {
		if !errors.Is(err, badger.ErrKeyNotFound) {
			logging.Warn().Err(err).Msg("Response cache read failed")
		}
		return nil, false
	}
	if entry.IsExpired() {
		s.Delete(key)
		return nil, false
	}
	return &entry, true
}

// Set stores an entry under key with the given TTL.
func (s *BadgerStore) Set(key string, entry *Entry, ttl time.Duration) {
	if entry == nil || ttl <= 0 {
		return
	}
	entry.ExpiresAt = time.Now().Add(ttl)

	data, err := json.Marshal(entry)
	if err != nil {
		logging.Warn().Err(err).Msg("Response cache entry marshal failed")
		return
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry(storageKey(key), data).WithTTL(ttl)
		return txn.SetEntry(e)
	})
	if err != nil {
		logging.Warn().Err(err).Msg("Response cache write failed")
	}
}

// Delete removes one key.
func (s *BadgerStore) Delete(key string) {
	err := s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete(storageKey(key)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return nil
	})
	if err != nil {
		logging.Warn().Err(err).Msg("Response cache delete failed")
	}
}

// InvalidatePattern removes all keys containing the substring and
// returns how many were removed.
func (s *BadgerStore) InvalidatePattern(substring string) int {
	removed := 0
	err := s.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		var toDelete [][]byte
		for it.Seek(cacheKeyPrefix); it.ValidForPrefix(cacheKeyPrefix); it.Next() {
			k := it.Item().KeyCopy(nil)
			if strings.Contains(string(k[len(cacheKeyPrefix):]), substring) {
				toDelete = append(toDelete, k)
			}
		}
		for _, k := range toDelete {
			if err := txn.Delete(k); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	if err != nil {
		logging.Warn().Err(err).Msg("Response cache invalidation failed")
	}
	return removed
}

// Clear removes all cache entries.
func (s *BadgerStore) Clear() {
	s.InvalidatePattern("")
}

// Len returns the number of live cache entries.
func (s *BadgerStore) Len() int {
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(cacheKeyPrefix); it.ValidForPrefix(cacheKeyPrefix); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		logging.Warn().Err(err).Msg("Response cache scan failed")
	}
	return count
}

func storageKey(key string) []byte {
	return append(append([]byte(nil), cacheKeyPrefix...), key...)
}
