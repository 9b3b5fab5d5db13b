// Copyright (C) 2025 Zena Labs (dev@zenahq.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	dgbadger "github.com/dgraph-io/badger/v4"

	"github.com/zenahq/zena-actions/services/dispatch/registry"
	badgerstore "github.com/zenahq/zena-actions/services/dispatch/storage/badger"
)

// =============================================================================
// MemoryStore
// =============================================================================

// MemoryStore keeps completed outcomes in process memory. The default for
// single-instance deployments and tests; entries die with the process.
//
// Thread Safety: Safe for concurrent use via sync.Mutex.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	outcome   *registry.Outcome
	expiresAt time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memoryEntry)}
}

// Get returns the cached outcome if the key is present and unexpired.
func (m *MemoryStore) Get(_ context.Context, key string) (*registry.Outcome, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	if time.Now().After(entry.expiresAt) {
		delete(m.entries, key)
		return nil, false, nil
	}
	return entry.outcome, true, nil
}

// Put records an outcome for the dedup window, opportunistically pruning
// expired neighbors.
func (m *MemoryStore) Put(_ context.Context, key string, out *registry.Outcome, ttl time.Duration) error {
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	for k, entry := range m.entries {
		if now.After(entry.expiresAt) {
			delete(m.entries, k)
		}
	}
	m.entries[key] = memoryEntry{outcome: out, expiresAt: now.Add(ttl)}
	return nil
}

// Len returns the live entry count. Introspection only.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// =============================================================================
// BadgerStore
// =============================================================================
//
// Storage layout:
//
//	dedup/v1/{key}  →  JSON-encoded registry.Outcome
//	                   TTL: the dedup window (BadgerDB native expiry)
//
// TTL is enforced by BadgerDB's GC, not application code — expired keys
// return ErrKeyNotFound, which this store treats as a miss.

// dedupKeyPrefix versions the layout to allow format changes without
// collision.
const dedupKeyPrefix = "dedup/v1/"

// BadgerStore persists the dedup window across restarts, so a retry storm
// right after a deploy still cannot double-send.
//
// Thread Safety: Safe for concurrent use.
type BadgerStore struct {
	db *badgerstore.DB
}

// NewBadgerStore creates a store backed by the given DB. The caller owns
// the DB lifecycle.
func NewBadgerStore(db *badgerstore.DB) *BadgerStore {
	if db == nil {
		panic("NewBadgerStore: db must not be nil")
	}
	return &BadgerStore{db: db}
}

// Get returns the cached outcome, or a miss when absent or expired.
func (b *BadgerStore) Get(ctx context.Context, key string) (*registry.Outcome, bool, error) {
	var raw []byte
	err := b.db.WithReadTxn(ctx, func(txn *dgbadger.Txn) error {
		item, err := txn.Get([]byte(dedupKeyPrefix + key))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, dgbadger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("dedup store get: %w", err)
	}

	var out registry.Outcome
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, false, fmt.Errorf("dedup store decode: %w", err)
	}
	return &out, true, nil
}

// Put records an outcome with the window as its native TTL.
func (b *BadgerStore) Put(ctx context.Context, key string, out *registry.Outcome, ttl time.Duration) error {
	raw, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("dedup store encode: %w", err)
	}
	err = b.db.WithWriteTxn(ctx, func(txn *dgbadger.Txn) error {
		entry := dgbadger.NewEntry([]byte(dedupKeyPrefix+key), raw).WithTTL(ttl)
		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("dedup store put: %w", err)
	}
	return nil
}
