// Copyright (C) 2025 Zena Labs (dev@zenahq.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package audit

// =============================================================================
// BadgerTrail — embedded audit trail persistence
// =============================================================================
//
// Audit entries are compliance data with a simple access pattern: append on
// every executed action, scan by user for history surfaces. BadgerDB fits —
// embedded, no network call, prefix iteration over a user's entries.
//
// Storage layout:
//
//	audit/v1/{userID}/{timestampNanos}/{entryID}  →  JSON-encoded Entry
//
// The timestamp component keeps a user's entries in chronological order
// under prefix iteration. No TTL — audit history is retained until the
// operator rotates the data directory.

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	dgbadger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	badgerstore "github.com/zenahq/zena-actions/services/dispatch/storage/badger"
)

// trailKeyPrefix is prepended to every trail key. Versioned (v1) to allow
// future format changes without collision.
const trailKeyPrefix = "audit/v1/"

// BadgerTrail implements TrailStore backed by a shared BadgerDB instance.
//
// Description:
//
//	The DB must be opened by the caller (typically in main) and must not be
//	closed before the trail is done being used. The trail does not own the
//	DB lifecycle.
//
// Thread Safety: Safe for concurrent use.
type BadgerTrail struct {
	db     *badgerstore.DB
	logger *slog.Logger
}

// NewBadgerTrail creates a trail store backed by the given DB.
//
// Inputs:
//   - db: Opened BadgerDB wrapper. Must not be nil.
//   - logger: Logger for diagnostics. May be nil.
//
// Outputs:
//   - *BadgerTrail: Ready-to-use trail. Never nil.
func NewBadgerTrail(db *badgerstore.DB, logger *slog.Logger) *BadgerTrail {
	if db == nil {
		panic("NewBadgerTrail: db must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BadgerTrail{db: db, logger: logger}
}

// Append persists one entry under the user's key prefix.
func (t *BadgerTrail) Append(ctx context.Context, entry Entry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("audit trail encode: %w", err)
	}

	key := fmt.Sprintf("%s%s/%020d/%s",
		trailKeyPrefix, entry.UserID, time.Now().UnixNano(), uuid.New().String())

	err = t.db.WithWriteTxn(ctx, func(txn *dgbadger.Txn) error {
		return txn.Set([]byte(key), raw)
	})
	if err != nil {
		return fmt.Errorf("audit trail append: %w", err)
	}
	return nil
}

// Find scans entries matching the query, oldest first.
//
// Description:
//
//	When q.UserID is set, iteration is bounded to that user's prefix —
//	the common case for history surfaces. Without a user, the full trail
//	is scanned; acceptable for the operator CLI, not for hot paths.
func (t *BadgerTrail) Find(ctx context.Context, q Query) ([]Entry, error) {
	prefix := []byte(trailKeyPrefix)
	if q.UserID != "" {
		prefix = []byte(trailKeyPrefix + q.UserID + "/")
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}

	var out []Entry
	err := t.db.WithReadTxn(ctx, func(txn *dgbadger.Txn) error {
		opts := dgbadger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid() && len(out) < limit; it.Next() {
			raw, err := it.Item().ValueCopy(nil)
			if err != nil {
				return fmt.Errorf("copy value: %w", err)
			}
			var entry Entry
			if err := json.Unmarshal(raw, &entry); err != nil {
				// A corrupt record should not hide the rest of the trail.
				t.logger.Warn("audit trail: skipping undecodable entry",
					slog.String("key", string(it.Item().Key())),
					slog.String("error", err.Error()),
				)
				continue
			}
			if matchesQuery(entry, q) {
				out = append(out, entry)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("audit trail find: %w", err)
	}
	if out == nil {
		out = []Entry{}
	}
	return out, nil
}

// matchesQuery applies the post-prefix filters.
func matchesQuery(entry Entry, q Query) bool {
	if q.Action != "" && entry.Action != q.Action {
		return false
	}
	if q.EntityType != "" && entry.EntityType != q.EntityType {
		return false
	}
	if q.EntityID != "" && entry.EntityID != q.EntityID {
		return false
	}
	if !q.Since.IsZero() && entry.Timestamp < q.Since.UnixMilli() {
		return false
	}
	return true
}
