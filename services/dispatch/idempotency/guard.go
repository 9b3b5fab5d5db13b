// Copyright (C) 2025 Zena Labs (dev@zenahq.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package idempotency prevents duplicate side effects for actions that
// declare a dedup fingerprint. Two invocations with identical key parts
// inside the dedup window produce exactly one underlying execution and two
// identical results.
//
// Two layers cooperate:
//
//   - singleflight collapses concurrent in-flight duplicates (the "two rapid
//     calls" case) onto one execution;
//   - a completed-result store replays the outcome for duplicates arriving
//     after the first finished, until the window elapses.
//
// Thread Safety:
//
//	The guard and both store implementations are safe for concurrent use.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/zenahq/zena-actions/services/dispatch/registry"
)

// Key computes a deterministic fingerprint over an ordered list of parts.
//
// Description:
//
//	Each part is length-prefixed before hashing, so ("ab", "c") and
//	("a", "bc") yield different keys — no separator or truncation
//	collisions. Identical parts always yield the identical key.
//
// Outputs:
//   - string: Hex-encoded SHA-256 digest.
func Key(parts ...string) string {
	h := sha256.New()
	var lenBuf [8]byte
	for _, part := range parts {
		binary.BigEndian.PutUint64(lenBuf[:], uint64(len(part)))
		h.Write(lenBuf[:])
		h.Write([]byte(part))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Store persists completed outcomes for the dedup window.
//
// Implementations must be safe for concurrent use. Get returns (nil, false,
// nil) for an absent or expired key.
type Store interface {
	Get(ctx context.Context, key string) (*registry.Outcome, bool, error)
	Put(ctx context.Context, key string, out *registry.Outcome, ttl time.Duration) error
}

// Guard deduplicates action executions.
//
// Thread Safety: Safe for concurrent use.
type Guard struct {
	store  Store
	window time.Duration
	flight singleflight.Group
	logger *slog.Logger
}

// NewGuard creates a guard over the given store.
//
// Inputs:
//   - store: Completed-result store. Must not be nil.
//   - window: Dedup window; duplicates inside it replay the cached outcome.
//   - logger: Diagnostics logger. May be nil.
func NewGuard(store Store, window time.Duration, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{store: store, window: window, logger: logger}
}

// Execute runs fn at most once per key within the dedup window.
//
// Description:
//
//	With an empty key (action opted out of deduplication), fn runs
//	unconditionally. Otherwise the completed-result store is consulted
//	first — a hit replays the prior outcome with no side effect — and
//	concurrent callers with the same key share a single in-flight
//	execution. Failed executions are not recorded: the next attempt with
//	the same key runs again.
//
//	Store failures degrade to executing fn: losing deduplication is
//	recoverable, refusing the user's action is not. Every degradation is
//	logged.
//
// Outputs:
//   - *registry.Outcome: The action outcome (fresh or replayed).
//   - bool: True when the outcome was replayed from the store or joined
//     another caller's in-flight execution. Exactly one caller per
//     execution sees false: the one whose fn actually ran.
//   - error: The execution error, if fn failed.
func (g *Guard) Execute(ctx context.Context, key string, fn func() (*registry.Outcome, error)) (*registry.Outcome, bool, error) {
	if key == "" {
		out, err := fn()
		return out, false, err
	}

	// singleflight's shared flag is true for every caller of a shared
	// flight, the leader included, so it cannot distinguish "I executed"
	// from "I joined". The closure below only runs on the leader's
	// goroutine; capturing freshness there gives each caller its own
	// answer.
	executed := false
	out, err, _ := g.flight.Do(key, func() (any, error) {
		if cached, ok, getErr := g.store.Get(ctx, key); getErr != nil {
			g.logger.Warn("idempotency: store lookup failed, executing anyway",
				slog.String("key", shortKey(key)),
				slog.String("error", getErr.Error()),
			)
		} else if ok {
			g.logger.Info("idempotency: replaying cached outcome",
				slog.String("key", shortKey(key)),
			)
			return cached, nil
		}

		fresh, execErr := fn()
		if execErr != nil {
			return nil, execErr
		}
		executed = true
		if putErr := g.store.Put(ctx, key, fresh, g.window); putErr != nil {
			g.logger.Warn("idempotency: store record failed",
				slog.String("key", shortKey(key)),
				slog.String("error", putErr.Error()),
			)
		}
		return fresh, nil
	})
	if err != nil {
		return nil, false, err
	}
	return out.(*registry.Outcome), !executed, nil
}

// shortKey truncates for log readability; keys are full SHA-256 digests.
func shortKey(key string) string {
	if len(key) > 12 {
		return key[:12]
	}
	return key
}
