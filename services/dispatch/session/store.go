// Copyright (C) 2025 Zena Labs (dev@zenahq.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// StoreConfig controls session lifetime.
type StoreConfig struct {
	// TTL is the inactivity window after which a session is evictable.
	TTL time.Duration

	// MaxPendingAge is how long an unanswered confirmation stays valid.
	MaxPendingAge time.Duration

	// SweepInterval is how often the eviction loop scans. Zero disables
	// the loop (tests drive eviction directly).
	SweepInterval time.Duration

	// Logger for eviction and supersession diagnostics. May be nil.
	Logger *slog.Logger
}

// DefaultStoreConfig returns the production defaults: sessions idle for
// four hours are evicted, confirmations expire after ten minutes.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		TTL:           4 * time.Hour,
		MaxPendingAge: 10 * time.Minute,
		SweepInterval: 5 * time.Minute,
	}
}

// Store owns every live session, keyed by (userID, conversationID).
//
// Description:
//
//	GetOrCreate returns the existing session or creates one in the Idle
//	state. Idle sessions past the TTL are evicted by the sweep loop.
//	Eviction while AwaitingConfirmation does not silently vanish: the key
//	is tombstoned, and the replacement session created on the next turn
//	carries the expired confirmation for the orchestrator to report.
//
// Thread Safety: Safe for concurrent use. The store lock guards the maps
// only; per-turn serialization is the session's own lock.
type Store struct {
	mu         sync.Mutex
	sessions   map[string]*Session
	tombstones map[string]*PendingConfirmation
	cfg        StoreConfig
	logger     *slog.Logger
}

// NewStore creates an empty session store.
func NewStore(cfg StoreConfig) *Store {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		sessions:   make(map[string]*Session),
		tombstones: make(map[string]*PendingConfirmation),
		cfg:        cfg,
		logger:     logger,
	}
}

// MaxPendingAge exposes the configured confirmation lifetime.
func (st *Store) MaxPendingAge() time.Duration { return st.cfg.MaxPendingAge }

func sessionKey(userID, conversationID string) string {
	return userID + "\x00" + conversationID
}

// GetOrCreate returns the session for (userID, conversationID), creating an
// Idle one on the first turn of a conversation.
//
// Outputs:
//   - *Session: The live session. Never nil.
//   - bool: True when a new session was created.
func (st *Store) GetOrCreate(userID, conversationID string) (*Session, bool) {
	key := sessionKey(userID, conversationID)

	st.mu.Lock()
	defer st.mu.Unlock()

	if sess, ok := st.sessions[key]; ok {
		return sess, false
	}

	sess := &Session{
		ID:             uuid.New().String(),
		UserID:         userID,
		ConversationID: conversationID,
		LastActivity:   time.Now(),
		logger:         st.logger,
	}
	if expired, ok := st.tombstones[key]; ok {
		// The previous session was evicted while awaiting confirmation; the
		// next turn must hear about it instead of proceeding silently.
		sess.markExpired(expired)
		delete(st.tombstones, key)
	}
	st.sessions[key] = sess
	return sess, true
}

// Acquire returns the session for (userID, conversationID) with its turn
// lock already held.
//
// Description:
//
//	Eviction can remove a session in the window between the map lookup and
//	the turn lock. A turn proceeding on that orphan would write pending
//	state no later turn can ever see, so Acquire re-checks the eviction
//	flag under the session lock and retries the lookup; the retry finds
//	the tombstone and carries any lost confirmation forward.
//
// Outputs:
//   - *Session: The live session, locked. Callers must End it. Never nil.
//   - bool: True when a new session was created.
func (st *Store) Acquire(userID, conversationID string) (*Session, bool) {
	for {
		sess, created := st.GetOrCreate(userID, conversationID)
		sess.Begin()
		if !sess.evicted {
			return sess, created
		}
		sess.End()
	}
}

// Len returns the number of live sessions. Introspection only.
func (st *Store) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}

// StartEviction runs the TTL sweep loop until ctx is cancelled. No-op when
// SweepInterval is zero.
func (st *Store) StartEviction(ctx context.Context) {
	if st.cfg.SweepInterval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(st.cfg.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				st.EvictIdle(time.Now())
			}
		}
	}()
}

// EvictIdle removes sessions idle past the TTL, tombstoning any that were
// still awaiting confirmation. Exposed for tests.
//
// Outputs:
//   - int: Number of sessions evicted.
func (st *Store) EvictIdle(now time.Time) int {
	if st.cfg.TTL <= 0 {
		return 0
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	evicted := 0
	for key, sess := range st.sessions {
		// TryLock: a session mid-turn is active by definition and keeps its
		// slot until the turn finishes and refreshes LastActivity.
		if !sess.mu.TryLock() {
			continue
		}
		idle := now.Sub(sess.LastActivity)
		if idle < st.cfg.TTL {
			sess.mu.Unlock()
			continue
		}
		// Mark before the delete below: a turn that fetched this pointer but
		// has not locked it yet sees the flag in Acquire and re-resolves.
		sess.evicted = true
		pending := sess.Pending
		sess.mu.Unlock()

		delete(st.sessions, key)
		evicted++
		if pending != nil {
			st.tombstones[key] = pending
			st.logger.Warn("session: evicted while awaiting confirmation",
				slog.String("session_id", sess.ID),
				slog.String("action", pending.Action),
				slog.Duration("idle", idle),
			)
		} else {
			st.logger.Debug("session: evicted idle session",
				slog.String("session_id", sess.ID),
				slog.Duration("idle", idle),
			)
		}
	}
	return evicted
}
