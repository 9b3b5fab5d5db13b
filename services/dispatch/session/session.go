// Copyright (C) 2025 Zena Labs (dev@zenahq.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package session tracks per-conversation dispatch state: conversation
// history, parameters accumulated across follow-up turns, and at most one
// pending confirmation.
//
// Each session moves through a small state machine:
//
//	Idle → AwaitingConfirmation   (orchestrator sets a pending confirmation)
//	AwaitingConfirmation → Idle   (validated confirm, validated deny, or
//	                               supersession by an unrelated new intent)
//
// Supersession and expiry are never silent — both are logged, and an
// expired confirmation is reported to the next turn touching the
// conversation rather than vanishing.
//
// Thread Safety:
//
//	Turns for one session serialize through the session's own lock;
//	sessions never block each other. The store's map is guarded separately.
package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/zenahq/zena-actions/services/dispatch/registry"
)

// State is the confirmation state of a session.
type State int

const (
	// Idle means no confirmation is outstanding.
	Idle State = iota

	// AwaitingConfirmation means the orchestrator asked an approve/deny
	// question and the next turn is expected to answer it.
	AwaitingConfirmation
)

// String returns the human-readable state name.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingConfirmation:
		return "awaiting_confirmation"
	default:
		return "unknown"
	}
}

// Turn is one entry of the ordered conversation history.
type Turn struct {
	Role string    // "user" or "assistant"
	Text string    // what was said
	At   time.Time // when
}

// PendingIntent holds the action name and parameters accumulated from an
// unanswered follow-up, so the next turn merges additional answers instead
// of restarting.
type PendingIntent struct {
	Action string
	Params registry.Params
}

// ChainStep is one element of an ordered multi-action sequence awaiting
// execution. Parameter values may reference outputs of completed steps.
type ChainStep struct {
	Action string          `json:"action"`
	Params registry.Params `json:"params"`
}

// CompletedStep records an executed chain step so later failures can roll
// it back and later steps can reference its outputs.
type CompletedStep struct {
	Action  string
	Params  registry.Params
	Outcome *registry.Outcome
}

// PendingConfirmation is an action awaiting an explicit approve/deny
// response. At most one exists per session at any time. When the action is
// part of a chain, Remainder holds the steps that must not run before this
// one is confirmed, and Completed the steps that already ran.
type PendingConfirmation struct {
	Action    string
	Params    registry.Params
	Prompt    string
	Approval  registry.ApprovalType
	CreatedAt time.Time

	Remainder []ChainStep
	Completed []CompletedStep
}

// Session is the mutable per-(user, conversation) state. All access must
// happen between Begin and End.
type Session struct {
	mu sync.Mutex

	// ID uniquely identifies this session instance.
	ID string

	// UserID and ConversationID form the store key.
	UserID         string
	ConversationID string

	// History is the ordered conversation transcript.
	History []Turn

	// Intent carries parameters accumulated from unanswered follow-ups.
	Intent *PendingIntent

	// Pending is the at-most-one outstanding confirmation.
	Pending *PendingConfirmation

	// AutoExecute, when set, lets standard-approval actions skip the
	// "are you sure" turn. Destructive actions ignore it.
	AutoExecute bool

	// expiredConfirmation records that a pending confirmation was discarded
	// by eviction or timeout; the next turn must be told instead of
	// proceeding as if nothing was pending.
	expiredConfirmation *PendingConfirmation

	// LastActivity drives TTL eviction.
	LastActivity time.Time

	// evicted is set by the store, under this lock, when the session is
	// removed from the map. A turn that looked the session up before the
	// removal must not proceed on the orphan: Store.Acquire re-checks the
	// flag after locking and re-resolves through the tombstone.
	evicted bool

	logger *slog.Logger
}

// Begin acquires the session's turn lock. Turns for the same conversation
// serialize here; unrelated sessions proceed independently.
func (s *Session) Begin() { s.mu.Lock() }

// End releases the turn lock.
func (s *Session) End() { s.mu.Unlock() }

// Touch updates the activity timestamp. Call once per turn while holding
// the lock.
func (s *Session) Touch() { s.LastActivity = time.Now() }

// StateNow reports the confirmation state. Caller must hold the lock.
func (s *Session) StateNow() State {
	if s.Pending != nil {
		return AwaitingConfirmation
	}
	return Idle
}

// SetPending installs a new pending confirmation, discarding any stale one.
// Supersession is intentional but never silent.
func (s *Session) SetPending(p *PendingConfirmation) {
	if s.Pending != nil {
		s.logger.Info("session: superseding stale pending confirmation",
			slog.String("session_id", s.ID),
			slog.String("stale_action", s.Pending.Action),
			slog.String("new_action", p.Action),
		)
	}
	s.Pending = p
}

// ClearPending removes the outstanding confirmation and records why.
func (s *Session) ClearPending(reason string) {
	if s.Pending == nil {
		return
	}
	s.logger.Info("session: pending confirmation cleared",
		slog.String("session_id", s.ID),
		slog.String("action", s.Pending.Action),
		slog.String("reason", reason),
	)
	s.Pending = nil
}

// TakePending returns the outstanding confirmation if it is still fresh,
// expiring it otherwise.
//
// Description:
//
//	A confirmation left unanswered past maxAge is never auto-approved — it
//	is discarded here, recorded so the current turn can report the expiry,
//	and must be explicitly re-requested.
//
// Outputs:
//   - *PendingConfirmation: The fresh confirmation, or nil.
func (s *Session) TakePending(maxAge time.Duration) *PendingConfirmation {
	if s.Pending == nil {
		return nil
	}
	if maxAge > 0 && time.Since(s.Pending.CreatedAt) > maxAge {
		s.logger.Info("session: pending confirmation timed out",
			slog.String("session_id", s.ID),
			slog.String("action", s.Pending.Action),
			slog.Duration("age", time.Since(s.Pending.CreatedAt)),
		)
		s.expiredConfirmation = s.Pending
		s.Pending = nil
		return nil
	}
	return s.Pending
}

// ConsumeExpired returns and clears the record of a confirmation that was
// lost to eviction or timeout. The orchestrator reports it once.
func (s *Session) ConsumeExpired() *PendingConfirmation {
	expired := s.expiredConfirmation
	s.expiredConfirmation = nil
	return expired
}

// markExpired is used by the store when reviving a conversation whose
// evicted session had an outstanding confirmation.
func (s *Session) markExpired(p *PendingConfirmation) {
	s.expiredConfirmation = p
}

// RememberIntent stores accumulated parameters for an unanswered follow-up.
func (s *Session) RememberIntent(action string, params registry.Params) {
	s.Intent = &PendingIntent{Action: action, Params: params.Clone()}
}

// TakeIntent returns accumulated parameters when the new turn continues the
// same intent, clearing them either way. A different action abandons the
// old accumulation.
func (s *Session) TakeIntent(action string) registry.Params {
	intent := s.Intent
	s.Intent = nil
	if intent == nil || intent.Action != action {
		return nil
	}
	return intent.Params
}

// AppendTurn records one history entry.
func (s *Session) AppendTurn(role, text string) {
	s.History = append(s.History, Turn{Role: role, Text: text, At: time.Now()})
}
