// Copyright (C) 2025 Zena Labs (dev@zenahq.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package orchestrator is the decision engine of the dispatch service. For
// every turn it enforces, in order: field completeness, the approval gate,
// confirmation resolution, idempotency, execution, audit logging, and
// rollback — before any side effect occurs.
//
// One invocation moves through:
//
//	Received → FieldCheck → {NeedsInput | NeedsApproval | ReadyToExecute}
//	         → Executed → {AuditLogged | RolledBack}
//
// with NeedsApproval → Denied as a terminal non-executing branch.
package orchestrator

import (
	"github.com/zenahq/zena-actions/services/dispatch/registry"
	"github.com/zenahq/zena-actions/services/dispatch/session"
)

// Hints are opaque classification booleans produced by the upstream planner.
// The orchestrator consumes them in the auto-execute gate and never
// re-derives them from text.
type Hints struct {
	// IsUpdate marks the invocation as a non-destructive update or log
	// operation.
	IsUpdate bool `json:"isUpdate,omitempty"`

	// ExplicitCreate marks an explicit, unambiguous create intent.
	ExplicitCreate bool `json:"explicitCreate,omitempty"`
}

// TurnRequest is everything the planner hands the engine for one turn.
type TurnRequest struct {
	// UserID and ConversationID key the session.
	UserID         string
	ConversationID string

	// Action is the planner's candidate action name — canonical or alias.
	// Empty when the turn is free text (a follow-up answer or a
	// confirmation response).
	Action string

	// Input is the raw text of the turn. Used for alias resolution when
	// Action is empty and for confirmation matching while a confirmation
	// is pending.
	Input string

	// Params is the parameter set the planner extracted.
	Params registry.Params

	// Chain, when non-empty, is an ordered multi-action sequence for this
	// turn. Action/Params are ignored in that case.
	Chain []ChainStep

	// Hints are the planner's classification booleans.
	Hints Hints

	// FocusEntityType and FocusEntityID carry the conversation's current
	// focus entity, when the planner supplies one.
	FocusEntityType string
	FocusEntityID   string

	// VoiceMode indicates the turn arrived through a voice surface.
	VoiceMode bool
}

// ChainStep is one element of an ordered multi-action sequence. Parameter
// values may reference outputs of earlier steps (see resolveStepRefs).
// Aliased from the session package because a halted chain's remainder is
// stored on the pending confirmation.
type ChainStep = session.ChainStep

// State names where an invocation ended up. Informational for callers;
// the engine's behavior is carried by the other Result fields.
type State string

const (
	StateExecuted            State = "executed"
	StateAccepted            State = "accepted" // background action acknowledged
	StateNeedsInput          State = "needs_input"
	StateNeedsApproval       State = "needs_approval"
	StateDenied              State = "denied"
	StateConfirmationExpired State = "confirmation_expired"
	StateNotFound            State = "not_found"
	StateFailed              State = "failed"
)

// Result is the caller-facing contract for one turn.
type Result struct {
	// Success is true when the requested side effect completed (or was
	// replayed from the dedup cache).
	Success bool `json:"success"`

	// State reports where the invocation ended up.
	State State `json:"state"`

	// Data is the action-specific payload.
	Data map[string]any `json:"data,omitempty"`

	// Error is a caller-safe message, set only for not_found and failed.
	Error string `json:"error,omitempty"`

	// RequiresFollowUp is true when the engine is asking a clarifying or
	// confirmation question; the next turn should answer it directly.
	RequiresFollowUp bool `json:"requiresFollowUp,omitempty"`

	// FollowUpPrompt is the question to show the user.
	FollowUpPrompt string `json:"followUpPrompt,omitempty"`

	// MissingFields lists every unsatisfied required and recommended field
	// when State is needs_input.
	MissingFields []string `json:"missingFields,omitempty"`

	// EntityType and EntityID identify the primary entity touched.
	EntityType string `json:"entityType,omitempty"`
	EntityID   string `json:"entityId,omitempty"`

	// JobID is the handle returned by background actions.
	JobID string `json:"jobId,omitempty"`

	// Replayed is true when the idempotency guard returned a cached outcome
	// instead of executing again.
	Replayed bool `json:"replayed,omitempty"`

	// Steps holds per-step results when the turn was a chain.
	Steps []*Result `json:"steps,omitempty"`
}
