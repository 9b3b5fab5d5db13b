// Copyright (C) 2025 Zena Labs (dev@zenahq.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package registry holds the canonical action definitions the dispatch
// engine can invoke. Definitions are registered once at startup and never
// mutated afterwards; the registry itself is a pure lookup table with no
// behavior beyond registration and retrieval.
package registry

import (
	"context"

	"github.com/zenahq/zena-actions/services/dispatch/audit"
)

// ApprovalType classifies how much user confirmation an action demands
// before its execution step may run.
type ApprovalType int

const (
	// ApprovalNone means the action may execute without any confirmation.
	ApprovalNone ApprovalType = iota

	// ApprovalStandard means a lightweight "are you sure" is required unless
	// the auto-execute gate clears the invocation.
	ApprovalStandard

	// ApprovalDestructive means an exact, explicit confirmation token is
	// required. Deletions and sends fall here. Never auto-executed.
	ApprovalDestructive
)

// String returns the human-readable name of the approval type.
func (a ApprovalType) String() string {
	switch a {
	case ApprovalNone:
		return "none"
	case ApprovalStandard:
		return "standard"
	case ApprovalDestructive:
		return "destructive"
	default:
		return "unknown"
	}
}

// Params is the parameter set extracted for one invocation. Values come from
// the upstream planner and from answers accumulated across follow-up turns.
type Params map[string]any

// Clone returns a shallow copy. Callers that merge turn parameters into
// session state must not alias the original map.
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// ExecContext is the transient per-invocation context handed to an action's
// execution step. Created fresh each turn; never persisted.
type ExecContext struct {
	// UserID is the acting user.
	UserID string

	// SessionID identifies the dispatch session.
	SessionID string

	// ConversationID identifies the conversation within the session key.
	ConversationID string

	// ApprovalConfirmed is true only when the current turn is a validated
	// confirmation response. Execution steps of destructive actions must
	// treat false as a bug.
	ApprovalConfirmed bool

	// FocusEntityType and FocusEntityID describe the entity the conversation
	// is currently "about", when the planner supplies one.
	FocusEntityType string
	FocusEntityID   string

	// VoiceMode indicates the turn arrived through a voice surface; prompt
	// generators may shorten their output accordingly.
	VoiceMode bool
}

// Outcome is what an execution step produced. It is cached by the
// idempotency guard and formatted into the caller-facing result.
type Outcome struct {
	// Data is the action-specific payload returned to the caller.
	Data map[string]any `json:"data,omitempty"`

	// EntityType and EntityID identify the primary entity touched, if any.
	EntityType string `json:"entityType,omitempty"`
	EntityID   string `json:"entityId,omitempty"`

	// JobID is set by background actions that return an immediate
	// acknowledgment; completion is delivered out of band.
	JobID string `json:"jobId,omitempty"`
}

// Definition is one canonical, immutable action. All function fields are
// invoked by the orchestrator only; entity services never see a Definition.
type Definition struct {
	// Name is the unique canonical identifier in "domain.verb" form.
	Name string

	// Domain groups related actions (e.g., "property", "deal").
	Domain string

	// Description is a human summary used by introspection surfaces.
	Description string

	// Schema declares required and recommended parameters.
	Schema Schema

	// Scopes are the permission scopes the acting user must hold.
	Scopes []string

	// RequiresApproval marks actions that want an "are you sure" even when
	// all required fields are present. Ignored for destructive actions,
	// which always confirm.
	RequiresApproval bool

	// Approval is the confirmation tier.
	Approval ApprovalType

	// Background marks long-running actions. They return an accepted
	// acknowledgment and a job handle rather than completing inline, which
	// bypasses the idempotency guard: a definition may declare Background
	// or IdempotencyParts, never both. Register rejects the combination.
	Background bool

	// ConfirmationPrompt renders the question shown to the user when this
	// action needs approval. Must not be nil when Approval != ApprovalNone.
	ConfirmationPrompt func(params Params) string

	// IdempotencyParts returns the ordered string parts fingerprinting an
	// invocation, or nil when the action opts out of deduplication.
	IdempotencyParts func(params Params) []string

	// Execute performs the side effect. It is the only function here allowed
	// to touch downstream entity services.
	Execute func(ctx context.Context, params Params, ec ExecContext) (*Outcome, error)

	// Rollback undoes a completed execution, when the action is reversible.
	// Nil for irreversible actions.
	Rollback func(ctx context.Context, params Params, out *Outcome, ec ExecContext) error

	// AuditRecord formats the compliance record for a successful execution.
	AuditRecord func(params Params, out *Outcome) audit.Entry
}
