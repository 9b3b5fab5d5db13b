// Copyright (C) 2025 Zena Labs (dev@zenahq.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package audit records what the dispatch engine did on behalf of a user.
// Entries are append-only and flow to two sinks: structured slog output
// (trace-correlated) and an optional embedded trail store queryable by
// user, action, or entity.
//
// Auditing is never on the critical path for correctness: a failure to
// persist an entry is logged and swallowed — it does not roll back or fail
// the action that triggered it.
//
// Thread Safety:
//
//	All exported types are safe for concurrent use unless documented
//	otherwise.
package audit

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// Entry is one immutable audit record for an executed action.
//
// Thread Safety: Entry is a value type. Safe to copy.
type Entry struct {
	// Action is the canonical action name (e.g., "deal.delete").
	Action string `json:"action"`

	// Summary is a human-readable description of what happened
	// (e.g., "Deleted deal").
	Summary string `json:"summary"`

	// EntityType is the kind of entity acted upon, if any.
	EntityType string `json:"entityType,omitempty"`

	// EntityID identifies the entity acted upon, if any.
	EntityID string `json:"entityId,omitempty"`

	// Metadata carries optional structured detail about the invocation.
	Metadata map[string]any `json:"metadata,omitempty"`

	// Timestamp is when the action completed (Unix milliseconds UTC).
	Timestamp int64 `json:"timestamp"`

	// UserID is the acting user.
	UserID string `json:"userId"`
}

// ErrNoTrail is returned by Find when the emitter runs in log-only mode.
var ErrNoTrail = errors.New("audit: no trail store configured")

// Query filters trail lookups. Zero-value fields match everything.
type Query struct {
	UserID     string
	Action     string
	EntityType string
	EntityID   string
	Since      time.Time
	Limit      int
}

// TrailStore persists audit entries and answers queries over them.
//
// Implementations must be safe for concurrent use. The emitter treats every
// Append error as non-fatal.
type TrailStore interface {
	Append(ctx context.Context, entry Entry) error
	Find(ctx context.Context, q Query) ([]Entry, error)
}

// Emitter writes audit entries to slog and to an optional trail store.
//
// Description:
//
//	Each emitted entry is logged with trace correlation (trace_id/span_id
//	when a span is active). If a trail store is configured, the entry is
//	also appended there; append failures are logged as warnings and never
//	surfaced to the caller.
//
// Thread Safety: Safe for concurrent use.
type Emitter struct {
	logger *slog.Logger
	trail  TrailStore
}

// NewEmitter creates an audit emitter.
//
// Inputs:
//   - logger: Structured logger for audit output. Must not be nil.
//   - trail: Optional persistent trail. May be nil (log-only mode).
//
// Outputs:
//   - *Emitter: Configured emitter.
func NewEmitter(logger *slog.Logger, trail TrailStore) *Emitter {
	return &Emitter{logger: logger, trail: trail}
}

// Emit records an audit entry. Never fails the triggering action.
//
// Inputs:
//   - ctx: Context carrying trace information.
//   - entry: The record to emit. Timestamp is filled in if zero.
func (e *Emitter) Emit(ctx context.Context, entry Entry) {
	if entry.Timestamp == 0 {
		entry.Timestamp = time.Now().UnixMilli()
	}

	logger := e.loggerWithTrace(ctx)

	attrs := []any{
		slog.String("event", "action_audit"),
		slog.String("action", entry.Action),
		slog.String("summary", entry.Summary),
		slog.String("user_id", entry.UserID),
		slog.Int64("timestamp", entry.Timestamp),
	}
	if entry.EntityType != "" {
		attrs = append(attrs, slog.String("entity_type", entry.EntityType))
	}
	if entry.EntityID != "" {
		attrs = append(attrs, slog.String("entity_id", entry.EntityID))
	}
	logger.Info("action executed", attrs...)

	if e.trail == nil {
		return
	}
	if err := e.trail.Append(ctx, entry); err != nil {
		logger.Warn("audit trail append failed",
			slog.String("action", entry.Action),
			slog.String("user_id", entry.UserID),
			slog.String("error", err.Error()),
		)
	}
}

// Find queries the trail store. Returns ErrNoTrail when the emitter runs
// in log-only mode.
func (e *Emitter) Find(ctx context.Context, q Query) ([]Entry, error) {
	if e.trail == nil {
		return nil, ErrNoTrail
	}
	return e.trail.Find(ctx, q)
}

// loggerWithTrace returns a logger enriched with trace context.
func (e *Emitter) loggerWithTrace(ctx context.Context) *slog.Logger {
	spanCtx := trace.SpanContextFromContext(ctx)
	if !spanCtx.IsValid() {
		return e.logger
	}
	return e.logger.With(
		slog.String("trace_id", spanCtx.TraceID().String()),
		slog.String("span_id", spanCtx.SpanID().String()),
	)
}
