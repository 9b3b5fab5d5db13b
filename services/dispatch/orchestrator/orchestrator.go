// Copyright (C) 2025 Zena Labs (dev@zenahq.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/zenahq/zena-actions/services/dispatch/alias"
	"github.com/zenahq/zena-actions/services/dispatch/audit"
	"github.com/zenahq/zena-actions/services/dispatch/idempotency"
	"github.com/zenahq/zena-actions/services/dispatch/registry"
	"github.com/zenahq/zena-actions/services/dispatch/session"
)

var tracer = otel.Tracer("zena.dispatch")

// Config tunes orchestrator policy.
type Config struct {
	// ConfirmationToken is the exact reply destructive actions require.
	// Defaults to "YES".
	ConfirmationToken string
}

// Orchestrator applies the dispatch policy to every turn. All collaborators
// are injected at construction; the orchestrator holds no ambient state
// beyond them.
//
// Thread Safety: Safe for concurrent use. Turns for one (user, conversation)
// serialize on the session's lock; unrelated sessions proceed in parallel.
type Orchestrator struct {
	registry *registry.Registry
	resolver *alias.Resolver
	sessions *session.Store
	guard    *idempotency.Guard
	auditor  *audit.Emitter
	logger   *slog.Logger
	token    string
}

// New wires an orchestrator. Every collaborator is required except logger.
func New(reg *registry.Registry, res *alias.Resolver, sessions *session.Store,
	guard *idempotency.Guard, auditor *audit.Emitter, logger *slog.Logger, cfg Config) *Orchestrator {

	if logger == nil {
		logger = slog.Default()
	}
	token := cfg.ConfirmationToken
	if token == "" {
		token = DefaultConfirmationToken
	}
	return &Orchestrator{
		registry: reg,
		resolver: res,
		sessions: sessions,
		guard:    guard,
		auditor:  auditor,
		logger:   logger,
		token:    token,
	}
}

// Dispatch handles one turn end to end.
//
// Description:
//
//	Acquires the session (serializing against other turns for the same
//	conversation), resolves any pending confirmation, then applies the
//	decision sequence: field completeness → approval gate → idempotency →
//	execution → audit. Short-circuit states (needs_input, needs_approval,
//	denied, confirmation_expired) mutate only the session — no side effect
//	occurs.
//
// Outputs:
//   - *Result: Always non-nil, even alongside an error.
//   - error: Non-nil only for ErrActionNotFound and ErrExecutionFailed.
func (o *Orchestrator) Dispatch(ctx context.Context, req TurnRequest) (*Result, error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "dispatch.Dispatch",
		oteltrace.WithAttributes(
			attribute.String("user_id", req.UserID),
			attribute.String("conversation_id", req.ConversationID),
			attribute.String("candidate_action", req.Action),
			attribute.Int("chain_len", len(req.Chain)),
		),
	)
	defer span.End()

	sess, created := o.sessions.Acquire(req.UserID, req.ConversationID)
	defer sess.End()
	defer sess.Touch()

	if created {
		o.logger.Debug("dispatch: new session",
			slog.String("session_id", sess.ID),
			slog.String("user_id", req.UserID),
		)
	}
	sess.AppendTurn("user", turnText(req))

	res, err := o.dispatchLocked(ctx, sess, req)

	if res.FollowUpPrompt != "" {
		sess.AppendTurn("assistant", res.FollowUpPrompt)
	}

	dispatchTurnsTotal.WithLabelValues(string(res.State)).Inc()
	dispatchTurnLatency.Observe(time.Since(start).Seconds())
	span.SetAttributes(attribute.String("state", string(res.State)))
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	return res, err
}

// dispatchLocked is Dispatch with the session lock held.
func (o *Orchestrator) dispatchLocked(ctx context.Context, sess *session.Session, req TurnRequest) (*Result, error) {
	pending := sess.TakePending(o.sessions.MaxPendingAge())

	// A confirmation lost to eviction or timeout is reported once, never
	// silently skipped and never auto-approved.
	if expired := sess.ConsumeExpired(); expired != nil {
		confirmationsTotal.WithLabelValues("expired").Inc()
		return &Result{
			State:            StateConfirmationExpired,
			RequiresFollowUp: true,
			FollowUpPrompt: fmt.Sprintf(
				"The confirmation for %s expired without an answer, so nothing was done. Ask again if you still want it.",
				humanizeField(expired.Action)),
		}, nil
	}

	if pending != nil {
		if o.isNewIntent(req) {
			// Unrelated intent while awaiting confirmation: discard the stale
			// confirmation (logged) and process the new intent from Idle.
			sess.ClearPending("superseded by new intent")
			confirmationsTotal.WithLabelValues("superseded").Inc()
		} else {
			return o.resolveConfirmation(ctx, sess, req, pending)
		}
	}

	if len(req.Chain) > 0 {
		return o.runChain(ctx, sess, req, req.Chain, nil)
	}

	canonical, def, ok := o.resolveCanonical(req.Action, req.Input)
	if !ok {
		return o.notFound(req)
	}
	return o.invokeStep(ctx, sess, req, stepInvocation{
		canonical: canonical,
		def:       def,
		params:    req.Params,
	})
}

// isNewIntent reports whether the turn starts a new intent rather than
// answering the outstanding confirmation.
func (o *Orchestrator) isNewIntent(req TurnRequest) bool {
	if req.Action != "" || len(req.Chain) > 0 {
		return true
	}
	_, resolved := o.resolver.Resolve(req.Input)
	return resolved
}

// resolveCanonical maps the planner's candidate (or raw text) to a
// registered definition.
func (o *Orchestrator) resolveCanonical(candidate, input string) (string, *registry.Definition, bool) {
	name := candidate
	if name == "" {
		resolved, ok := o.resolver.Resolve(input)
		if !ok {
			return "", nil, false
		}
		name = resolved
	} else if _, exact := o.registry.Lookup(name); !exact {
		resolved, ok := o.resolver.Resolve(name)
		if !ok {
			return "", nil, false
		}
		name = resolved
	}

	def, ok := o.registry.Lookup(name)
	if !ok {
		return "", nil, false
	}
	return name, def, true
}

// notFound builds the ActionNotFound escalation.
func (o *Orchestrator) notFound(req TurnRequest) (*Result, error) {
	o.logger.Info("dispatch: capability not available",
		slog.String("candidate", req.Action),
		slog.String("user_id", req.UserID),
	)
	return &Result{
		State: StateNotFound,
		Error: "that capability is not available",
	}, ErrActionNotFound
}

// stepInvocation carries one action invocation through the gate sequence.
type stepInvocation struct {
	canonical string
	def       *registry.Definition
	params    registry.Params

	// approvalConfirmed is true only when this invocation resumes from a
	// validated confirmation.
	approvalConfirmed bool

	// remainder and completed carry chain context for halting and rollback.
	remainder []ChainStep
	completed []session.CompletedStep
}

// invokeStep applies field completeness, the approval gate, and execution
// for a single action.
func (o *Orchestrator) invokeStep(ctx context.Context, sess *session.Session, req TurnRequest, inv stepInvocation) (*Result, error) {
	ctx, span := tracer.Start(ctx, "dispatch.invoke",
		oteltrace.WithAttributes(
			attribute.String("action", inv.canonical),
			attribute.String("approval", inv.def.Approval.String()),
		),
	)
	defer span.End()

	// Merge parameters accumulated from a prior unanswered follow-up for
	// the same intent, with this turn's values winning.
	merged := registry.Params{}
	for k, v := range sess.TakeIntent(inv.canonical) {
		merged[k] = v
	}
	for k, v := range inv.params {
		merged[k] = v
	}

	// 1. Field completeness. Missing required fields short-circuit before
	// any execution; the accumulated parameters persist on the session so
	// the next answer merges instead of restarting.
	missingReq, missingRec := inv.def.Schema.Missing(merged)
	if len(missingReq) > 0 {
		sess.RememberIntent(inv.canonical, merged)
		span.SetAttributes(attribute.Int("missing_required", len(missingReq)))
		return &Result{
			State:            StateNeedsInput,
			RequiresFollowUp: true,
			MissingFields:    append(append([]string{}, missingReq...), missingRec...),
			FollowUpPrompt: fmt.Sprintf("To %s I still need the %s.",
				describeAction(inv.def), humanizeFieldList(missingReq)),
		}, nil
	}

	// 2. Approval gate.
	if o.needsApproval(sess, req, inv, missingRec) {
		prompt := o.confirmationPrompt(inv.def, merged)
		sess.SetPending(&session.PendingConfirmation{
			Action:    inv.canonical,
			Params:    merged,
			Prompt:    prompt,
			Approval:  inv.def.Approval,
			CreatedAt: time.Now(),
			Remainder: inv.remainder,
			Completed: inv.completed,
		})
		return &Result{
			State:            StateNeedsApproval,
			RequiresFollowUp: true,
			FollowUpPrompt:   prompt,
		}, nil
	}

	// 3–4. Idempotency and execution.
	return o.execute(ctx, sess, req, inv.def, merged, inv.approvalConfirmed)
}

// needsApproval decides whether the gate demands a confirmation turn.
//
// Destructive actions always confirm — auto-execute mode and planner hints
// never bypass them. Standard actions auto-execute only when every
// condition the policy names holds; the hint booleans come from the planner
// as given and are not re-derived here.
func (o *Orchestrator) needsApproval(sess *session.Session, req TurnRequest, inv stepInvocation, missingRec []string) bool {
	if inv.approvalConfirmed {
		return false
	}
	switch inv.def.Approval {
	case registry.ApprovalDestructive:
		return true
	case registry.ApprovalStandard:
		auto := !inv.def.RequiresApproval ||
			len(missingRec) == 0 ||
			req.Hints.IsUpdate ||
			req.Hints.ExplicitCreate ||
			sess.AutoExecute
		return !auto
	default:
		return false
	}
}

// confirmationPrompt renders the approval question, with a safe fallback
// for definitions that omit a generator.
func (o *Orchestrator) confirmationPrompt(def *registry.Definition, params registry.Params) string {
	prompt := ""
	if def.ConfirmationPrompt != nil {
		prompt = def.ConfirmationPrompt(params)
	}
	if prompt == "" {
		prompt = fmt.Sprintf("Do you want me to %s?", describeAction(def))
	}
	if def.Approval == registry.ApprovalDestructive {
		prompt += fmt.Sprintf(" Reply %s to confirm.", o.token)
	}
	return prompt
}

// resolveConfirmation handles a turn that answers a pending confirmation.
func (o *Orchestrator) resolveConfirmation(ctx context.Context, sess *session.Session, req TurnRequest, pending *session.PendingConfirmation) (*Result, error) {
	var verdict confirmVerdict
	if pending.Approval == registry.ApprovalDestructive {
		verdict = classifyDestructiveReply(req.Input, o.token)
	} else {
		verdict = classifyStandardReply(req.Input)
	}

	switch verdict {
	case verdictInsufficient:
		// Affirmative in spirit but not the exact token a destructive
		// action demands. The confirmation stays pending.
		confirmationsTotal.WithLabelValues("reprompted").Inc()
		return &Result{
			State:            StateNeedsApproval,
			RequiresFollowUp: true,
			FollowUpPrompt: fmt.Sprintf("This needs an exact confirmation: reply %s to %s, or anything else to cancel.",
				o.token, humanizeField(pending.Action)),
		}, nil

	case verdictDenied:
		sess.ClearPending("denied by user")
		confirmationsTotal.WithLabelValues("denied").Inc()
		return &Result{
			State: StateDenied,
			Data:  map[string]any{"message": "Cancelled — nothing was changed."},
		}, nil
	}

	// Validated confirmation.
	sess.ClearPending("confirmed by user")
	confirmationsTotal.WithLabelValues("confirmed").Inc()

	def, ok := o.registry.Lookup(pending.Action)
	if !ok {
		// The definition disappeared between turns; treat as not found
		// rather than executing something else.
		return o.notFound(TurnRequest{Action: pending.Action, UserID: req.UserID})
	}

	res, err := o.invokeStep(ctx, sess, req, stepInvocation{
		canonical:         pending.Action,
		def:               def,
		params:            pending.Params,
		approvalConfirmed: true,
		remainder:         pending.Remainder,
		completed:         pending.Completed,
	})
	if err != nil || !res.Success {
		return res, err
	}

	// The confirmed step was part of a halted chain: resume the remainder.
	if len(pending.Remainder) > 0 {
		completed := append(pending.Completed, session.CompletedStep{
			Action:  pending.Action,
			Params:  pending.Params,
			Outcome: outcomeFromResult(res),
		})
		chainRes, chainErr := o.runChain(ctx, sess, req, pending.Remainder, completed)
		chainRes.Steps = append([]*Result{res}, chainRes.Steps...)
		return chainRes, chainErr
	}
	return res, nil
}

// execute runs the action through the idempotency guard, emits the audit
// record, and shapes the caller-facing result.
func (o *Orchestrator) execute(ctx context.Context, sess *session.Session, req TurnRequest, def *registry.Definition, params registry.Params, approvalConfirmed bool) (*Result, error) {
	ec := registry.ExecContext{
		UserID:            req.UserID,
		SessionID:         sess.ID,
		ConversationID:    req.ConversationID,
		ApprovalConfirmed: approvalConfirmed,
		FocusEntityType:   req.FocusEntityType,
		FocusEntityID:     req.FocusEntityID,
		VoiceMode:         req.VoiceMode,
	}

	if def.Background {
		return o.acceptBackground(ctx, def, params, ec), nil
	}

	key := ""
	if def.IdempotencyParts != nil {
		parts := append([]string{def.Name, ec.UserID}, def.IdempotencyParts(params)...)
		key = idempotency.Key(parts...)
	}

	out, replayed, err := o.guard.Execute(ctx, key, func() (*registry.Outcome, error) {
		return def.Execute(ctx, params, ec)
	})
	if err != nil {
		o.logger.Error("dispatch: execution failed",
			slog.String("action", def.Name),
			slog.String("user_id", req.UserID),
			slog.String("error", err.Error()),
		)
		return &Result{
			State: StateFailed,
			Error: fmt.Sprintf("could not %s right now — it is safe to try again", describeAction(def)),
		}, fmt.Errorf("%w: %s", ErrExecutionFailed, def.Name)
	}

	if replayed {
		idempotencyReplaysTotal.Inc()
	} else {
		o.auditor.Emit(ctx, o.auditRecord(def, params, out, req.UserID))
	}

	return resultFromOutcome(out, replayed), nil
}

// acceptBackground acknowledges a long-running action without awaiting it.
// Completion is delivered through a notification channel outside this core.
func (o *Orchestrator) acceptBackground(ctx context.Context, def *registry.Definition, params registry.Params, ec registry.ExecContext) *Result {
	jobID := uuid.New().String()
	bg := context.WithoutCancel(ctx)

	go func() {
		out, err := def.Execute(bg, params, ec)
		if err != nil {
			o.logger.Error("dispatch: background action failed",
				slog.String("action", def.Name),
				slog.String("job_id", jobID),
				slog.String("error", err.Error()),
			)
			return
		}
		if out == nil {
			out = &registry.Outcome{}
		}
		out.JobID = jobID
		o.auditor.Emit(bg, o.auditRecord(def, params, out, ec.UserID))
	}()

	o.logger.Info("dispatch: background action accepted",
		slog.String("action", def.Name),
		slog.String("job_id", jobID),
	)
	return &Result{
		Success: true,
		State:   StateAccepted,
		JobID:   jobID,
	}
}

// auditRecord formats the compliance entry, with a generic fallback when
// the definition has no formatter.
func (o *Orchestrator) auditRecord(def *registry.Definition, params registry.Params, out *registry.Outcome, userID string) audit.Entry {
	if def.AuditRecord != nil {
		entry := def.AuditRecord(params, out)
		if entry.UserID == "" {
			entry.UserID = userID
		}
		if entry.Action == "" {
			entry.Action = def.Name
		}
		return entry
	}
	entry := audit.Entry{
		Action:  def.Name,
		Summary: def.Description,
		UserID:  userID,
	}
	if out != nil {
		entry.EntityType = out.EntityType
		entry.EntityID = out.EntityID
	}
	return entry
}

// describeAction produces a short verb phrase for prompts, preferring the
// definition's description.
func describeAction(def *registry.Definition) string {
	if def.Description != "" {
		return lowerFirst(def.Description)
	}
	return humanizeField(def.Name)
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	if r[0] >= 'A' && r[0] <= 'Z' {
		r[0] = r[0] - 'A' + 'a'
	}
	return string(r)
}

// resultFromOutcome shapes an execution outcome for the caller.
func resultFromOutcome(out *registry.Outcome, replayed bool) *Result {
	res := &Result{
		Success:  true,
		State:    StateExecuted,
		Replayed: replayed,
	}
	if out != nil {
		res.Data = out.Data
		res.EntityType = out.EntityType
		res.EntityID = out.EntityID
		res.JobID = out.JobID
	}
	return res
}

// outcomeFromResult rebuilds the outcome view a chain successor needs.
func outcomeFromResult(res *Result) *registry.Outcome {
	return &registry.Outcome{
		Data:       res.Data,
		EntityType: res.EntityType,
		EntityID:   res.EntityID,
		JobID:      res.JobID,
	}
}

// turnText renders the turn for history purposes.
func turnText(req TurnRequest) string {
	if req.Input != "" {
		return req.Input
	}
	if req.Action != "" {
		return req.Action
	}
	if len(req.Chain) > 0 {
		return fmt.Sprintf("(chain of %d actions)", len(req.Chain))
	}
	return ""
}
