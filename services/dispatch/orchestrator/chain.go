// Copyright (C) 2025 Zena Labs (dev@zenahq.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package orchestrator

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/zenahq/zena-actions/services/dispatch/registry"
	"github.com/zenahq/zena-actions/services/dispatch/session"
)

// stepRefPrefix marks a parameter value that references an earlier step's
// output: "$step.0.entityId", "$step.1.data.address".
const stepRefPrefix = "$step."

// runChain executes an ordered action sequence in strict dependency order.
//
// Description:
//
//	Identifiers produced by earlier steps thread into later parameters via
//	$step references. The chain halts — without skipping ahead — at the
//	first step requiring confirmation (the remainder rides on the pending
//	confirmation and resumes after a validated reply) or missing input.
//	When a later step fails after earlier ones completed, the completed
//	steps are rolled back in reverse order; rollback failures are logged,
//	never surfaced in place of the original error.
func (o *Orchestrator) runChain(ctx context.Context, sess *session.Session, req TurnRequest,
	steps []ChainStep, completed []session.CompletedStep) (*Result, error) {

	parent := &Result{}

	for i, step := range steps {
		canonical, def, ok := o.resolveCanonical(step.Action, "")
		if !ok {
			o.rollbackCompleted(ctx, req, completed)
			res, err := o.notFound(TurnRequest{Action: step.Action, UserID: req.UserID})
			parent.Steps = append(parent.Steps, res)
			parent.State = res.State
			parent.Error = res.Error
			return parent, err
		}

		params := o.resolveStepRefs(step.Params, completed)

		res, err := o.invokeStep(ctx, sess, req, stepInvocation{
			canonical: canonical,
			def:       def,
			params:    params,
			remainder: steps[i+1:],
			completed: completed,
		})
		parent.Steps = append(parent.Steps, res)

		switch res.State {
		case StateNeedsApproval, StateNeedsInput:
			// Halted. For approval the remainder is parked on the pending
			// confirmation; for missing input the user answers and the
			// planner replans the rest.
			parent.State = res.State
			parent.RequiresFollowUp = true
			parent.FollowUpPrompt = res.FollowUpPrompt
			parent.MissingFields = res.MissingFields
			return parent, nil

		case StateFailed:
			o.rollbackCompleted(ctx, req, completed)
			parent.State = res.State
			parent.Error = res.Error
			return parent, err
		}

		completed = append(completed, session.CompletedStep{
			Action:  canonical,
			Params:  params,
			Outcome: outcomeFromResult(res),
		})
	}

	parent.Success = true
	parent.State = StateExecuted
	if n := len(parent.Steps); n > 0 {
		last := parent.Steps[n-1]
		parent.Data = last.Data
		parent.EntityType = last.EntityType
		parent.EntityID = last.EntityID
		parent.JobID = last.JobID
	}
	return parent, nil
}

// resolveStepRefs replaces $step.<idx>.<field> parameter values with the
// referenced output of a completed step. Unresolvable references become nil
// (logged), which the field-completeness check then reports as missing
// rather than executing with a dangling placeholder.
func (o *Orchestrator) resolveStepRefs(params registry.Params, completed []session.CompletedStep) registry.Params {
	out := make(registry.Params, len(params))
	for k, v := range params {
		ref, isRef := v.(string)
		if !isRef || !strings.HasPrefix(ref, stepRefPrefix) {
			out[k] = v
			continue
		}
		resolved, ok := lookupStepRef(ref, completed)
		if !ok {
			o.logger.Warn("dispatch: unresolvable step reference",
				slog.String("param", k),
				slog.String("ref", ref),
			)
			out[k] = nil
			continue
		}
		out[k] = resolved
	}
	return out
}

// lookupStepRef extracts a field from a completed step's outcome.
func lookupStepRef(ref string, completed []session.CompletedStep) (any, bool) {
	rest := strings.TrimPrefix(ref, stepRefPrefix)
	idxStr, field, found := strings.Cut(rest, ".")
	if !found {
		return nil, false
	}
	idx, err := strconv.Atoi(idxStr)
	if err != nil || idx < 0 || idx >= len(completed) {
		return nil, false
	}
	out := completed[idx].Outcome
	if out == nil {
		return nil, false
	}

	switch {
	case field == "entityId":
		return out.EntityID, out.EntityID != ""
	case field == "entityType":
		return out.EntityType, out.EntityType != ""
	case field == "jobId":
		return out.JobID, out.JobID != ""
	case strings.HasPrefix(field, "data."):
		v, ok := out.Data[strings.TrimPrefix(field, "data.")]
		return v, ok
	default:
		return nil, false
	}
}

// rollbackCompleted undoes completed chain steps in reverse order. Only
// actions that declare a rollback step participate; failures are logged and
// counted, never escalated in place of the original failure.
func (o *Orchestrator) rollbackCompleted(ctx context.Context, req TurnRequest, completed []session.CompletedStep) {
	ec := registry.ExecContext{
		UserID:         req.UserID,
		ConversationID: req.ConversationID,
	}
	for i := len(completed) - 1; i >= 0; i-- {
		step := completed[i]
		def, ok := o.registry.Lookup(step.Action)
		if !ok || def.Rollback == nil {
			continue
		}
		if err := def.Rollback(ctx, step.Params, step.Outcome, ec); err != nil {
			rollbacksTotal.WithLabelValues("failed").Inc()
			o.logger.Error("dispatch: rollback failed",
				slog.String("action", step.Action),
				slog.String("error", err.Error()),
			)
			continue
		}
		rollbacksTotal.WithLabelValues("ok").Inc()
		o.logger.Info("dispatch: rolled back completed step",
			slog.String("action", step.Action),
		)
	}
}
