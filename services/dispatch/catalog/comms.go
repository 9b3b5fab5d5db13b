// Copyright (C) 2025 Zena Labs (dev@zenahq.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package catalog

import (
	"context"
	"fmt"

	"github.com/zenahq/zena-actions/services/dispatch/audit"
	"github.com/zenahq/zena-actions/services/dispatch/registry"
)

const (
	entityReminder = "reminder"
	entityNote     = "note"
	entityTask     = "task"
	entityMessage  = "message"
)

func registerCommsActions(reg *registry.Registry, deps Deps) {
	reg.Register(&registry.Definition{
		Name:        "reminder.create",
		Domain:      "reminder",
		Description: "Create a reminder",
		Schema: registry.Schema{
			Required: []registry.Field{
				{Name: "about", Type: registry.FieldString},
				{Name: "date", Type: registry.FieldDate},
			},
		},
		Scopes:   []string{"reminders:write"},
		Approval: registry.ApprovalNone,
		Execute: func(ctx context.Context, params registry.Params, ec registry.ExecContext) (*registry.Outcome, error) {
			fields := fieldsFromParams(params, "about", "date")
			rec, err := deps.Store.Create(ctx, ec.UserID, entityReminder, fields)
			if err != nil {
				return nil, err
			}
			return &registry.Outcome{
				Data:       recordData(rec),
				EntityType: entityReminder,
				EntityID:   rec.ID,
			}, nil
		},
		AuditRecord: func(params registry.Params, out *registry.Outcome) audit.Entry {
			return audit.Entry{
				Action:     "reminder.create",
				Summary:    summarize("Created", "reminder", "about "+stringParam(params, "about")),
				EntityType: entityReminder,
				EntityID:   out.EntityID,
			}
		},
	})

	// Reminder sends go to the user themselves, so the standard tier with
	// auto-execute applies; the idempotency fingerprint is what protects
	// against duplicate deliveries.
	reg.Register(&registry.Definition{
		Name:        "reminder.send",
		Domain:      "reminder",
		Description: "Send a reminder",
		Schema: registry.Schema{
			Required: []registry.Field{
				{Name: "threadId", Type: registry.FieldString},
				{Name: "date", Type: registry.FieldDate},
			},
			Recommended: []registry.Field{
				{Name: "message", Type: registry.FieldString},
			},
		},
		Scopes:   []string{"reminders:write"},
		Approval: registry.ApprovalStandard,
		IdempotencyParts: func(params registry.Params) []string {
			return []string{stringParam(params, "threadId"), stringParam(params, "date")}
		},
		Execute: func(ctx context.Context, params registry.Params, ec registry.ExecContext) (*registry.Outcome, error) {
			payload := fieldsFromParams(params, "threadId", "date", "message")
			deliveryID, err := deps.Notifier.Send(ctx, ec.UserID, entityReminder, payload)
			if err != nil {
				return nil, err
			}
			return &registry.Outcome{
				Data:       map[string]any{"deliveryId": deliveryID},
				EntityType: entityReminder,
				EntityID:   deliveryID,
			}, nil
		},
		AuditRecord: func(params registry.Params, out *registry.Outcome) audit.Entry {
			return audit.Entry{
				Action:     "reminder.send",
				Summary:    summarize("Sent", "reminder", ""),
				EntityType: entityReminder,
				EntityID:   out.EntityID,
			}
		},
	})

	// Outbound messages leave the user's workspace: destructive tier, exact
	// confirmation token required.
	reg.Register(&registry.Definition{
		Name:        "message.send",
		Domain:      "message",
		Description: "Send a message",
		Schema: registry.Schema{
			Required: []registry.Field{
				{Name: "to", Type: registry.FieldString},
				{Name: "body", Type: registry.FieldString},
			},
		},
		Scopes:   []string{"messages:send"},
		Approval: registry.ApprovalDestructive,
		ConfirmationPrompt: func(params registry.Params) string {
			return fmt.Sprintf("Send this message to %s?", stringParam(params, "to"))
		},
		IdempotencyParts: func(params registry.Params) []string {
			return []string{stringParam(params, "to"), stringParam(params, "body")}
		},
		Execute: func(ctx context.Context, params registry.Params, ec registry.ExecContext) (*registry.Outcome, error) {
			payload := fieldsFromParams(params, "to", "body")
			deliveryID, err := deps.Notifier.Send(ctx, ec.UserID, entityMessage, payload)
			if err != nil {
				return nil, err
			}
			return &registry.Outcome{
				Data:       map[string]any{"deliveryId": deliveryID},
				EntityType: entityMessage,
				EntityID:   deliveryID,
			}, nil
		},
		AuditRecord: func(params registry.Params, out *registry.Outcome) audit.Entry {
			return audit.Entry{
				Action:     "message.send",
				Summary:    summarize("Sent", "message", "to "+stringParam(params, "to")),
				EntityType: entityMessage,
				EntityID:   out.EntityID,
			}
		},
	})

	reg.Register(&registry.Definition{
		Name:        "note.create",
		Domain:      "note",
		Description: "Log a note",
		Schema: registry.Schema{
			Required: []registry.Field{
				{Name: "content", Type: registry.FieldString},
			},
		},
		Scopes:   []string{"notes:write"},
		Approval: registry.ApprovalNone,
		Execute: func(ctx context.Context, params registry.Params, ec registry.ExecContext) (*registry.Outcome, error) {
			fields := fieldsFromParams(params, "content", "entityType", "entityId")
			rec, err := deps.Store.Create(ctx, ec.UserID, entityNote, fields)
			if err != nil {
				return nil, err
			}
			return &registry.Outcome{
				Data:       recordData(rec),
				EntityType: entityNote,
				EntityID:   rec.ID,
			}, nil
		},
	})

	reg.Register(&registry.Definition{
		Name:        "note.find",
		Domain:      "note",
		Description: "Find notes",
		Schema:      registry.Schema{},
		Scopes:      []string{"notes:read"},
		Approval:    registry.ApprovalNone,
		Execute: func(ctx context.Context, params registry.Params, ec registry.ExecContext) (*registry.Outcome, error) {
			recs, err := deps.Store.Find(ctx, ec.UserID, entityNote, nil, 0)
			if err != nil {
				return nil, err
			}
			return &registry.Outcome{Data: recordsData(recs), EntityType: entityNote}, nil
		},
	})

	reg.Register(&registry.Definition{
		Name:        "task.create",
		Domain:      "task",
		Description: "Create a follow-up task",
		Schema: registry.Schema{
			Required: []registry.Field{
				{Name: "title", Type: registry.FieldString},
			},
			Recommended: []registry.Field{
				{Name: "dueDate", Type: registry.FieldDate},
			},
		},
		Scopes:   []string{"tasks:write"},
		Approval: registry.ApprovalStandard,
		Execute: func(ctx context.Context, params registry.Params, ec registry.ExecContext) (*registry.Outcome, error) {
			fields := fieldsFromParams(params, "title", "dueDate", "entityType", "entityId")
			rec, err := deps.Store.Create(ctx, ec.UserID, entityTask, fields)
			if err != nil {
				return nil, err
			}
			return &registry.Outcome{
				Data:       recordData(rec),
				EntityType: entityTask,
				EntityID:   rec.ID,
			}, nil
		},
		AuditRecord: func(params registry.Params, out *registry.Outcome) audit.Entry {
			return audit.Entry{
				Action:     "task.create",
				Summary:    summarize("Created", "task", stringParam(params, "title")),
				EntityType: entityTask,
				EntityID:   out.EntityID,
			}
		},
	})

	reg.Register(&registry.Definition{
		Name:        "task.update",
		Domain:      "task",
		Description: "Update a task",
		Schema: registry.Schema{
			Required: []registry.Field{
				{Name: "taskId", Type: registry.FieldString},
			},
		},
		Scopes:   []string{"tasks:write"},
		Approval: registry.ApprovalStandard,
		Execute: func(ctx context.Context, params registry.Params, ec registry.ExecContext) (*registry.Outcome, error) {
			id := stringParam(params, "taskId")
			fields := fieldsFromParams(params, "title", "dueDate", "done")
			rec, err := deps.Store.Update(ctx, ec.UserID, entityTask, id, fields)
			if err != nil {
				return nil, err
			}
			return &registry.Outcome{
				Data:       recordData(rec),
				EntityType: entityTask,
				EntityID:   rec.ID,
			}, nil
		},
	})
}
