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

const entityContact = "contact"

func registerContactActions(reg *registry.Registry, deps Deps) {
	reg.Register(&registry.Definition{
		Name:        "contact.create",
		Domain:      "contact",
		Description: "Add a contact",
		Schema: registry.Schema{
			Required: []registry.Field{
				{Name: "name", Type: registry.FieldString},
			},
			Recommended: []registry.Field{
				{Name: "email", Type: registry.FieldString},
				{Name: "phone", Type: registry.FieldString},
			},
		},
		Scopes:           []string{"contacts:write"},
		RequiresApproval: true,
		Approval:         registry.ApprovalStandard,
		ConfirmationPrompt: func(params registry.Params) string {
			return fmt.Sprintf("Add %s to your contacts?", stringParam(params, "name"))
		},
		Execute: func(ctx context.Context, params registry.Params, ec registry.ExecContext) (*registry.Outcome, error) {
			fields := fieldsFromParams(params, "name", "email", "phone", "company")
			rec, err := deps.Store.Create(ctx, ec.UserID, entityContact, fields)
			if err != nil {
				return nil, err
			}
			return &registry.Outcome{
				Data:       recordData(rec),
				EntityType: entityContact,
				EntityID:   rec.ID,
			}, nil
		},
		AuditRecord: func(params registry.Params, out *registry.Outcome) audit.Entry {
			return audit.Entry{
				Action:     "contact.create",
				Summary:    summarize("Added", "contact", stringParam(params, "name")),
				EntityType: entityContact,
				EntityID:   out.EntityID,
			}
		},
	})

	reg.Register(&registry.Definition{
		Name:        "contact.update",
		Domain:      "contact",
		Description: "Update a contact",
		Schema: registry.Schema{
			Required: []registry.Field{
				{Name: "contactId", Type: registry.FieldString},
			},
		},
		Scopes:   []string{"contacts:write"},
		Approval: registry.ApprovalStandard,
		Execute: func(ctx context.Context, params registry.Params, ec registry.ExecContext) (*registry.Outcome, error) {
			id := stringParam(params, "contactId")
			fields := fieldsFromParams(params, "name", "email", "phone", "company")
			rec, err := deps.Store.Update(ctx, ec.UserID, entityContact, id, fields)
			if err != nil {
				return nil, err
			}
			return &registry.Outcome{
				Data:       recordData(rec),
				EntityType: entityContact,
				EntityID:   rec.ID,
			}, nil
		},
		AuditRecord: func(params registry.Params, out *registry.Outcome) audit.Entry {
			return audit.Entry{
				Action:     "contact.update",
				Summary:    summarize("Updated", "contact", ""),
				EntityType: entityContact,
				EntityID:   out.EntityID,
			}
		},
	})

	reg.Register(&registry.Definition{
		Name:        "contact.find",
		Domain:      "contact",
		Description: "Find contacts",
		Schema: registry.Schema{
			Recommended: []registry.Field{
				{Name: "name", Type: registry.FieldString},
			},
		},
		Scopes:   []string{"contacts:read"},
		Approval: registry.ApprovalNone,
		Execute: func(ctx context.Context, params registry.Params, ec registry.ExecContext) (*registry.Outcome, error) {
			recs, err := deps.Store.Find(ctx, ec.UserID, entityContact,
				fieldsFromParams(params, "name"), 0)
			if err != nil {
				return nil, err
			}
			return &registry.Outcome{Data: recordsData(recs), EntityType: entityContact}, nil
		},
	})
}
