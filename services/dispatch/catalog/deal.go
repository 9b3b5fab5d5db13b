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

const entityDeal = "deal"

func registerDealActions(reg *registry.Registry, deps Deps) {
	reg.Register(&registry.Definition{
		Name:        "deal.create",
		Domain:      "deal",
		Description: "Create a deal",
		Schema: registry.Schema{
			Required: []registry.Field{
				{Name: "propertyAddress", Type: registry.FieldString},
			},
			Recommended: []registry.Field{
				{Name: "amount", Type: registry.FieldNumber},
				{Name: "stage", Type: registry.FieldString},
				{Name: "clientName", Type: registry.FieldString},
			},
		},
		Scopes:           []string{"deals:write"},
		RequiresApproval: true,
		Approval:         registry.ApprovalStandard,
		ConfirmationPrompt: func(params registry.Params) string {
			return fmt.Sprintf("Open a deal for %s?", stringParam(params, "propertyAddress"))
		},
		Execute: func(ctx context.Context, params registry.Params, ec registry.ExecContext) (*registry.Outcome, error) {
			fields := fieldsFromParams(params, "propertyAddress", "amount", "stage", "clientName")
			rec, err := deps.Store.Create(ctx, ec.UserID, entityDeal, fields)
			if err != nil {
				return nil, err
			}
			return &registry.Outcome{
				Data:       recordData(rec),
				EntityType: entityDeal,
				EntityID:   rec.ID,
			}, nil
		},
		AuditRecord: func(params registry.Params, out *registry.Outcome) audit.Entry {
			return audit.Entry{
				Action:     "deal.create",
				Summary:    summarize("Created", "deal", "for "+stringParam(params, "propertyAddress")),
				EntityType: entityDeal,
				EntityID:   out.EntityID,
			}
		},
	})

	reg.Register(&registry.Definition{
		Name:        "deal.update",
		Domain:      "deal",
		Description: "Update a deal",
		Schema: registry.Schema{
			Required: []registry.Field{
				{Name: "dealId", Type: registry.FieldString},
			},
		},
		Scopes:   []string{"deals:write"},
		Approval: registry.ApprovalStandard,
		Execute: func(ctx context.Context, params registry.Params, ec registry.ExecContext) (*registry.Outcome, error) {
			id := stringParam(params, "dealId")
			fields := fieldsFromParams(params, "amount", "stage", "clientName")
			rec, err := deps.Store.Update(ctx, ec.UserID, entityDeal, id, fields)
			if err != nil {
				return nil, err
			}
			return &registry.Outcome{
				Data:       recordData(rec),
				EntityType: entityDeal,
				EntityID:   rec.ID,
			}, nil
		},
		AuditRecord: func(params registry.Params, out *registry.Outcome) audit.Entry {
			return audit.Entry{
				Action:     "deal.update",
				Summary:    summarize("Updated", "deal", ""),
				EntityType: entityDeal,
				EntityID:   out.EntityID,
			}
		},
	})

	reg.Register(&registry.Definition{
		Name:        "deal.find",
		Domain:      "deal",
		Description: "Find deals",
		Schema: registry.Schema{
			Recommended: []registry.Field{
				{Name: "stage", Type: registry.FieldString},
			},
		},
		Scopes:   []string{"deals:read"},
		Approval: registry.ApprovalNone,
		Execute: func(ctx context.Context, params registry.Params, ec registry.ExecContext) (*registry.Outcome, error) {
			recs, err := deps.Store.Find(ctx, ec.UserID, entityDeal,
				fieldsFromParams(params, "stage"), 0)
			if err != nil {
				return nil, err
			}
			return &registry.Outcome{Data: recordsData(recs), EntityType: entityDeal}, nil
		},
	})

	reg.Register(&registry.Definition{
		Name:        "deal.delete",
		Domain:      "deal",
		Description: "Delete a deal",
		Schema: registry.Schema{
			Required: []registry.Field{
				{Name: "dealId", Type: registry.FieldString},
			},
		},
		Scopes:   []string{"deals:write"},
		Approval: registry.ApprovalDestructive,
		ConfirmationPrompt: func(params registry.Params) string {
			return fmt.Sprintf("Permanently delete deal %s? This cannot be undone.",
				stringParam(params, "dealId"))
		},
		Execute: func(ctx context.Context, params registry.Params, ec registry.ExecContext) (*registry.Outcome, error) {
			id := stringParam(params, "dealId")
			if err := deps.Store.Delete(ctx, ec.UserID, entityDeal, id); err != nil {
				return nil, err
			}
			return &registry.Outcome{
				Data:       map[string]any{"deleted": true},
				EntityType: entityDeal,
				EntityID:   id,
			}, nil
		},
		AuditRecord: func(params registry.Params, out *registry.Outcome) audit.Entry {
			return audit.Entry{
				Action:     "deal.delete",
				Summary:    "Deleted deal",
				EntityType: entityDeal,
				EntityID:   out.EntityID,
			}
		},
	})
}
