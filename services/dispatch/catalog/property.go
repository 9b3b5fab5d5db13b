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
	"github.com/zenahq/zena-actions/services/realty"
)

const entityProperty = "property"

func registerPropertyActions(reg *registry.Registry, deps Deps) {
	reg.Register(&registry.Definition{
		Name:        "property.create",
		Domain:      "property",
		Description: "Create a property listing",
		Schema: registry.Schema{
			Required: []registry.Field{
				{Name: "address", Type: registry.FieldString},
				{Name: "listingPrice", Type: registry.FieldNumber},
			},
			Recommended: []registry.Field{
				{Name: "bedrooms", Type: registry.FieldNumber},
				{Name: "bathrooms", Type: registry.FieldNumber},
				{Name: "squareFeet", Type: registry.FieldNumber},
			},
		},
		Scopes:           []string{"properties:write"},
		RequiresApproval: true,
		Approval:         registry.ApprovalStandard,
		ConfirmationPrompt: func(params registry.Params) string {
			return fmt.Sprintf("Create a listing for %s at %v?",
				stringParam(params, "address"), params["listingPrice"])
		},
		Execute: func(ctx context.Context, params registry.Params, ec registry.ExecContext) (*registry.Outcome, error) {
			fields := fieldsFromParams(params,
				"address", "listingPrice", "bedrooms", "bathrooms", "squareFeet")
			rec, err := deps.Store.Create(ctx, ec.UserID, entityProperty, fields)
			if err != nil {
				return nil, err
			}
			return &registry.Outcome{
				Data:       recordData(rec),
				EntityType: entityProperty,
				EntityID:   rec.ID,
			}, nil
		},
		AuditRecord: func(params registry.Params, out *registry.Outcome) audit.Entry {
			return audit.Entry{
				Action:     "property.create",
				Summary:    summarize("Created", "property", "at "+stringParam(params, "address")),
				EntityType: entityProperty,
				EntityID:   out.EntityID,
			}
		},
	})

	reg.Register(&registry.Definition{
		Name:        "property.update",
		Domain:      "property",
		Description: "Update a property listing",
		Schema: registry.Schema{
			Required: []registry.Field{
				{Name: "propertyId", Type: registry.FieldString},
			},
			Recommended: []registry.Field{
				{Name: "listingPrice", Type: registry.FieldNumber},
			},
		},
		Scopes:   []string{"properties:write"},
		Approval: registry.ApprovalStandard,
		Execute: func(ctx context.Context, params registry.Params, ec registry.ExecContext) (*registry.Outcome, error) {
			id := stringParam(params, "propertyId")
			fields := fieldsFromParams(params,
				"address", "listingPrice", "bedrooms", "bathrooms", "squareFeet")
			rec, err := deps.Store.Update(ctx, ec.UserID, entityProperty, id, fields)
			if err != nil {
				return nil, err
			}
			return &registry.Outcome{
				Data:       recordData(rec),
				EntityType: entityProperty,
				EntityID:   rec.ID,
			}, nil
		},
		AuditRecord: func(params registry.Params, out *registry.Outcome) audit.Entry {
			return audit.Entry{
				Action:     "property.update",
				Summary:    summarize("Updated", "property", ""),
				EntityType: entityProperty,
				EntityID:   out.EntityID,
			}
		},
	})

	reg.Register(&registry.Definition{
		Name:        "property.find",
		Domain:      "property",
		Description: "Find property listings",
		Schema: registry.Schema{
			Recommended: []registry.Field{
				{Name: "address", Type: registry.FieldString},
			},
		},
		Scopes:   []string{"properties:read"},
		Approval: registry.ApprovalNone,
		Execute: func(ctx context.Context, params registry.Params, ec registry.ExecContext) (*registry.Outcome, error) {
			recs, err := deps.Store.Find(ctx, ec.UserID, entityProperty,
				fieldsFromParams(params, "address"), 0)
			if err != nil {
				return nil, err
			}
			return &registry.Outcome{Data: recordsData(recs), EntityType: entityProperty}, nil
		},
	})

	reg.Register(&registry.Definition{
		Name:        "property.archive",
		Domain:      "property",
		Description: "Archive a property listing",
		Schema: registry.Schema{
			Required: []registry.Field{
				{Name: "propertyId", Type: registry.FieldString},
			},
		},
		Scopes:           []string{"properties:write"},
		RequiresApproval: true,
		Approval:         registry.ApprovalStandard,
		ConfirmationPrompt: func(params registry.Params) string {
			return fmt.Sprintf("Archive property %s? It will disappear from active listings.",
				stringParam(params, "propertyId"))
		},
		Execute: func(ctx context.Context, params registry.Params, ec registry.ExecContext) (*registry.Outcome, error) {
			id := stringParam(params, "propertyId")
			prev, err := deps.Store.SetStatus(ctx, ec.UserID, entityProperty, id, realty.StatusArchived)
			if err != nil {
				return nil, err
			}
			// The rollback restores exactly this status.
			return &registry.Outcome{
				Data:       map[string]any{"previousStatus": prev},
				EntityType: entityProperty,
				EntityID:   id,
			}, nil
		},
		Rollback: func(ctx context.Context, params registry.Params, out *registry.Outcome, ec registry.ExecContext) error {
			prev, _ := out.Data["previousStatus"].(string)
			if prev == "" {
				prev = realty.StatusActive
			}
			_, err := deps.Store.SetStatus(ctx, ec.UserID, entityProperty, out.EntityID, prev)
			return err
		},
		AuditRecord: func(params registry.Params, out *registry.Outcome) audit.Entry {
			return audit.Entry{
				Action:     "property.archive",
				Summary:    summarize("Archived", "property", ""),
				EntityType: entityProperty,
				EntityID:   out.EntityID,
			}
		},
	})

	reg.Register(&registry.Definition{
		Name:        "property.export",
		Domain:      "property",
		Description: "Export property listings",
		Schema: registry.Schema{
			Recommended: []registry.Field{
				{Name: "format", Type: registry.FieldString},
			},
		},
		Scopes:     []string{"properties:read"},
		Approval:   registry.ApprovalNone,
		Background: true,
		Execute: func(ctx context.Context, params registry.Params, ec registry.ExecContext) (*registry.Outcome, error) {
			recs, err := deps.Store.Find(ctx, ec.UserID, entityProperty, nil, 0)
			if err != nil {
				return nil, err
			}
			return &registry.Outcome{
				Data:       map[string]any{"exported": len(recs)},
				EntityType: entityProperty,
			}, nil
		},
		AuditRecord: func(params registry.Params, out *registry.Outcome) audit.Entry {
			return audit.Entry{
				Action:  "property.export",
				Summary: summarize("Exported", "properties", ""),
			}
		},
	})
}
