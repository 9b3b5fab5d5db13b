// Copyright (C) 2025 Zena Labs (dev@zenahq.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package catalog registers the built-in realty actions: the per-entity
// create/update/find/delete/send operations the dispatch engine invokes on
// behalf of the assistant. Each definition declares its schema, approval
// tier, idempotency fingerprint, rollback, and audit formatting; the entity
// work itself is delegated to the realty service.
package catalog

import (
	"fmt"
	"strings"

	"github.com/zenahq/zena-actions/services/dispatch/registry"
	"github.com/zenahq/zena-actions/services/realty"
)

// Deps are the downstream collaborators the catalog's execution steps call.
type Deps struct {
	Store    realty.Store
	Notifier realty.Notifier
}

// Register installs every built-in action into the registry. Called once at
// startup, before the server accepts turns.
func Register(reg *registry.Registry, deps Deps) {
	registerPropertyActions(reg, deps)
	registerContactActions(reg, deps)
	registerDealActions(reg, deps)
	registerCommsActions(reg, deps)
}

// stringParam returns the trimmed string value of a parameter, or "".
func stringParam(params registry.Params, key string) string {
	if v, ok := params[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

// fieldsFromParams copies the named parameters that are present into an
// entity field map.
func fieldsFromParams(params registry.Params, names ...string) map[string]any {
	fields := make(map[string]any)
	for _, name := range names {
		v, ok := params[name]
		if !ok || v == nil {
			continue
		}
		if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
			continue
		}
		fields[name] = v
	}
	return fields
}

// recordData shapes a realty record for a result payload.
func recordData(rec *realty.Record) map[string]any {
	data := map[string]any{
		"id":     rec.ID,
		"status": rec.Status,
	}
	for k, v := range rec.Fields {
		data[k] = v
	}
	return data
}

// recordsData shapes a find result.
func recordsData(recs []*realty.Record) map[string]any {
	items := make([]map[string]any, len(recs))
	for i, rec := range recs {
		items[i] = recordData(rec)
	}
	return map[string]any{"count": len(recs), "items": items}
}

// summarize builds a short audit summary like "Created property at 1 Main St".
func summarize(verb, entity, detail string) string {
	if detail == "" {
		return fmt.Sprintf("%s %s", verb, entity)
	}
	return fmt.Sprintf("%s %s %s", verb, entity, detail)
}
