// Copyright (C) 2025 Zena Labs (dev@zenahq.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package registry

import (
	"log/slog"
	"sort"
)

// Registry is the statically-typed lookup table of action definitions.
//
// Description:
//
//	Built explicitly at startup (no import-time registration) and treated as
//	read-only afterwards: population happens on a single goroutine before the
//	server starts accepting turns, so lookups need no synchronization.
//
// Thread Safety: Safe for concurrent reads after startup. Register must not
// be called concurrently with Lookup.
type Registry struct {
	actions map[string]*Definition
	logger  *slog.Logger
}

// New creates an empty registry.
//
// Inputs:
//   - logger: Logger for duplicate-registration diagnostics. May be nil.
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		actions: make(map[string]*Definition),
		logger:  logger,
	}
}

// Register inserts an action by its canonical name.
//
// Description:
//
//	Re-registering an existing name replaces the prior definition. That is
//	a supported, deliberate override mechanism (e.g., a deployment swapping
//	a stock action for a customized one) — but it must never happen by
//	accident, so every replacement is logged.
func (r *Registry) Register(def *Definition) {
	if def == nil || def.Name == "" {
		r.logger.Error("registry: refusing to register action without a name")
		return
	}
	if def.Background && def.IdempotencyParts != nil {
		// Background acknowledgments return before the guard is consulted,
		// so a dedup fingerprint on such an action would never be honored.
		r.logger.Error("registry: refusing background action with idempotency parts",
			slog.String("action", def.Name),
		)
		return
	}
	if _, exists := r.actions[def.Name]; exists {
		r.logger.Warn("registry: replacing existing action definition",
			slog.String("action", def.Name),
			slog.String("domain", def.Domain),
		)
	}
	r.actions[def.Name] = def
}

// Lookup returns the definition registered under the exact canonical name.
// Alias resolution happens upstream — the registry never guesses.
func (r *Registry) Lookup(name string) (*Definition, bool) {
	def, ok := r.actions[name]
	return def, ok
}

// Names returns every registered canonical name, sorted. Introspection only.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.actions))
	for name := range r.actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns every registered definition, sorted by name. Introspection only.
func (r *Registry) All() []*Definition {
	defs := make([]*Definition, 0, len(r.actions))
	for _, name := range r.Names() {
		defs = append(defs, r.actions[name])
	}
	return defs
}

// Stats returns the count of registered actions per domain. Used by
// introspection and tests; no behavioral role.
func (r *Registry) Stats() map[string]int {
	stats := make(map[string]int)
	for _, def := range r.actions {
		stats[def.Domain]++
	}
	return stats
}
