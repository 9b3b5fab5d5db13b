// Copyright (C) 2025 Zena Labs (dev@zenahq.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package dispatch wires the action engine together and exposes it over
// HTTP: registry + alias resolver + session store + idempotency guard +
// audit emitter, orchestrated per turn.
package dispatch

import (
	"context"
	"log/slog"

	"github.com/zenahq/zena-actions/services/dispatch/alias"
	"github.com/zenahq/zena-actions/services/dispatch/audit"
	"github.com/zenahq/zena-actions/services/dispatch/catalog"
	"github.com/zenahq/zena-actions/services/dispatch/config"
	"github.com/zenahq/zena-actions/services/dispatch/idempotency"
	"github.com/zenahq/zena-actions/services/dispatch/orchestrator"
	"github.com/zenahq/zena-actions/services/dispatch/registry"
	"github.com/zenahq/zena-actions/services/dispatch/session"
	badgerstore "github.com/zenahq/zena-actions/services/dispatch/storage/badger"
	"github.com/zenahq/zena-actions/services/realty"
)

// Service bundles the engine collaborators behind a single construction
// point so cmd wiring and tests build the same graph.
type Service struct {
	Registry     *registry.Registry
	Resolver     *alias.Resolver
	Sessions     *session.Store
	Guard        *idempotency.Guard
	Auditor      *audit.Emitter
	Orchestrator *orchestrator.Orchestrator

	logger *slog.Logger
}

// Deps are the externally owned collaborators. DB may be nil, in which
// case the audit trail and dedup window live in process memory only.
type Deps struct {
	Logger   *slog.Logger
	DB       *badgerstore.DB
	Store    realty.Store
	Notifier realty.Notifier
}

// NewService builds the full engine graph from configuration.
//
// Description: constructs the alias resolver from the embedded dictionary,
// registers the action catalog, and selects persistent or in-memory
// backends for the audit trail and idempotency window based on whether a
// database handle was supplied.
// Inputs: cfg - validated service configuration. deps - collaborators.
// Outputs: the assembled service, or an error if the alias dictionary is
// inconsistent.
func NewService(cfg config.Config, deps Deps) (*Service, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	resolver, err := alias.NewResolver(logger)
	if err != nil {
		return nil, err
	}

	reg := registry.New(logger)
	catalog.Register(reg, catalog.Deps{Store: deps.Store, Notifier: deps.Notifier})

	sessCfg := session.DefaultStoreConfig()
	sessCfg.TTL = cfg.SessionTTL
	sessCfg.MaxPendingAge = cfg.MaxPendingAge
	sessCfg.Logger = logger
	sessions := session.NewStore(sessCfg)

	var dedup idempotency.Store
	var trail audit.TrailStore
	if deps.DB != nil {
		dedup = idempotency.NewBadgerStore(deps.DB)
		trail = audit.NewBadgerTrail(deps.DB, logger)
	} else {
		dedup = idempotency.NewMemoryStore()
	}
	guard := idempotency.NewGuard(dedup, cfg.DedupWindow, logger)
	auditor := audit.NewEmitter(logger, trail)

	orch := orchestrator.New(reg, resolver, sessions, guard, auditor, logger,
		orchestrator.Config{ConfirmationToken: cfg.ConfirmationToken})

	return &Service{
		Registry:     reg,
		Resolver:     resolver,
		Sessions:     sessions,
		Guard:        guard,
		Auditor:      auditor,
		Orchestrator: orch,
		logger:       logger,
	}, nil
}

// StartEviction launches the background session sweeper. The sweeper stops
// when ctx is cancelled.
func (s *Service) StartEviction(ctx context.Context) {
	s.Sessions.StartEviction(ctx)
}
