// Copyright (C) 2025 Zena Labs (dev@zenahq.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Prometheus Metrics
// =============================================================================

var (
	dispatchTurnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "zena",
		Subsystem: "dispatch",
		Name:      "turns_total",
		Help:      "Dispatched turns by terminal state: executed, accepted, needs_input, needs_approval, denied, confirmation_expired, not_found, failed",
	}, []string{"state"})

	dispatchTurnLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "zena",
		Subsystem: "dispatch",
		Name:      "turn_latency_seconds",
		Help:      "End-to-end latency of one dispatched turn",
		Buckets:   []float64{0.001, 0.005, 0.025, 0.1, 0.5, 1.0, 2.5, 5.0},
	})

	confirmationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "zena",
		Subsystem: "dispatch",
		Name:      "confirmations_total",
		Help:      "Confirmation resolutions by outcome: confirmed, denied, reprompted, expired, superseded",
	}, []string{"outcome"})

	idempotencyReplaysTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "zena",
		Subsystem: "dispatch",
		Name:      "idempotency_replays_total",
		Help:      "Invocations answered from the dedup cache instead of executing",
	})

	rollbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "zena",
		Subsystem: "dispatch",
		Name:      "rollbacks_total",
		Help:      "Rollback attempts by outcome: ok, failed",
	}, []string{"outcome"})
)
