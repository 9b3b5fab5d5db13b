// Copyright (C) 2025 Zena Labs (dev@zenahq.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package realty

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Notifier delivers outbound messages and reminders. Sends are side effects
// the dispatch engine must never duplicate, which is why every send action
// declares idempotency parts.
type Notifier interface {
	// Send delivers one message and returns its delivery ID.
	Send(ctx context.Context, ownerID, kind string, payload map[string]any) (string, error)
}

// LogNotifier is the in-process Notifier: it logs each delivery and counts
// sends per (owner, kind), which tests use to assert exactly-once behavior.
//
// Thread Safety: Safe for concurrent use.
type LogNotifier struct {
	mu     sync.Mutex
	counts map[string]int
	logger *slog.Logger
}

// NewLogNotifier creates a notifier that records deliveries in memory.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{counts: make(map[string]int), logger: logger}
}

// Send logs the delivery and returns a fresh delivery ID.
func (n *LogNotifier) Send(_ context.Context, ownerID, kind string, payload map[string]any) (string, error) {
	n.mu.Lock()
	n.counts[ownerID+"/"+kind]++
	n.mu.Unlock()

	id := uuid.New().String()
	n.logger.Info("notification sent",
		slog.String("owner_id", ownerID),
		slog.String("kind", kind),
		slog.String("delivery_id", id),
		slog.Int("payload_fields", len(payload)),
	)
	return id, nil
}

// SentCount returns how many sends of a kind happened for an owner.
func (n *LogNotifier) SentCount(ownerID, kind string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.counts[ownerID+"/"+kind]
}
