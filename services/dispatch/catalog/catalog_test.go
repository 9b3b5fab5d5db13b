// Copyright (C) 2025 Zena Labs (dev@zenahq.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package catalog

import (
	"context"
	"log/slog"
	"testing"

	"github.com/zenahq/zena-actions/services/dispatch/registry"
	"github.com/zenahq/zena-actions/services/realty"
)

func newTestCatalog(t *testing.T) (*registry.Registry, *realty.MemoryStore, *realty.LogNotifier) {
	t.Helper()
	reg := registry.New(slog.New(slog.DiscardHandler))
	store := realty.NewMemoryStore()
	notifier := realty.NewLogNotifier(slog.New(slog.DiscardHandler))
	Register(reg, Deps{Store: store, Notifier: notifier})
	return reg, store, notifier
}

func TestRegister_AllActionsPresent(t *testing.T) {
	reg, _, _ := newTestCatalog(t)

	want := []string{
		"property.create", "property.update", "property.find", "property.archive", "property.export",
		"contact.create", "contact.update", "contact.find",
		"deal.create", "deal.update", "deal.find", "deal.delete",
		"reminder.create", "reminder.send",
		"message.send",
		"note.create", "note.find",
		"task.create", "task.update",
	}
	for _, name := range want {
		if _, ok := reg.Lookup(name); !ok {
			t.Errorf("action %q not registered", name)
		}
	}
	if got := len(reg.Names()); got != len(want) {
		t.Errorf("registry holds %d actions, want %d", got, len(want))
	}
}

func TestRegister_ApprovalTiers(t *testing.T) {
	reg, _, _ := newTestCatalog(t)

	tiers := map[string]registry.ApprovalType{
		"property.find":   registry.ApprovalNone,
		"note.create":     registry.ApprovalNone,
		"property.create": registry.ApprovalStandard,
		"contact.create":  registry.ApprovalStandard,
		"reminder.send":   registry.ApprovalStandard,
		"deal.delete":     registry.ApprovalDestructive,
		"message.send":    registry.ApprovalDestructive,
	}
	for name, want := range tiers {
		def, ok := reg.Lookup(name)
		if !ok {
			t.Fatalf("action %q not registered", name)
		}
		if def.Approval != want {
			t.Errorf("%s approval = %v, want %v", name, def.Approval, want)
		}
	}
}

func TestRegister_DestructiveActionsHavePrompts(t *testing.T) {
	reg, _, _ := newTestCatalog(t)

	for _, name := range reg.Names() {
		def, _ := reg.Lookup(name)
		if def.Approval == registry.ApprovalDestructive && def.ConfirmationPrompt == nil {
			t.Errorf("%s is destructive but has no confirmation prompt", name)
		}
	}
}

func TestRegister_SendActionsDeclareIdempotency(t *testing.T) {
	reg, _, _ := newTestCatalog(t)

	reminder, _ := reg.Lookup("reminder.send")
	if reminder.IdempotencyParts == nil {
		t.Fatal("reminder.send has no idempotency fingerprint")
	}
	parts := reminder.IdempotencyParts(registry.Params{"threadId": "t-1", "date": "2026-09-01"})
	if len(parts) != 2 || parts[0] != "t-1" || parts[1] != "2026-09-01" {
		t.Errorf("reminder.send parts = %v", parts)
	}

	message, _ := reg.Lookup("message.send")
	if message.IdempotencyParts == nil {
		t.Fatal("message.send has no idempotency fingerprint")
	}
	parts = message.IdempotencyParts(registry.Params{"to": "dana@example.com", "body": "hi"})
	if len(parts) != 2 || parts[0] != "dana@example.com" || parts[1] != "hi" {
		t.Errorf("message.send parts = %v", parts)
	}
}

func TestRegister_ExportRunsInBackground(t *testing.T) {
	reg, _, _ := newTestCatalog(t)

	def, _ := reg.Lookup("property.export")
	if !def.Background {
		t.Error("property.export must be a background action")
	}
}

func TestPropertyArchive_RollbackRestoresStatus(t *testing.T) {
	reg, store, _ := newTestCatalog(t)
	ctx := context.Background()

	rec, err := store.Create(ctx, "u1", "property", map[string]any{"address": "12 Harbor Lane"})
	if err != nil {
		t.Fatal(err)
	}

	def, _ := reg.Lookup("property.archive")
	ec := registry.ExecContext{UserID: "u1"}
	params := registry.Params{"propertyId": rec.ID}

	out, err := def.Execute(ctx, params, ec)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out.Data["previousStatus"] != realty.StatusActive {
		t.Errorf("previousStatus = %v", out.Data["previousStatus"])
	}

	got, _ := store.Get(ctx, "u1", "property", rec.ID)
	if got.Status != realty.StatusArchived {
		t.Fatalf("status after archive = %q", got.Status)
	}

	if err := def.Rollback(ctx, params, out, ec); err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	got, _ = store.Get(ctx, "u1", "property", rec.ID)
	if got.Status != realty.StatusActive {
		t.Errorf("status after rollback = %q, want %q", got.Status, realty.StatusActive)
	}
}

func TestDealDelete_AuditSummary(t *testing.T) {
	reg, store, _ := newTestCatalog(t)
	ctx := context.Background()

	rec, _ := store.Create(ctx, "u1", "deal", map[string]any{"propertyAddress": "12 Harbor Lane"})

	def, _ := reg.Lookup("deal.delete")
	params := registry.Params{"dealId": rec.ID}
	out, err := def.Execute(ctx, params, registry.ExecContext{UserID: "u1"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	entry := def.AuditRecord(params, out)
	if entry.Summary != "Deleted deal" {
		t.Errorf("audit summary = %q", entry.Summary)
	}
	if entry.EntityID != rec.ID {
		t.Errorf("audit entity = %q, want %q", entry.EntityID, rec.ID)
	}
}

func TestReminderSend_DeliversThroughNotifier(t *testing.T) {
	reg, _, notifier := newTestCatalog(t)
	ctx := context.Background()

	def, _ := reg.Lookup("reminder.send")
	out, err := def.Execute(ctx,
		registry.Params{"threadId": "t-1", "date": "2026-09-01", "message": "call Dana"},
		registry.ExecContext{UserID: "u1"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out.Data["deliveryId"] == "" {
		t.Error("no delivery ID returned")
	}
	if got := notifier.SentCount("u1", "reminder"); got != 1 {
		t.Errorf("SentCount = %d, want 1", got)
	}
}
