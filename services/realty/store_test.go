// Copyright (C) 2025 Zena Labs (dev@zenahq.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package realty

import (
	"context"
	"errors"
	"log/slog"
	"testing"
)

func TestMemoryStore_CreateAndGet(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	rec, err := store.Create(ctx, "u1", "property", map[string]any{
		"address":      "12 Harbor Lane",
		"listingPrice": 450000,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if rec.ID == "" {
		t.Fatal("Create returned empty ID")
	}
	if rec.Status != StatusActive {
		t.Errorf("status = %q, want %q", rec.Status, StatusActive)
	}

	got, err := store.Get(ctx, "u1", "property", rec.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Fields["address"] != "12 Harbor Lane" {
		t.Errorf("address = %v", got.Fields["address"])
	}
}

func TestMemoryStore_CreateRejectsMissingOwner(t *testing.T) {
	store := NewMemoryStore()

	if _, err := store.Create(context.Background(), "", "property", nil); err == nil {
		t.Fatal("Create without owner must fail")
	}
	if _, err := store.Create(context.Background(), "u1", "", nil); err == nil {
		t.Fatal("Create without entity type must fail")
	}
}

func TestMemoryStore_OwnerScoping(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	rec, err := store.Create(ctx, "u1", "deal", map[string]any{"name": "Lakeside"})
	if err != nil {
		t.Fatal(err)
	}

	// Another user cannot read, update, or delete u1's record.
	if _, err := store.Get(ctx, "u2", "deal", rec.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("cross-owner Get = %v, want ErrNotFound", err)
	}
	if _, err := store.Update(ctx, "u2", "deal", rec.ID, map[string]any{"name": "x"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("cross-owner Update = %v, want ErrNotFound", err)
	}
	if err := store.Delete(ctx, "u2", "deal", rec.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("cross-owner Delete = %v, want ErrNotFound", err)
	}

	// The record is untouched.
	got, err := store.Get(ctx, "u1", "deal", rec.ID)
	if err != nil || got.Fields["name"] != "Lakeside" {
		t.Fatalf("record damaged by cross-owner calls: %v %v", got, err)
	}
}

func TestMemoryStore_UpdateMergesFields(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	rec, _ := store.Create(ctx, "u1", "contact", map[string]any{
		"name":  "Dana Reyes",
		"email": "dana@example.com",
	})

	got, err := store.Update(ctx, "u1", "contact", rec.ID, map[string]any{
		"phone": "555-0101",
		"email": "dana.reyes@example.com",
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.Fields["name"] != "Dana Reyes" {
		t.Errorf("untouched field lost: name = %v", got.Fields["name"])
	}
	if got.Fields["email"] != "dana.reyes@example.com" {
		t.Errorf("email = %v", got.Fields["email"])
	}
	if got.Fields["phone"] != "555-0101" {
		t.Errorf("phone = %v", got.Fields["phone"])
	}
}

func TestMemoryStore_SetStatusReturnsPrevious(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	rec, _ := store.Create(ctx, "u1", "property", nil)

	prev, err := store.SetStatus(ctx, "u1", "property", rec.ID, StatusArchived)
	if err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	if prev != StatusActive {
		t.Errorf("prev = %q, want %q", prev, StatusActive)
	}

	// Restoring the previous status is exactly what archive rollback does.
	prev, err = store.SetStatus(ctx, "u1", "property", rec.ID, prev)
	if err != nil || prev != StatusArchived {
		t.Fatalf("restore: prev=%q err=%v", prev, err)
	}

	got, _ := store.Get(ctx, "u1", "property", rec.ID)
	if got.Status != StatusActive {
		t.Errorf("status after restore = %q", got.Status)
	}
}

func TestMemoryStore_DeleteIsPermanent(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	rec, _ := store.Create(ctx, "u1", "deal", nil)
	if err := store.Delete(ctx, "u1", "deal", rec.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Get(ctx, "u1", "deal", rec.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after delete = %v, want ErrNotFound", err)
	}
	if err := store.Delete(ctx, "u1", "deal", rec.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete = %v, want ErrNotFound", err)
	}
}

func TestMemoryStore_FindSubstringFilter(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	store.Create(ctx, "u1", "contact", map[string]any{"name": "Dana Reyes"})
	store.Create(ctx, "u1", "contact", map[string]any{"name": "Daniel Okafor"})
	store.Create(ctx, "u1", "contact", map[string]any{"name": "Mei Lin"})
	store.Create(ctx, "u2", "contact", map[string]any{"name": "Dana Smith"})

	got, err := store.Find(ctx, "u1", "contact", map[string]any{"name": "dan"}, 0)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Find(dan) returned %d records, want 2", len(got))
	}
	for _, rec := range got {
		if rec.OwnerID != "u1" {
			t.Errorf("record owned by %q leaked into u1's results", rec.OwnerID)
		}
	}
}

func TestMemoryStore_FindNonStringEquality(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	store.Create(ctx, "u1", "deal", map[string]any{"stage": 2})
	store.Create(ctx, "u1", "deal", map[string]any{"stage": 3})

	got, err := store.Find(ctx, "u1", "deal", map[string]any{"stage": 3}, 0)
	if err != nil || len(got) != 1 {
		t.Fatalf("Find(stage=3): got %d, err=%v", len(got), err)
	}

	// Missing field never matches.
	got, _ = store.Find(ctx, "u1", "deal", map[string]any{"closeDate": "2026"}, 0)
	if len(got) != 0 {
		t.Errorf("filter on absent field matched %d records", len(got))
	}
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	rec, _ := store.Create(ctx, "u1", "note", map[string]any{"body": "original"})
	rec.Fields["body"] = "mutated"

	got, _ := store.Get(ctx, "u1", "note", rec.ID)
	if got.Fields["body"] != "original" {
		t.Errorf("caller mutation leaked into store: body = %v", got.Fields["body"])
	}
}

func TestLogNotifier_CountsPerOwnerAndKind(t *testing.T) {
	n := NewLogNotifier(slog.New(slog.DiscardHandler))
	ctx := context.Background()

	id, err := n.Send(ctx, "u1", "reminder", map[string]any{"message": "call Dana"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if id == "" {
		t.Error("Send returned empty delivery ID")
	}
	n.Send(ctx, "u1", "reminder", nil)
	n.Send(ctx, "u1", "message", nil)
	n.Send(ctx, "u2", "reminder", nil)

	if got := n.SentCount("u1", "reminder"); got != 2 {
		t.Errorf("SentCount(u1, reminder) = %d, want 2", got)
	}
	if got := n.SentCount("u1", "message"); got != 1 {
		t.Errorf("SentCount(u1, message) = %d, want 1", got)
	}
	if got := n.SentCount("u2", "message"); got != 0 {
		t.Errorf("SentCount(u2, message) = %d, want 0", got)
	}
}
