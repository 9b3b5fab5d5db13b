// Copyright (C) 2025 Zena Labs (dev@zenahq.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package realty is the downstream entity data service the action catalog
// calls into: create/find/update/delete scoped to the owning user, plus a
// send/notify operation. The dispatch engine depends only on this package's
// result contract, never on how records are persisted.
package realty

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Entity status values. Archive flips Active to Archived; its rollback
// restores whatever status the record had before.
const (
	StatusActive   = "active"
	StatusArchived = "archived"
)

// ErrNotFound is returned when a record does not exist for the owner.
var ErrNotFound = errors.New("realty: record not found")

// Record is one user-owned entity (property, contact, deal, …).
type Record struct {
	ID        string
	Type      string
	OwnerID   string
	Status    string
	Fields    map[string]any
	CreatedAt time.Time
	UpdatedAt time.Time
}

// clone returns a deep-enough copy so callers cannot mutate store state.
func (r *Record) clone() *Record {
	fields := make(map[string]any, len(r.Fields))
	for k, v := range r.Fields {
		fields[k] = v
	}
	out := *r
	out.Fields = fields
	return &out
}

// Store is the narrow per-entity contract the action catalog consumes.
//
// Implementations must be safe for concurrent use and must scope every
// operation to ownerID — one user can never touch another's records.
type Store interface {
	Create(ctx context.Context, ownerID, entityType string, fields map[string]any) (*Record, error)
	Get(ctx context.Context, ownerID, entityType, id string) (*Record, error)
	Update(ctx context.Context, ownerID, entityType, id string, fields map[string]any) (*Record, error)
	SetStatus(ctx context.Context, ownerID, entityType, id, status string) (prev string, err error)
	Delete(ctx context.Context, ownerID, entityType, id string) error
	Find(ctx context.Context, ownerID, entityType string, filter map[string]any, limit int) ([]*Record, error)
}

// MemoryStore is the in-process Store used by single-instance deployments
// and tests.
//
// Thread Safety: Safe for concurrent use via sync.Mutex.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*Record // key: ownerID/entityType/id
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Record)}
}

func recordKey(ownerID, entityType, id string) string {
	return ownerID + "/" + entityType + "/" + id
}

// Create inserts a new active record and returns its copy.
func (m *MemoryStore) Create(_ context.Context, ownerID, entityType string, fields map[string]any) (*Record, error) {
	if ownerID == "" || entityType == "" {
		return nil, fmt.Errorf("realty: create requires owner and entity type")
	}

	now := time.Now()
	rec := &Record{
		ID:        uuid.New().String(),
		Type:      entityType,
		OwnerID:   ownerID,
		Status:    StatusActive,
		Fields:    make(map[string]any, len(fields)),
		CreatedAt: now,
		UpdatedAt: now,
	}
	for k, v := range fields {
		rec.Fields[k] = v
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[recordKey(ownerID, entityType, rec.ID)] = rec
	return rec.clone(), nil
}

// Get returns a copy of the record, or ErrNotFound.
func (m *MemoryStore) Get(_ context.Context, ownerID, entityType, id string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[recordKey(ownerID, entityType, id)]
	if !ok {
		return nil, ErrNotFound
	}
	return rec.clone(), nil
}

// Update merges fields into an existing record.
func (m *MemoryStore) Update(_ context.Context, ownerID, entityType, id string, fields map[string]any) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[recordKey(ownerID, entityType, id)]
	if !ok {
		return nil, ErrNotFound
	}
	for k, v := range fields {
		rec.Fields[k] = v
	}
	rec.UpdatedAt = time.Now()
	return rec.clone(), nil
}

// SetStatus changes the lifecycle status and returns the previous value,
// which archive rollbacks restore verbatim.
func (m *MemoryStore) SetStatus(_ context.Context, ownerID, entityType, id, status string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[recordKey(ownerID, entityType, id)]
	if !ok {
		return "", ErrNotFound
	}
	prev := rec.Status
	rec.Status = status
	rec.UpdatedAt = time.Now()
	return prev, nil
}

// Delete removes the record permanently.
func (m *MemoryStore) Delete(_ context.Context, ownerID, entityType, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := recordKey(ownerID, entityType, id)
	if _, ok := m.records[key]; !ok {
		return ErrNotFound
	}
	delete(m.records, key)
	return nil
}

// Find returns copies of the owner's records of one type whose fields match
// the filter. String comparisons are case-insensitive substring matches;
// everything else compares for equality.
func (m *MemoryStore) Find(_ context.Context, ownerID, entityType string, filter map[string]any, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = 50
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	prefix := ownerID + "/" + entityType + "/"
	var out []*Record
	for key, rec := range m.records {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		if matchesFilter(rec, filter) {
			out = append(out, rec.clone())
		}
		if len(out) >= limit {
			break
		}
	}
	if out == nil {
		out = []*Record{}
	}
	return out, nil
}

func matchesFilter(rec *Record, filter map[string]any) bool {
	for k, want := range filter {
		got, ok := rec.Fields[k]
		if !ok {
			return false
		}
		wantStr, wantIsStr := want.(string)
		gotStr, gotIsStr := got.(string)
		if wantIsStr && gotIsStr {
			if !strings.Contains(strings.ToLower(gotStr), strings.ToLower(wantStr)) {
				return false
			}
			continue
		}
		if got != want {
			return false
		}
	}
	return true
}
