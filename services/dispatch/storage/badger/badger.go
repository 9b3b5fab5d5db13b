// Copyright (C) 2025 Zena Labs (dev@zenahq.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package badger wraps a BadgerDB instance used for the dispatch engine's
// embedded persistence: the audit trail and the idempotency dedup window.
// It is service infrastructure, not user-facing data — embedded storage
// avoids a network dependency and keeps access latency in the microsecond
// range.
//
// Thread Safety:
//
//	All exported types are safe for concurrent use. BadgerDB transactions
//	are per-goroutine.
package badger

import (
	"context"
	"fmt"
	"log/slog"

	dgbadger "github.com/dgraph-io/badger/v4"
)

// Config holds the options needed to open an embedded store.
type Config struct {
	// Path is the directory for the BadgerDB data files. Created if absent.
	Path string

	// InMemory opens the DB without any on-disk state. Used by tests and by
	// deployments that do not configure a data directory.
	InMemory bool

	// Logger receives BadgerDB's internal diagnostics. May be nil.
	Logger *slog.Logger
}

// DefaultConfig returns a Config with conservative defaults. The caller must
// set Path (or InMemory) before passing it to OpenDB.
func DefaultConfig() Config {
	return Config{}
}

// DB is a thin lifecycle wrapper around a BadgerDB instance.
//
// Description:
//
//	The DB is opened once at startup (typically in main) and shared by every
//	store built on top of it. The wrapper owns nothing beyond the handle —
//	callers close it during shutdown.
//
// Thread Safety: Safe for concurrent use.
type DB struct {
	db *dgbadger.DB
}

// OpenDB opens (or creates) a BadgerDB instance at cfg.Path.
//
// Inputs:
//   - cfg: Storage configuration. Either Path or InMemory must be set.
//
// Outputs:
//   - *DB: The opened wrapper.
//   - error: Non-nil if the DB cannot be opened.
func OpenDB(cfg Config) (*DB, error) {
	if cfg.Path == "" && !cfg.InMemory {
		return nil, fmt.Errorf("badger: config requires Path or InMemory")
	}

	opts := dgbadger.DefaultOptions(cfg.Path).
		WithInMemory(cfg.InMemory).
		WithLogger(nil)

	db, err := dgbadger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger: open %q: %w", cfg.Path, err)
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("embedded store opened",
			slog.String("path", cfg.Path),
			slog.Bool("in_memory", cfg.InMemory),
		)
	}
	return &DB{db: db}, nil
}

// WithReadTxn runs fn inside a read-only transaction.
//
// The context is checked before starting the transaction; BadgerDB itself
// does not accept a context, so cancellation mid-transaction is not observed.
func (d *DB) WithReadTxn(ctx context.Context, fn func(txn *dgbadger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.db.View(fn)
}

// WithWriteTxn runs fn inside a read-write transaction.
func (d *DB) WithWriteTxn(ctx context.Context, fn func(txn *dgbadger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.db.Update(fn)
}

// Close flushes and closes the underlying DB. Safe to call once during
// shutdown; the DB must not be used afterwards.
func (d *DB) Close() error {
	return d.db.Close()
}
