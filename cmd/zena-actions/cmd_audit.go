// Copyright (C) 2025 Zena Labs (dev@zenahq.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/zenahq/zena-actions/services/dispatch/audit"
	"github.com/zenahq/zena-actions/services/dispatch/config"
	badgerstore "github.com/zenahq/zena-actions/services/dispatch/storage/badger"
)

func newAuditCmd() *cobra.Command {
	var userID string
	var action string
	var since string
	var limit int
	var dataDir string

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Query the persisted audit trail",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if userID == "" {
				return fmt.Errorf("--user is required")
			}

			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if dataDir != "" {
				cfg.DataDir = dataDir
			}
			if cfg.DataDir == "" {
				return fmt.Errorf("no data directory configured; pass --data-dir or set ZENA_DATA_DIR")
			}

			logger := slog.New(slog.DiscardHandler)

			dbCfg := badgerstore.DefaultConfig()
			dbCfg.Path = cfg.DataDir
			dbCfg.Logger = logger
			db, err := badgerstore.OpenDB(dbCfg)
			if err != nil {
				return fmt.Errorf("opening %q: %w", cfg.DataDir, err)
			}
			defer db.Close()

			query := audit.Query{UserID: userID, Action: action, Limit: limit}
			if since != "" {
				ts, err := time.Parse(time.RFC3339, since)
				if err != nil {
					return fmt.Errorf("--since must be RFC 3339: %w", err)
				}
				query.Since = ts
			}

			trail := audit.NewBadgerTrail(db, logger)
			entries, err := trail.Find(cmd.Context(), query)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(entries)
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "User whose trail to query (required)")
	cmd.Flags().StringVar(&action, "action", "", "Filter to one canonical action name")
	cmd.Flags().StringVar(&since, "since", "", "RFC 3339 lower bound on entry time")
	cmd.Flags().IntVar(&limit, "limit", 100, "Maximum entries to return")
	cmd.Flags().StringVar(&dataDir, "data-dir", "", "Storage directory (overrides config)")
	return cmd
}
