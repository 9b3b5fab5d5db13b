// Copyright (C) 2025 Zena Labs (dev@zenahq.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command zena-actions runs the Zena action dispatch server.
//
// The dispatch engine turns conversational intents into executed actions:
// alias resolution, required-field checks, confirmation gates for risky
// actions, duplicate suppression, and an audit trail of everything done.
//
// Usage:
//
//	go run ./cmd/zena-actions serve
//	go run ./cmd/zena-actions serve --port 9090 --data-dir ~/.zena/data
//	go run ./cmd/zena-actions actions
//	go run ./cmd/zena-actions audit --user u-123 --since 2025-01-01T00:00:00Z
//
// Example requests:
//
//	# Health check
//	curl http://localhost:8080/healthz
//
//	# List the action catalog
//	curl http://localhost:8080/v1/dispatch/actions | jq
//
//	# Run a turn
//	curl -X POST http://localhost:8080/v1/dispatch/turn \
//	  -H "Content-Type: application/json" \
//	  -d '{"userId": "u-123", "conversationId": "c-1", "action": "add_contact", "params": {"name": "Dana"}}'
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// configPath holds the --config flag shared by all subcommands.
var configPath string

func main() {
	root := &cobra.Command{
		Use:           "zena-actions",
		Short:         "Zena action dispatch and approval engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML config file")

	root.AddCommand(newServeCmd())
	root.AddCommand(newActionsCmd())
	root.AddCommand(newAuditCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
