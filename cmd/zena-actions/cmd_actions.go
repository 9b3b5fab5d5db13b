// Copyright (C) 2025 Zena Labs (dev@zenahq.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/zenahq/zena-actions/services/dispatch/catalog"
	"github.com/zenahq/zena-actions/services/dispatch/registry"
	"github.com/zenahq/zena-actions/services/realty"
)

func newActionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "actions",
		Short: "List the action catalog",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := slog.New(slog.DiscardHandler)

			reg := registry.New(logger)
			catalog.Register(reg, catalog.Deps{
				Store:    realty.NewMemoryStore(),
				Notifier: realty.NewLogNotifier(logger),
			})

			defs := reg.All()
			sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 2, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ACTION\tAPPROVAL\tBACKGROUND\tREQUIRED\tDESCRIPTION")
			for _, def := range defs {
				required := make([]string, 0, len(def.Schema.Required))
				for _, f := range def.Schema.Required {
					required = append(required, f.Name)
				}
				fmt.Fprintf(w, "%s\t%s\t%v\t%s\t%s\n",
					def.Name,
					def.Approval.String(),
					def.Background,
					strings.Join(required, ","),
					def.Description,
				)
			}
			return w.Flush()
		},
	}
}
