// Copyright (c) 2025 Taskforge
// Taskforge - collaborative ticket tracker
// This source code is licensed under the MIT license found in the LICENSE file.

// serve.go runs the HTTP API, and db.go-style maintenance lives under the
// db subcommand.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jmynes/taskforge/internal/api"
	"github.com/jmynes/taskforge/internal/auth"
	"github.com/jmynes/taskforge/internal/backup"
	"github.com/jmynes/taskforge/internal/db"
	"github.com/jmynes/taskforge/internal/logging"
)

func newServeCmd() *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the backup and administration HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := openFilestore(cmd)
			if err != nil {
				return err
			}

			store := db.DefaultStore()
			gate := auth.NewGate(store)
			server := api.NewServer(
				store,
				backup.NewExporter(store, files, gate),
				backup.NewCoordinator(store, files, gate),
				backup.NewWiper(store, gate),
			)

			addr := cfg.Server.Listen
			if listen != "" {
				addr = listen
			}
			logging.Infof("Serving API on %s", addr)
			return server.Router().Run(addr)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "Listen address, e.g. :8080")
	return cmd
}

func newDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database housekeeping",
	}

	maintainCmd := &cobra.Command{
		Use:   "maintain",
		Short: "Run backend-specific maintenance (vacuum, analyze, optimize)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := db.RunDBMaintenance(cfg.Database.Type, cfg.Database.DSN); err != nil {
				return fmt.Errorf("maintenance failed: %w", err)
			}
			fmt.Println("Maintenance complete.")
			return nil
		},
	}

	auditCmd := &cobra.Command{
		Use:   "audit",
		Short: "Print the audit trail, most recent first",
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := db.GetAllAuditLogEntries()
			if err != nil {
				return fmt.Errorf("failed to read audit log: %w", err)
			}
			for _, e := range entries {
				fmt.Printf("%s  %-12s %-16s %s\n", e.Timestamp, e.Username, e.Action, e.Details)
			}
			return nil
		},
	}

	cmd.AddCommand(maintainCmd)
	cmd.AddCommand(auditCmd)
	return cmd
}
