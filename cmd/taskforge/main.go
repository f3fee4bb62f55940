// Copyright (c) 2025 Taskforge
// Taskforge - collaborative ticket tracker
// This source code is licensed under the MIT license found in the LICENSE file.

// main.go sets up the command-line interface for the Taskforge backup and
// administration tool using the Cobra library. It defines the root command,
// subcommands (backup, wipe, serve, db), flags, and the entry point.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/jmynes/taskforge/internal/auth"
	"github.com/jmynes/taskforge/internal/config"
	"github.com/jmynes/taskforge/internal/db"
	"github.com/jmynes/taskforge/internal/filestore"
	"github.com/jmynes/taskforge/internal/i18n"
	"github.com/jmynes/taskforge/internal/logging"
	"github.com/jmynes/taskforge/internal/model"
)

var version = "dev" // this will be set by the linker
var cfgFile string

type databaseConfig struct {
	Type string `mapstructure:"type"`
	DSN  string `mapstructure:"dsn"`
}

type serverConfig struct {
	Listen string `mapstructure:"listen"`
}

type appConfig struct {
	Database  databaseConfig   `mapstructure:"database"`
	Language  string           `mapstructure:"language"`
	Debug     bool             `mapstructure:"debug"`
	Filestore filestore.Config `mapstructure:"filestore"`
	Server    serverConfig     `mapstructure:"server"`
}

var cfg appConfig

func configDefaults() map[string]any {
	return map[string]any{
		"database.type":     "sqlite",
		"database.dsn":      "./taskforge.db",
		"language":          "en",
		"debug":             false,
		"filestore.backend": "fs",
		"filestore.root":    "data/files",
		"server.listen":     ":8080",
	}
}

// main is the entry point of the application.
func main() {
	if err := newRootCmd().Execute(); err != nil {
		// The error is already printed by Cobra on failure.
		os.Exit(1)
	}
}

// newRootCmd creates and configures a new root cobra command. Fresh
// instances are also created for isolated testing.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "taskforge",
		Short: "Taskforge administration: backups, restores and resets.",
		Long: `Taskforge is a collaborative ticket tracker. This tool manages its
dataset as a whole: full exports (optionally encrypted and bundled with
attachment files), transactional imports, and the destructive reset
operations that wipe the system or all projects.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var extraConfig *string
			if cfgFile != "" {
				extraConfig = &cfgFile
			}
			loaded, err := config.LoadConfig[appConfig](cmd, configDefaults(), extraConfig)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			cfg = loaded
			applyFlagOverrides(cmd)

			logging.SetDebug(cfg.Debug)
			i18n.Init(cfg.Language)
			if err := db.InitDB(cfg.Database.Type, cfg.Database.DSN); err != nil {
				return fmt.Errorf(i18n.T("config.error_init_db", err))
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(newBackupCmd())
	cmd.AddCommand(newWipeCmd())
	cmd.AddCommand(newWipeProjectsCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newDBCmd())
	cmd.AddCommand(newAdminCmd())
	cmd.AddCommand(newConfigCmd())

	cmd.Version = version

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is taskforge.yaml in the user config dir or cwd)")
	cmd.PersistentFlags().String("db-type", "", `Database type ("sqlite", "postgres", "mysql")`)
	cmd.PersistentFlags().String("db-dsn", "", "Database connection string (DSN)")
	cmd.PersistentFlags().String("lang", "", `Output language ("en", "de")`)
	cmd.PersistentFlags().Bool("debug", false, "Enable debug logging")

	return cmd
}

// applyFlagOverrides lets explicitly set flags win over file and
// environment configuration.
func applyFlagOverrides(cmd *cobra.Command) {
	lookup := func(name string) *pflag.Flag {
		if f := cmd.Flags().Lookup(name); f != nil {
			return f
		}
		return cmd.Root().PersistentFlags().Lookup(name)
	}
	if f := lookup("db-type"); f != nil && f.Changed {
		cfg.Database.Type = f.Value.String()
	}
	if f := lookup("db-dsn"); f != nil && f.Changed {
		cfg.Database.DSN = f.Value.String()
	}
	if f := lookup("lang"); f != nil && f.Changed {
		cfg.Language = f.Value.String()
	}
	if f := lookup("debug"); f != nil && f.Changed {
		cfg.Debug = f.Value.String() == "true"
	}
}

// openFilestore builds the configured binary file store.
func openFilestore(cmd *cobra.Command) (filestore.Store, error) {
	return filestore.New(cmd.Context(), cfg.Filestore)
}

// newAdminCmd creates the first administrator account, including a fresh
// set of recovery codes shown exactly once.
func newAdminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage administrator accounts",
	}

	createCmd := &cobra.Command{
		Use:   "create <username>",
		Short: "Create an administrator account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			username := args[0]
			password, err := promptPassword(i18n.T("auth.prompt_password"))
			if err != nil {
				return err
			}
			hash, err := auth.HashPassword(password)
			if err != nil {
				return err
			}

			store := db.DefaultStore()
			id, err := store.CreateUser(&model.User{
				Username:     username,
				DisplayName:  username,
				PasswordHash: hash,
				IsAdmin:      true,
				IsActive:     true,
			})
			if err != nil {
				return fmt.Errorf("failed to create administrator: %w", err)
			}

			codes, hashes := auth.GenerateRecoveryCodes(8)
			if err := store.ReplaceRecoveryCodes(id, hashes); err != nil {
				return fmt.Errorf("failed to store recovery codes: %w", err)
			}

			fmt.Printf("Administrator %q created.\n", username)
			fmt.Println("Recovery codes (store them safely, they are shown only once):")
			for _, code := range codes {
				fmt.Printf("  %s\n", code)
			}
			return nil
		},
	}

	cmd.AddCommand(createCmd)
	return cmd
}

// newConfigCmd writes a default configuration file to the standard
// location, so settings become discoverable.
func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}

	var system bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a configuration file with the current settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.WriteConfigFile(&cfg, system); err != nil {
				return fmt.Errorf("failed to write configuration: %w", err)
			}
			fmt.Println("Configuration written.")
			return nil
		},
	}
	initCmd.Flags().BoolVar(&system, "system", false, "Write to the system-wide location instead of the user one")

	cmd.AddCommand(initCmd)
	return cmd
}
