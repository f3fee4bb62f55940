// Copyright (c) 2025 Taskforge
// Taskforge - collaborative ticket tracker
// This source code is licensed under the MIT license found in the LICENSE file.

// backup.go implements the backup subcommands: export, import and migrate.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jmynes/taskforge/internal/auth"
	"github.com/jmynes/taskforge/internal/backup"
	"github.com/jmynes/taskforge/internal/db"
	"github.com/jmynes/taskforge/internal/i18n"
	"github.com/jmynes/taskforge/internal/model"
)

func newBackupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Export, import and migrate the full dataset",
	}
	cmd.AddCommand(newBackupExportCmd())
	cmd.AddCommand(newBackupImportCmd())
	cmd.AddCommand(newBackupMigrateCmd())
	return cmd
}

func newBackupExportCmd() *cobra.Command {
	var (
		out         string
		username    string
		encrypt     bool
		attachments bool
		avatars     bool
		compress    bool
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the dataset to a backup artifact",
		RunE: func(cmd *cobra.Command, args []string) error {
			cred, err := gatherCredential(username)
			if err != nil {
				return err
			}

			opts := model.ExportOptions{
				IncludeAttachments: attachments,
				IncludeAvatars:     avatars,
				Compress:           compress,
			}
			if encrypt {
				password, err := promptPassword(i18n.T("backup.import_prompt_password"))
				if err != nil {
					return err
				}
				opts.Password = password
			}

			files, err := openFilestore(cmd)
			if err != nil {
				return err
			}
			store := db.DefaultStore()
			exporter := backup.NewExporter(store, files, auth.NewGate(store))

			var artifact []byte
			err = withSecondFactorRetry(cred, func(c auth.Credential) error {
				var exportErr error
				artifact, exportErr = exporter.Export(cmd.Context(), opts, c)
				return exportErr
			})
			if err != nil {
				return fmt.Errorf(i18n.T("backup.export_failed", err))
			}

			if err := os.WriteFile(out, artifact, 0o600); err != nil {
				return fmt.Errorf("failed to write backup file: %w", err)
			}
			fmt.Println(i18n.T("backup.export_written", out))
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "taskforge-backup.json", "Output file for the backup artifact")
	cmd.Flags().StringVarP(&username, "username", "u", "", "Administrator username")
	cmd.Flags().BoolVar(&encrypt, "encrypt", false, "Encrypt the backup with a password")
	cmd.Flags().BoolVar(&attachments, "attachments", false, "Bundle attachment files into an archive")
	cmd.Flags().BoolVar(&avatars, "avatars", false, "Bundle avatar files into an archive")
	cmd.Flags().BoolVar(&compress, "compress", false, "Compress a plain export with zstd")
	return cmd
}

func newBackupImportCmd() *cobra.Command {
	var (
		username string
		merge    bool
	)

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import a backup artifact, replacing the dataset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			artifact, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read backup file: %w", err)
			}

			cred, err := gatherCredential(username)
			if err != nil {
				return err
			}

			confirmText := ""
			if !merge {
				fmt.Printf("This replaces ALL existing data. Type %q to continue.\n", auth.PhraseImportAll)
				confirmText, err = promptLine(i18n.T("wipe.prompt_confirm"))
				if err != nil {
					return err
				}
			}

			files, err := openFilestore(cmd)
			if err != nil {
				return err
			}
			store := db.DefaultStore()
			coordinator := backup.NewCoordinator(store, files, auth.NewGate(store))

			req := backup.RestoreRequest{
				Artifact:    artifact,
				Credential:  cred,
				ConfirmText: confirmText,
				Merge:       merge,
			}

			var result *model.ImportResult
			run := func(c auth.Credential) error {
				req.Credential = c
				var restoreErr error
				result, restoreErr = coordinator.Restore(cmd.Context(), req)
				return restoreErr
			}

			err = withSecondFactorRetry(cred, run)
			if backup.IsDecryptionError(err) && req.Password == "" {
				// Encrypted artifact: ask for the backup password and retry.
				password, perr := promptPassword(i18n.T("backup.import_prompt_password"))
				if perr != nil {
					return perr
				}
				req.Password = password
				err = run(req.Credential)
			}
			if err != nil {
				return fmt.Errorf(i18n.T("backup.import_failed", err))
			}

			fmt.Println(i18n.T("backup.import_success",
				result.Counts.Users, result.Counts.Projects, result.Counts.Tickets))
			if missing := len(result.Files.MissingFiles); missing > 0 {
				fmt.Println(i18n.T("backup.import_missing_files", missing))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&username, "username", "u", "", "Administrator username")
	cmd.Flags().BoolVar(&merge, "merge", false, "Integrate into the existing dataset instead of replacing it")
	return cmd
}

// newBackupMigrateCmd moves the dataset to another database backend in one
// step: snapshot the current store, then replay it into the target.
func newBackupMigrateCmd() *cobra.Command {
	var (
		username string
		toType   string
		toDSN    string
	)

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Copy the dataset into another database backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			if toType == "" || toDSN == "" {
				return fmt.Errorf("--to-type and --to-dsn are required")
			}

			cred, err := gatherCredential(username)
			if err != nil {
				return err
			}
			fmt.Printf("This replaces ALL data in the target database. Type %q to continue.\n", auth.PhraseImportAll)
			confirmText, err := promptLine(i18n.T("wipe.prompt_confirm"))
			if err != nil {
				return err
			}

			source := db.DefaultStore()
			gate := auth.NewGate(source)
			err = withSecondFactorRetry(cred, func(c auth.Credential) error {
				_, authErr := gate.Authorize(c)
				return authErr
			})
			if err != nil {
				return err
			}
			if err := auth.VerifyConfirmationPhrase(confirmText, auth.PhraseImportAll); err != nil {
				return err
			}

			doc, err := source.ExportDataForBackup()
			if err != nil {
				return fmt.Errorf("failed to snapshot source database: %w", err)
			}

			target, err := db.NewStoreFromDSN(toType, toDSN)
			if err != nil {
				return fmt.Errorf("failed to open target database: %w", err)
			}
			if err := target.ImportDataFromBackup(doc); err != nil {
				return fmt.Errorf("failed to import into target database: %w", err)
			}

			fmt.Println(i18n.T("backup.migrate_success", cfg.Database.Type, toType))
			return nil
		},
	}

	cmd.Flags().StringVarP(&username, "username", "u", "", "Administrator username")
	cmd.Flags().StringVar(&toType, "to-type", "", `Target database type ("sqlite", "postgres", "mysql")`)
	cmd.Flags().StringVar(&toDSN, "to-dsn", "", "Target database connection string (DSN)")
	return cmd
}
