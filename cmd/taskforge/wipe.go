// Copyright (c) 2025 Taskforge
// Taskforge - collaborative ticket tracker
// This source code is licensed under the MIT license found in the LICENSE file.

// wipe.go implements the two destructive reset subcommands.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jmynes/taskforge/internal/auth"
	"github.com/jmynes/taskforge/internal/backup"
	"github.com/jmynes/taskforge/internal/db"
	"github.com/jmynes/taskforge/internal/i18n"
)

func newWipeCmd() *cobra.Command {
	var username string

	cmd := &cobra.Command{
		Use:   "wipe",
		Short: "Delete ALL data and seed a fresh administrator",
		RunE: func(cmd *cobra.Command, args []string) error {
			cred, err := gatherCredential(username)
			if err != nil {
				return err
			}

			fmt.Printf("This deletes EVERYTHING. Type %q to continue.\n", auth.PhraseWipeAll)
			confirmText, err := promptLine(i18n.T("wipe.prompt_confirm"))
			if err != nil {
				return err
			}

			newAdmin, err := promptLine("New administrator username: ")
			if err != nil {
				return err
			}
			newPassword, err := promptPassword(i18n.T("auth.prompt_password"))
			if err != nil {
				return err
			}

			store := db.DefaultStore()
			wiper := backup.NewWiper(store, auth.NewGate(store))

			err = withSecondFactorRetry(cred, func(c auth.Credential) error {
				_, wipeErr := wiper.WipeAll(c, confirmText, newAdmin, newPassword)
				return wipeErr
			})
			if err != nil {
				return err
			}

			fmt.Println(i18n.T("wipe.all_done", newAdmin))
			fmt.Println(i18n.T("wipe.files_note"))
			return nil
		},
	}

	cmd.Flags().StringVarP(&username, "username", "u", "", "Administrator username")
	return cmd
}

func newWipeProjectsCmd() *cobra.Command {
	var username string

	cmd := &cobra.Command{
		Use:   "wipe-projects",
		Short: "Delete all projects and their tickets, keeping accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cred, err := gatherCredential(username)
			if err != nil {
				return err
			}

			fmt.Printf("This deletes every project and ticket. Type %q to continue.\n", auth.PhraseWipeProjects)
			confirmText, err := promptLine(i18n.T("wipe.prompt_confirm"))
			if err != nil {
				return err
			}

			store := db.DefaultStore()
			wiper := backup.NewWiper(store, auth.NewGate(store))

			var counts = struct {
				Projects, Tickets int
			}{}
			err = withSecondFactorRetry(cred, func(c auth.Credential) error {
				result, wipeErr := wiper.WipeProjects(c, confirmText)
				if wipeErr == nil {
					counts.Projects = result.Projects
					counts.Tickets = result.Tickets
				}
				return wipeErr
			})
			if err != nil {
				return err
			}

			fmt.Println(i18n.T("wipe.projects_done", counts.Projects, counts.Tickets))
			fmt.Println(i18n.T("wipe.files_note"))
			return nil
		},
	}

	cmd.Flags().StringVarP(&username, "username", "u", "", "Administrator username")
	return cmd
}
