package main

import (
	"github.com/spf13/cobra"

	"github.com/tturner/fuzzrelay/internal/app"
)

func newJournalCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Show sessions recorded in a journal",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.PersistentFlags().StringVar(&path, "journal", "", "Session journal (SQLite) path")

	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List recorded sessions, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			if path == "" {
				return missingFlagError(cmd, "--journal")
			}
			return app.ListJournal(cmd.Context(), cmd.OutOrStdout(), app.JournalOptions{Path: path, Limit: limit})
		},
	}
	list.Flags().IntVar(&limit, "limit", 20, "Maximum sessions to show (0 = all)")

	var copyCmd bool
	last := &cobra.Command{
		Use:   "last",
		Short: "Show the most recent session and how to reproduce it",
		RunE: func(cmd *cobra.Command, args []string) error {
			if path == "" {
				return missingFlagError(cmd, "--journal")
			}
			return app.LastJournal(cmd.Context(), cmd.OutOrStdout(), app.JournalOptions{Path: path, Copy: copyCmd})
		},
	}
	last.Flags().BoolVar(&copyCmd, "copy", false, "Copy the reproduce command to the clipboard")

	cmd.AddCommand(list, last)
	return cmd
}
