package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSessionsCmd(cf *clientFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect and manage stored sessions",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List sessions, most recently active first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := cf.client().ListSessions(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}

	var title string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := cf.client().CreateSession(cmd.Context(), title)
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}
	create.Flags().StringVar(&title, "title", "", "Session title")

	get := &cobra.Command{
		Use:   "get <session-id>",
		Short: "Show one session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := cf.client().GetSession(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}

	del := &cobra.Command{
		Use:   "delete <session-id>",
		Short: "Delete a session and its turns",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cf.client().DeleteSession(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	}

	var offset, limit int
	history := &cobra.Command{
		Use:   "history <session-id>",
		Short: "Print a session's turns in order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := cf.client().FetchHistory(cmd.Context(), args[0], offset, limit)
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}
	history.Flags().IntVar(&offset, "offset", 0, "Turns to skip")
	history.Flags().IntVar(&limit, "limit", 100, "Maximum turns to return")

	cmd.AddCommand(list, create, get, del, history)
	return cmd
}
