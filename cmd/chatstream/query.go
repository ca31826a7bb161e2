package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newQueryCmd(cf *clientFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Check lookup statements and audit executed queries",
	}

	validate := &cobra.Command{
		Use:   "validate <statement>",
		Short: "Check whether a statement is read-only",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			safe, message, err := cf.client().ValidateQuery(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !safe {
				return fmt.Errorf("unsafe: %s", message)
			}
			fmt.Fprintln(cmd.OutOrStdout(), message)
			return nil
		},
	}

	history := &cobra.Command{
		Use:   "history <session-id>",
		Short: "List lookups executed for a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := cf.client().QueryHistory(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}

	schema := &cobra.Command{
		Use:   "schema [source]",
		Short: "Show the tables and columns of a lookup source",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := cf.client().SchemaInfo(cmd.Context(), firstArg(args))
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}

	insights := &cobra.Command{
		Use:   "insights [source]",
		Short: "Show row counts for every table of a lookup source",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := cf.client().QuickInsights(cmd.Context(), firstArg(args))
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}

	var focus string
	var limit int
	suggest := &cobra.Command{
		Use:   "suggest [source]",
		Short: "Propose questions a lookup source can answer",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := cf.client().QuerySuggestions(cmd.Context(), firstArg(args), focus, limit)
			if err != nil {
				return err
			}
			for _, q := range res {
				fmt.Fprintln(cmd.OutOrStdout(), q)
			}
			return nil
		},
	}
	suggest.Flags().StringVar(&focus, "focus", "", "topic to focus the suggestions on")
	suggest.Flags().IntVar(&limit, "limit", 0, "maximum number of suggestions")

	cmd.AddCommand(validate, history, schema, insights, suggest)
	return cmd
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
