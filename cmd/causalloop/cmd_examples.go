package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rajithv/CausalLoop/internal/examples"
)

func newExamplesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "examples",
		Short: "Browse the built-in example diagrams",
		Long: `List and print the built-in example diagrams. Any command that takes a
definition file also accepts --example NAME.

Examples:
  causalloop examples list
  causalloop examples show population > population.cld`,
	}

	cmd.AddCommand(
		newExamplesListCmd(),
		newExamplesShowCmd(),
	)

	return cmd
}

func newExamplesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the built-in examples",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			list, err := examples.List()
			if err != nil {
				return fmt.Errorf("failed to load examples: %w", err)
			}

			w := cmd.OutOrStdout()
			if jsonOut {
				return json.NewEncoder(w).Encode(map[string]interface{}{
					"examples": list,
					"count":    len(list),
				})
			}

			for _, ex := range list {
				fmt.Fprintf(w, "%-14s %s\n", ex.Name, ex.Title)
				if ex.Description != "" {
					fmt.Fprintf(w, "%-14s %s\n", "", ex.Description)
				}
			}
			return nil
		},
	}
}

func newExamplesShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <name>",
		Short: "Print an example definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			ex, err := examples.Get(args[0])
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if jsonOut {
				return json.NewEncoder(w).Encode(ex)
			}
			fmt.Fprint(w, ex.Text)
			if len(ex.Text) > 0 && ex.Text[len(ex.Text)-1] != '\n' {
				fmt.Fprintln(w)
			}
			return nil
		},
	}
}
