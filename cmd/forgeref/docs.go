package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// docsCmd prints a short usage summary — the one place this CLI
// aggregates the tool catalogue and exit-code legend for a human reading
// stdout (not the dispatcher's own JSON, which is for programs).
var docsCmd = &cobra.Command{
	Use:   "docs",
	Short: "Print a summary of available tools and CLI exit codes",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "forgeref — IDE-quality code-intelligence and refactoring core")
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Tools (see `forgeref tool <name> '<json>'`):")
		for _, t := range toolCatalogue {
			fmt.Fprintf(out, "  %-10s %s\n", t.Name, t.Summary)
		}
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Every mutating tool accepts options.dryRun (default true); dryRun:false applies the plan.")
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Exit codes: 0 success, 2 invalid arguments, 3 LSP unavailable, 4 rollback occurred, 5 validation failed.")
		return nil
	},
}
