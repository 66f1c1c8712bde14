package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	dbPath     string
	verbose    bool
	jsonOutput bool
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "formgraph",
		Short: "Formgraph - Reactive Parameter Graph Engine",
		Long: `Formgraph evaluates reactive parameter dependency graphs behind dynamic
configuration forms.

Features:
  - Typed graph definitions via CUE
  - Default, transform, and effect expressions via Starlark
  - Topological dependency resolution with atomic transactions
  - Discriminator branches with grouped variants
  - Bounded effect cascades
  - Persistent sessions backed by SQLite`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "formgraph.db", "SQLite database path for sessions")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	// Add subcommands
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newEvalCommand())
	rootCmd.AddCommand(newSessionCommand())
	rootCmd.AddCommand(newDevCommand())

	return rootCmd
}
