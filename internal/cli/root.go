// Package cli wires loglite's cobra command tree: server run, migrate
// rollout/rollback, config scaffold, and stats.
//
// Built on github.com/spf13/cobra, with subcommands organized the way a
// long-running daemon's CLI typically splits operational concerns from the
// server process itself.
package cli

import (
	"github.com/spf13/cobra"
)

// NewRoot builds the top-level "loglite" command.
func NewRoot() *cobra.Command {
	root := &cobra.Command{
		Use:   "loglite",
		Short: "Embedded log collection and query service",
	}

	root.AddCommand(newServerCmd())
	root.AddCommand(newMigrateCmd())
	root.AddCommand(newConfigCmd())
	root.AddCommand(newStatsCmd())
	return root
}
