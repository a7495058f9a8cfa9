package root

import (
	"github.com/spf13/cobra"
)

// rootCmd is the base command for the NekoTab operator CLI. Subcommands
// (retention, tenant) are attached here.
var rootCmd = &cobra.Command{
	Use:           "nekotab-ops",
	Short:         "NekoTab control-plane CLI",
	Long:          "Operator utilities for the NekoTab platform (retention cycles, tenant lifecycle).",
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

// Root returns the mutable root command for wiring from subpackages.
func Root() *cobra.Command {
	return rootCmd
}
