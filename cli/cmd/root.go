package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "screenloom",
	Short: "Screenloom - interactive flow execution engine",
	Long: `Screenloom runs author-defined branching roleplay flows: narrative
nodes, conditions, variable expressions, timed device actuation and
randomized challenges, driven by buttons, keywords and session events.`,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(checkCmd)
}
