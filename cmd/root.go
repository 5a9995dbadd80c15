package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "procurement",
	Short: "Purchase order receipt reconciliation and notification backend",
	Long: `Procurement backend service. Tracks partial deliveries against
purchase order line items and alerts on stale orders with undelivered
material.`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
