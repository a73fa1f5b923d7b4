package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Inspect the vision ledger",
}

var ledgerShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the vision ledger",
	RunE: func(cmd *cobra.Command, args []string) error {
		l, err := proto.Integrator.Load()
		if err != nil {
			return fmt.Errorf("load ledger: %w", err)
		}
		return printJSON(cmd.OutOrStdout(), l)
	},
}

func init() {
	ledgerCmd.AddCommand(ledgerShowCmd)
	rootCmd.AddCommand(ledgerCmd)
}
