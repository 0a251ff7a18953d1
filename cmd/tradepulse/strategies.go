package main

import (
	"strings"

	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/strategy"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

func buildStrategiesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "strategies",
		Short: "List the available strategies",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			printStrategies(cmd, strategy.NewRegistry())
		},
	}
}

func printStrategies(cmd *cobra.Command, registry *strategy.Registry) {
	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.SetHeader([]string{"ID", "Aliases", "Granularity", "Description", "Defaults"})
	table.SetAutoWrapText(false)
	for _, entry := range registry.Entries() {
		table.Append([]string{
			entry.ID,
			strings.Join(registry.Aliases(entry.ID), ", "),
			string(entry.Granularity),
			entry.Description,
			entry.Defaults,
		})
	}
	table.Render()
}
