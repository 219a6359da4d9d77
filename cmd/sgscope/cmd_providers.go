package main

import (
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/yairfalse/sgscope/internal/finder"
	"github.com/yairfalse/sgscope/internal/plugin/aws"
)

// providersCmd represents the providers command
var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List the services sgscope checks, in scan order",
	Long: `List every provider in the registry, in the order scans report them.

Shape tells how a provider reaches the association: single-phase lookups
get it from one list call, list-then-describe lookups describe each item.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		writeProviders(cmd, aws.Catalog())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(providersCmd)
}

func writeProviders(cmd *cobra.Command, providers []finder.Provider) {
	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.SetHeader([]string{"#", "Name", "Service", "Shape"})
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)

	for i, p := range providers {
		table.Append([]string{strconv.Itoa(i + 1), p.Name, p.Title, string(p.Shape)})
	}
	table.Render()
}
