package cmd

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var displaysCmd = &cobra.Command{
	Use:   "displays",
	Short: "List active displays",
	Args:  cobra.NoArgs,
	RunE:  runDisplays,
}

func init() {
	rootCmd.AddCommand(displaysCmd)
}

func runDisplays(cmd *cobra.Command, _ []string) error {
	displays, err := listDisplays()
	if err != nil {
		return err
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleColoredBright)
	t.AppendHeader(table.Row{"Index", "Origin", "Size", "Primary"})
	for _, d := range displays {
		primary := ""
		if d.Primary {
			primary = "yes"
		}
		t.AppendRow(table.Row{
			d.Index,
			fmt.Sprintf("%d,%d", d.Bounds.Min.X, d.Bounds.Min.Y),
			fmt.Sprintf("%dx%d", d.Bounds.Dx(), d.Bounds.Dy()),
			primary,
		})
	}
	fmt.Fprintln(cmd.OutOrStdout(), t.Render())
	return nil
}
