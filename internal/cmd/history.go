package cmd

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/phoneixtaperlabs/shadow-screenshot/internal/journal"
)

var historyCmd = &cobra.Command{
	Use:   "history [session-id]",
	Short: "Show recorded captures",
	Long: `Show the most recent capture attempts from the journal, newest first.

Pass a session id to restrict the listing to one session. --prune removes
rows older than journal.retention_days before listing.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

var (
	historyLimit int
	historyPrune bool
)

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum number of rows")
	historyCmd.Flags().BoolVar(&historyPrune, "prune", false, "Delete rows past the retention period first")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	j, err := journal.Open(cfg.JournalPath())
	if err != nil {
		return err
	}
	defer j.Close()

	if historyPrune {
		cutoff := time.Now().AddDate(0, 0, -cfg.Journal.RetentionDays)
		n, err := j.Prune(cmd.Context(), cutoff)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d rows older than %s\n", n, cutoff.Format(time.DateOnly))
	}

	var sessionID string
	if len(args) == 1 {
		sessionID = args[0]
	}
	records, err := j.List(cmd.Context(), sessionID, historyLimit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No captures recorded")
		return nil
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleColoredBright)
	t.AppendHeader(table.Row{"Time", "Session", "File", "Size", "Dimensions", "Result"})
	for _, r := range records {
		row := table.Row{time.UnixMilli(r.Timestamp).Format(time.DateTime), r.SessionID, "", "", "", "ok"}
		if r.Failed() {
			row[5] = r.Error
		} else {
			row[2] = filepath.Base(r.FilePath)
			row[3] = humanize.IBytes(uint64(r.FileSize))
			row[4] = fmt.Sprintf("%dx%d", r.Width, r.Height)
		}
		t.AppendRow(row)
	}
	fmt.Fprintln(cmd.OutOrStdout(), t.Render())
	return nil
}
