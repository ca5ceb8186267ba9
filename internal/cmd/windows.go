package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/phoneixtaperlabs/shadow-screenshot/internal/window"
)

var windowsCmd = &cobra.Command{
	Use:   "windows",
	Short: "List on-screen windows",
	Long: `List the top-level windows that can be captured with --window-id.

With --follow the given window is polled and every move, resize or close is
printed until the window disappears or the command is interrupted.`,
	Args: cobra.NoArgs,
	RunE: runWindows,
}

var (
	windowsOwner  string
	windowsFollow uint32
)

func init() {
	windowsCmd.Flags().StringVar(&windowsOwner, "owner", "", "Only list windows of this application")
	windowsCmd.Flags().Uint32Var(&windowsFollow, "follow", 0, "Track the bounds of this window id")
	rootCmd.AddCommand(windowsCmd)
}

func runWindows(cmd *cobra.Command, _ []string) error {
	lister := newLister()
	if c, ok := lister.(interface{ Close() }); ok {
		defer c.Close()
	}

	if windowsFollow != 0 {
		return followWindow(cmd, lister, windowsFollow)
	}

	var (
		wins []window.Info
		err  error
	)
	if windowsOwner != "" {
		wins, err = window.FindByOwner(cmd.Context(), lister, windowsOwner)
	} else {
		wins, err = lister.List(cmd.Context())
	}
	if err != nil {
		return err
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleColoredBright)
	t.AppendHeader(table.Row{"ID", "Owner", "PID", "Title", "Bounds"})
	for _, w := range wins {
		t.AppendRow(table.Row{w.ID, w.Owner, w.OwnerPID, w.Title, formatRect(w)})
	}
	fmt.Fprintln(cmd.OutOrStdout(), t.Render())
	return nil
}

func followWindow(cmd *cobra.Command, lister window.Lister, id uint32) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	info, ok, err := window.FindByID(ctx, lister, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("window %d not found", id)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Following %d (%s): %s\n", id, info.Owner, formatRect(info))

	tracker := window.NewTracker(lister, id, cfg.Window.PollInterval())
	defer tracker.Stop()

	for ev := range tracker.Start(ctx) {
		switch ev.Kind {
		case window.EventClosed:
			fmt.Fprintf(out, "window %d closed\n", id)
			return nil
		case window.EventUpdate:
			fmt.Fprintf(out, "window %d moved to %d,%d %dx%d\n", id, ev.Bounds.Min.X, ev.Bounds.Min.Y,
				ev.Bounds.Dx(), ev.Bounds.Dy())
		}
	}
	return nil
}

func formatRect(w window.Info) string {
	b := w.Bounds
	return fmt.Sprintf("%d,%d %dx%d", b.Min.X, b.Min.Y, b.Dx(), b.Dy())
}
