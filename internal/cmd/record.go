package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/phoneixtaperlabs/shadow-screenshot/internal/capture"
	"github.com/phoneixtaperlabs/shadow-screenshot/internal/orchestrator"
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Run a capture session in the foreground",
	Long: `Run a periodic capture session without the server and print each
screenshot as it is written. The session runs until interrupted or until
--count captures have been taken.`,
	Args: cobra.NoArgs,
	RunE: runRecord,
}

var (
	recordTarget    targetFlags
	recordImage     imageFlags
	recordSession   string
	recordInterval  time.Duration
	recordCount     int
	recordAllowSelf bool
)

func init() {
	recordTarget.register(recordCmd)
	recordImage.register(recordCmd)
	recordCmd.Flags().StringVar(&recordSession, "session", "", "Session id (random when empty)")
	recordCmd.Flags().DurationVar(&recordInterval, "interval", 0, "Time between captures (default from capture.interval_seconds)")
	recordCmd.Flags().IntVar(&recordCount, "count", 0, "Stop after this many capture attempts (0 runs until interrupted)")
	recordCmd.Flags().BoolVar(&recordAllowSelf, "allow-self", false, "Allow capturing this process's own windows")
	rootCmd.AddCommand(recordCmd)
}

func runRecord(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cfg, true)
	if err != nil {
		return err
	}
	defer a.Close()

	sel, err := recordTarget.selector(ctx, a.windows)
	if err != nil {
		return err
	}
	opts, err := recordImage.options(cfg)
	if err != nil {
		return err
	}

	sched, err := a.scheduler()
	if err != nil {
		return err
	}
	mgr := a.manager(sched)
	go mgr.Run(ctx)

	events, unsubscribe := mgr.Subscribe()
	defer unsubscribe()

	sess := capture.Session{
		ID:          recordSession,
		Interval:    recordInterval,
		Target:      sel,
		Encode:      opts,
		ExcludeSelf: !recordAllowSelf,
	}
	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	if sess.Interval <= 0 {
		sess.Interval = cfg.Capture.Interval()
	}
	if err := mgr.Start(ctx, sess); err != nil {
		return err
	}
	defer mgr.Stop()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Recording session %s every %s (Ctrl-C to stop)\n", sess.ID, sess.Interval)

	for n := 0; recordCount <= 0 || n < recordCount; {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			n++
			printEvent(cmd, ev)
		}
	}
	return nil
}

func printEvent(cmd *cobra.Command, ev orchestrator.Event) {
	out := cmd.OutOrStdout()
	if ev.Type == orchestrator.EventError {
		fmt.Fprintf(out, "%s  error: %s\n", time.Now().Format(time.TimeOnly), ev.Message)
		return
	}
	dup := ""
	if ev.Duplicate {
		dup = "  (unchanged)"
	}
	fmt.Fprintf(out, "%s  %s  %dx%d  %s%s\n", time.UnixMilli(ev.Timestamp).Format(time.TimeOnly), ev.FilePath,
		ev.Width, ev.Height, humanize.IBytes(uint64(ev.FileSize)), dup)
}
