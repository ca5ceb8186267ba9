package cmd

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/phoneixtaperlabs/shadow-screenshot/internal/imaging"
	"github.com/phoneixtaperlabs/shadow-screenshot/internal/store"
	"github.com/phoneixtaperlabs/shadow-screenshot/internal/trace"
)

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Take a single screenshot",
	Long: `Take one screenshot and write it under the storage directory.

The target defaults to the primary display. Use --window-id, --owner or
--region to capture something else. --target-kb searches for the JPEG
quality that lands the file near the requested size.`,
	Args: cobra.NoArgs,
	RunE: runCapture,
}

var (
	captureTarget    targetFlags
	captureImage     imageFlags
	captureSession   string
	captureName      string
	captureTargetKB  int
	captureAllowSelf bool
)

func init() {
	captureTarget.register(captureCmd)
	captureImage.register(captureCmd)
	captureCmd.Flags().StringVar(&captureSession, "session", "", "Store the capture under this session directory")
	captureCmd.Flags().StringVar(&captureName, "name", "", "File name (extension is corrected to the format)")
	captureCmd.Flags().IntVar(&captureTargetKB, "target-kb", 0, "Tune JPEG quality toward this file size in KB")
	captureCmd.Flags().BoolVar(&captureAllowSelf, "allow-self", false, "Allow capturing this process's own windows")
	rootCmd.AddCommand(captureCmd)
}

func runCapture(cmd *cobra.Command, _ []string) error {
	ctx, span := trace.StartSpan(cmd.Context(), "cli_capture")
	defer span.End()

	a, err := newApp(cfg, false)
	if err != nil {
		return err
	}
	defer a.Close()

	sel, err := captureTarget.selector(ctx, a.windows)
	if err != nil {
		return err
	}
	opts, err := captureImage.options(cfg)
	if err != nil {
		return err
	}

	img, err := a.source.Capture(ctx, sel, !captureAllowSelf)
	if err != nil {
		return err
	}
	if captureTargetKB > 0 {
		opts, err = imaging.FitToSize(img, opts, captureTargetKB)
		if err != nil {
			return err
		}
	}

	res, err := a.store.Write(ctx, img, opts, store.Policy{
		Root:      cfg.BaseDir(),
		SessionID: captureSession,
		FileName:  captureName,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Saved %s (%dx%d, %s)\n", res.FilePath, res.Width, res.Height,
		humanize.IBytes(uint64(res.FileSize)))
	return nil
}
