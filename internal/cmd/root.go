// Package cmd implements the shadowshot command line.
package cmd

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/phoneixtaperlabs/shadow-screenshot/internal/config"
	"github.com/phoneixtaperlabs/shadow-screenshot/internal/logstore"
	"github.com/phoneixtaperlabs/shadow-screenshot/internal/screen"
	"github.com/phoneixtaperlabs/shadow-screenshot/internal/window"
)

var (
	cfgFile string
	cfg     *config.Config
)

// Swapped out by tests.
var (
	newSource    = screen.New
	newLister    = window.NewLister
	listDisplays = screen.ListDisplays
)

var rootCmd = &cobra.Command{
	Use:   "shadowshot",
	Short: "Periodic screen capture service",
	Long: `shadowshot captures the screen on an interval, writes every screenshot
to disk and streams the result to WebSocket clients.

Besides the server it can take one-off captures, list displays and windows,
and show the capture history recorded in the journal.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is $XDG_CONFIG_HOME/shadow-screenshot/config.yaml)")
}

func loadConfig(cmd *cobra.Command, _ []string) error {
	if cmd.Name() == "version" {
		return nil
	}
	c, err := config.Load(config.NewViper(cfgFile))
	if err != nil {
		return err
	}
	cfg = c
	return setupLogging(c, cmd.ErrOrStderr())
}

// setupLogging routes slog through the rotating log store and, when enabled,
// a text handler on console.
func setupLogging(c *config.Config, console io.Writer) error {
	level, err := logstore.ParseLevel(c.Logging.Level)
	if err != nil {
		return err
	}
	st, err := logstore.Default.Configure(logstore.Options{
		Dir:           c.LogDir(),
		RetentionDays: c.Logging.RetentionDays,
		MinLevel:      level,
	})
	if err != nil {
		return err
	}

	var next slog.Handler
	if c.Logging.Console {
		next = slog.NewTextHandler(console, &slog.HandlerOptions{Level: level.Slog()})
	}
	slog.SetDefault(slog.New(logstore.NewHandler(st, next)))
	return nil
}
