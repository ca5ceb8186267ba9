package cmd

import (
	"context"
	"log/slog"
	"time"

	"github.com/phoneixtaperlabs/shadow-screenshot/internal/capture"
	"github.com/phoneixtaperlabs/shadow-screenshot/internal/config"
	"github.com/phoneixtaperlabs/shadow-screenshot/internal/imaging"
	"github.com/phoneixtaperlabs/shadow-screenshot/internal/journal"
	"github.com/phoneixtaperlabs/shadow-screenshot/internal/orchestrator"
	"github.com/phoneixtaperlabs/shadow-screenshot/internal/screen"
	"github.com/phoneixtaperlabs/shadow-screenshot/internal/server"
	"github.com/phoneixtaperlabs/shadow-screenshot/internal/store"
	"github.com/phoneixtaperlabs/shadow-screenshot/internal/window"
)

// app holds the collaborators shared by the capture commands.
type app struct {
	cfg     *config.Config
	windows window.Lister
	source  screen.Source
	store   *store.Store
	journal *journal.Journal // nil when the journal is disabled or not wanted
	batcher *journal.Batcher
}

func newApp(c *config.Config, withJournal bool) (*app, error) {
	a := &app{cfg: c, windows: newLister(), store: store.New()}

	src, err := newSource(c.Capture.Backend, a.windows)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.source = src

	if withJournal && c.Journal.Enabled {
		j, err := journal.Open(c.JournalPath())
		if err != nil {
			a.Close()
			return nil, err
		}
		a.journal = j
		a.batcher = journal.NewBatcher(j, c.Journal.BatchSize, c.Journal.FlushDelay())
	}
	return a, nil
}

func (a *app) scheduler() (*capture.Scheduler, error) {
	return capture.New(capture.Options{Source: a.source, Store: a.store, Root: a.cfg.BaseDir()})
}

func (a *app) manager(sched *capture.Scheduler) *orchestrator.Manager {
	var j orchestrator.Journal
	if a.batcher != nil {
		j = a.batcher
	}
	return orchestrator.New(sched, j, a.cfg.Capture.MaxHashDistance)
}

func (a *app) history() server.History {
	if a.journal == nil {
		return nil
	}
	return a.journal
}

// defaults are the session defaults taken from the capture config section.
func (a *app) defaults() server.Defaults {
	return server.Defaults{
		Interval:    a.cfg.Capture.Interval(),
		Image:       configImage(a.cfg),
		ExcludeSelf: a.cfg.Capture.ExcludeSelf,
	}
}

// prune drops journal rows older than the configured retention.
func (a *app) prune(ctx context.Context) {
	if a.journal == nil {
		return
	}
	cutoff := time.Now().AddDate(0, 0, -a.cfg.Journal.RetentionDays)
	n, err := a.journal.Prune(ctx, cutoff)
	if err != nil {
		slog.Warn("journal prune failed", "error", err)
		return
	}
	if n > 0 {
		slog.Info("pruned capture journal", "removed", n, "before", cutoff.Format(time.DateOnly))
	}
}

// Close flushes pending journal writes and releases platform handles.
func (a *app) Close() {
	if a.batcher != nil {
		a.batcher.Stop()
	}
	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			slog.Warn("failed to close journal", "error", err)
		}
	}
	if c, ok := a.source.(interface{ Close() }); ok {
		c.Close()
	}
	if c, ok := a.windows.(interface{ Close() }); ok {
		c.Close()
	}
}

func configImage(c *config.Config) imaging.Options {
	format, err := imaging.ParseFormat(c.Capture.Format)
	if err != nil {
		format = imaging.FormatJPEG
	}
	return imaging.NewOptions(format, c.Capture.Quality, nil)
}
