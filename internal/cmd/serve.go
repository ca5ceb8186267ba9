package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/phoneixtaperlabs/shadow-screenshot/internal/grpcserver"
	"github.com/phoneixtaperlabs/shadow-screenshot/internal/server"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the capture server",
	Long: `Run the HTTP/WebSocket capture server and the gRPC health service.

A WebSocket client on /ws starts a session with its first message and
receives one event per capture until it disconnects. Only one session runs
at a time.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cfg, true)
	if err != nil {
		return err
	}
	defer a.Close()
	a.prune(ctx)

	sched, err := a.scheduler()
	if err != nil {
		return err
	}
	mgr := a.manager(sched)

	health := grpcserver.New()
	mgr.OnStateChange(health.SetCapturing)

	srv := server.New(server.Deps{
		Manager:  mgr,
		Source:   a.source,
		Store:    a.store,
		Root:     cfg.BaseDir(),
		Displays: listDisplays,
		Windows:  a.windows,
		History:  a.history(),
		Defaults: a.defaults(),
	})

	// No write timeout: WebSocket streams stay open for the whole session.
	httpServer := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	lis, err := net.Listen("tcp", cfg.GRPC.Addr)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		mgr.Run(gctx)
		return nil
	})
	g.Go(func() error {
		slog.Info("shadowshot server starting", "http", cfg.HTTP.Addr, "grpc", cfg.GRPC.Addr, "storage", cfg.BaseDir())
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return health.Serve(lis)
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down...")
		mgr.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("http shutdown error", "error", err)
		}
		health.Stop()
		return nil
	})

	err = g.Wait()
	slog.Info("server stopped")
	return err
}
