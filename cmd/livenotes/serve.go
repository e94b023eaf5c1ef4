package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vango-go/livenotes/pkg/gateway/server"
)

func newServeCmd(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the orchestrator behind the HTTP and websocket bridge",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr != "" {
				a.cfg.Addr = addr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, a)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides LIVENOTES_ADDR)")
	return cmd
}

// runServe serves until ctx is cancelled. The bridge drains first; the
// orchestrator then finalizes any active session before resources close.
func runServe(ctx context.Context, a *app) error {
	svc, err := newServices(ctx, a.cfg, a.logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			a.logger.Warn("release resources", "error", err)
		}
	}()

	orchCtx, stopOrch := context.WithCancel(context.WithoutCancel(ctx))
	defer stopOrch()
	go func() {
		if err := svc.orch.Run(orchCtx); err != nil {
			a.logger.Error("orchestrator stopped", "error", err)
		}
	}()
	go func() {
		if err := svc.settings.Watch(ctx); err != nil {
			a.logger.Warn("settings watcher stopped", "error", err)
		}
	}()

	bridge := server.New(a.cfg, server.Deps{
		Orchestrator:     svc.orch,
		OrchestratorDone: svc.orch.Done(),
		History:          svc.history,
		Settings:         svc.settings,
		Metrics:          svc.metrics,
	}, a.logger.With("component", "bridge"))

	a.logger.Info("starting livenotes", "addr", a.cfg.Addr, "storage", a.cfg.StorageDriver, "session_duration", a.cfg.SessionDuration)
	serveErr := bridge.ListenAndServe(ctx)

	stopOrch()
	wait := a.cfg.FinalizeTimeout + a.cfg.ShutdownGracePeriod
	select {
	case <-svc.orch.Done():
	case <-time.After(wait):
		a.logger.Warn("orchestrator did not stop in time", "waited", wait)
	}

	if serveErr != nil {
		return fmt.Errorf("serve: %w", serveErr)
	}
	a.logger.Info("livenotes stopped")
	return nil
}
