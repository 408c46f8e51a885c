package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/alertsync/alertsync/internal/config"
	"github.com/alertsync/alertsync/internal/metrics"
	"github.com/alertsync/alertsync/internal/notify"
	"github.com/alertsync/alertsync/internal/pipeline"
	"github.com/alertsync/alertsync/internal/schedule"
	"github.com/alertsync/alertsync/internal/status"
)

const shutdownTimeout = 10 * time.Second

func serveCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run synchronizations on a schedule and serve run status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return serve(ctx, g.configPath)
		},
	}
}

func serve(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	slog.Info("alertsync serve starting",
		"config", configPath,
		"schedule", cfg.Schedule.Spec,
		"listen", cfg.Server.Listen,
		"auth_mode", cfg.Server.Auth.Mode,
	)

	var current atomic.Pointer[config.Config]
	current.Store(cfg)

	sched, err := schedule.New(cfg.Schedule.Spec)
	if err != nil {
		return err
	}

	store := status.NewStore(cfg.Server.History)
	hub := status.NewHub(store)
	go hub.Run(ctx)
	recorder := metrics.NewRecorder(cfg.Metrics.Textfile)

	// Pipelines are rebuilt from the current config on every run, so a
	// reload takes effect at the next activation. Listener, auth, history
	// and textfile changes need a restart.
	go func() {
		if err := config.Watch(ctx, configPath, func(updated *config.Config) {
			current.Store(updated)
			if err := sched.SetSpec(updated.Schedule.Spec); err != nil {
				slog.Error("serve: keeping previous schedule", "err", err)
			}
		}); err != nil {
			slog.Error("config watcher stopped", "err", err)
		}
	}()

	// API key protection covers the API and the stream; /metrics stays open
	// for scrapers.
	auth := func(h http.Handler) http.Handler {
		return status.APIKeyMiddleware(
			cfg.Server.Auth.Mode,
			cfg.Server.Auth.EffectiveHeader(),
			cfg.Server.Auth.Key(),
			h,
		)
	}
	mux := http.NewServeMux()
	mux.Handle("/api/", auth(status.NewHandler(store)))
	mux.Handle("/ws/stream", auth(hub))
	mux.Handle("/metrics", recorder.Handler())

	httpSrv := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	srvErr := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", cfg.Server.Listen)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErr <- err
		}
	}()

	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		sched.Run(ctx, cfg.Schedule.RunOnStart, func(ctx context.Context) {
			runScheduled(ctx, current.Load(), recorder, store, hub)
		})
	}()

	select {
	case <-ctx.Done():
	case err = <-srvErr:
		slog.Error("HTTP server stopped", "err", err)
	}

	slog.Info("alertsync serve shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	httpSrv.Shutdown(shutdownCtx) //nolint:errcheck
	if err != nil {
		return err
	}
	<-schedDone
	return nil
}

// runScheduled performs one scheduled run. Errors are already recorded in the
// Result and reported to the observers; serve keeps going.
func runScheduled(ctx context.Context, cfg *config.Config, observers ...pipeline.Observer) {
	observers = append(observers, notify.New(cfg.Notify))
	p, err := pipeline.New(cfg, observers...)
	if err != nil {
		slog.Error("serve: build pipeline", "err", err)
		return
	}
	p.Run(ctx) //nolint:errcheck
}
