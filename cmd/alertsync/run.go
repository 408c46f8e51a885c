package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/alertsync/alertsync/internal/config"
	"github.com/alertsync/alertsync/internal/metrics"
	"github.com/alertsync/alertsync/internal/notify"
	"github.com/alertsync/alertsync/internal/pipeline"
)

func runCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run one synchronization",
		Long: `Run fetches the route inventory, writes alert files, commits and pushes.

Exit codes:
  0  success
  1  fatal error (config, malformed inventory, collision, lock, git)
  2  committed locally but the push failed
  3  inventory endpoint unavailable, ran with zero routes`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return runOnce(ctx, g.configPath)
		},
	}
}

func runOnce(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	slog.Info("alertsync run starting",
		"config", configPath,
		"inventory", cfg.Inventory.URL,
		"remote", cfg.Repository.RemoteURL,
		"branch", cfg.Repository.Branch,
	)

	observers := []pipeline.Observer{notify.New(cfg.Notify)}
	if cfg.Metrics.Textfile != "" {
		observers = append(observers, metrics.NewRecorder(cfg.Metrics.Textfile))
	}

	p, err := pipeline.New(cfg, observers...)
	if err != nil {
		return err
	}
	res, err := p.Run(ctx)
	if code := res.ExitCode(); code != 0 {
		return &exitError{code: code, err: err}
	}
	return nil
}
