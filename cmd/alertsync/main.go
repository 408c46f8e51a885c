// Command alertsync derives latency alert definitions from a Spring Boot
// actuator route inventory and commits them to a git branch.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/alertsync/alertsync/internal/config"
	"github.com/alertsync/alertsync/internal/inventory"
	"github.com/alertsync/alertsync/internal/synth"
)

// Set with -ldflags "-X main.version=... -X main.buildTime=...".
var (
	version   = "dev"
	buildTime = "unknown"
)

// exitError carries a process exit code out of a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error {
	return e.err
}

func main() {
	// A missing .env file is normal; variables may come from the environment.
	_ = godotenv.Load()

	err := rootCmd().Execute()
	if err == nil {
		return
	}
	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", ee.err)
		}
		os.Exit(ee.code)
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

type globalFlags struct {
	configPath string
	logLevel   string
	logFormat  string
}

func rootCmd() *cobra.Command {
	var g globalFlags

	cmd := &cobra.Command{
		Use:   "alertsync",
		Short: "Sync per-route latency alerts into a git branch",
		Long: `alertsync reads the route inventory of a Spring Boot service from its
actuator mappings endpoint, writes one alert definition per route handler,
and commits the result to a dedicated branch of an alerts repository.

Commands:
- run       one synchronization, exit code reflects the outcome
- serve     scheduled synchronizations plus a status API
- validate  load the configuration and print it with defaults applied`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(g.logLevel, g.logFormat)
			if err != nil {
				return err
			}
			slog.SetDefault(logger)
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&g.configPath, "config", "c", "alertsync.yaml", "Config file path (YAML)")
	cmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&g.logFormat, "log-format", "json", "Log format (json, text)")

	cmd.AddCommand(runCmd(&g), serveCmd(&g), validateCmd(&g))
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "alertsync version %s (build: %s)\n", version, buildTime)
		},
	})

	return cmd
}

func validateCmd(g *globalFlags) *cobra.Command {
	var probe bool

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration and print it with defaults applied",
		Long: `Validate loads the configuration and prints it with defaults applied.

With --probe it also reads the inventory endpoint, plans the alert files
without writing anything, and inspects the endpoint's TLS certificate.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(g.configPath)
			if err != nil {
				return err
			}
			out, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("encode config: %w", err)
			}
			if _, err := cmd.OutOrStdout().Write(out); err != nil {
				return err
			}
			if !probe {
				return nil
			}
			report, err := probeInventory(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			out, err = yaml.Marshal(map[string]*probeReport{"probe": report})
			if err != nil {
				return fmt.Errorf("encode probe: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
	cmd.Flags().BoolVar(&probe, "probe", false, "Fetch the inventory and plan alert files without writing")
	return cmd
}

type probeReport struct {
	Routes     int                   `yaml:"routes"`
	Attempts   int                   `yaml:"attempts"`
	FetchError string                `yaml:"fetch_error,omitempty"`
	Files      int                   `yaml:"files"`
	Collisions []string              `yaml:"collisions,omitempty"`
	Skipped    []string              `yaml:"skipped,omitempty"`
	Cert       *inventory.CertStatus `yaml:"cert,omitempty"`
}

func probeInventory(ctx context.Context, cfg *config.Config) (*probeReport, error) {
	fetcher, err := inventory.New(cfg.Inventory)
	if err != nil {
		return nil, err
	}
	inv, err := fetcher.Fetch(ctx)
	if err != nil {
		return nil, err
	}

	plan := synth.NewPlan(inv.Routes)
	report := &probeReport{
		Routes:   len(inv.Routes),
		Attempts: inv.Attempts,
		Files:    len(plan.Entries),
		Cert:     inventory.CheckCert(ctx, cfg.Inventory),
	}
	if inv.Err != nil {
		report.FetchError = inv.Err.Error()
	}
	for _, c := range plan.Collisions {
		report.Collisions = append(report.Collisions, fmt.Sprintf("%s (%d routes)", c.Key, len(c.Routes)))
	}
	for _, s := range plan.Skipped {
		report.Skipped = append(report.Skipped, fmt.Sprintf("%s: %s", s.Route.Handler, s.Reason))
	}
	return report, nil
}

func newLogger(level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid --log-level %q", level)
	}
	opts := &slog.HandlerOptions{Level: lvl}

	switch strings.ToLower(format) {
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stdout, opts)), nil
	case "text":
		return slog.New(slog.NewTextHandler(os.Stdout, opts)), nil
	default:
		return nil, fmt.Errorf("invalid --log-format %q", format)
	}
}
