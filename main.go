package main

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/vsamanullah/migverify/integrity"
)

// errChecksFailed marks a run that completed but produced at least one
// Fail result. It maps to exit status 1; every other error is fatal and
// maps to exit status 2.
var errChecksFailed = errors.New("run completed with failures")

var (
	cfgFile string
	envName string
	mcpMode bool
)

var rootCmd = &cobra.Command{
	Use:   "migverify",
	Short: "Verify that database content survives a migration unchanged",
	Long: `migverify captures a portable, content-addressable snapshot of a
PostgreSQL database and later re-derives the same representation from the
(possibly migrated) database to compute a pass/warn/fail verdict per table
and per integrity dimension: existence, row count, checksum, schema, and
referential integrity.

Typical flow:
  migverify snapshot --env source --output baseline.json
  <run the migration>
  migverify verify --env target --baseline baseline.json

Modes:
  snapshot: capture a baseline snapshot of a live database
  verify:   compare a live database against a baseline snapshot
  restore:  load a restore-capable snapshot into a live database
  mcp mode (--mcp): run as Model Context Protocol server`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if mcpMode {
			slog.Info("starting mcp server")
			return StartMCPServer()
		}
		return cmd.Help()
	},
}

func main() {
	if err := run(); err != nil {
		if errors.Is(err, errChecksFailed) {
			os.Exit(1)
		}
		slog.Error("command execution failed", "error", err)
		os.Exit(2)
	}
}

func run() error {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	slog.SetDefault(slog.New(handler))

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: migverify.yaml)")
	rootCmd.PersistentFlags().StringVar(&envName, "env", "", "environment name from the config file")
	rootCmd.PersistentFlags().Int("page-size", integrity.DefaultPageSize, "rows fetched per round-trip")
	rootCmd.PersistentFlags().Int("concurrency", integrity.DefaultConcurrency, "tables processed concurrently")
	rootCmd.PersistentFlags().Duration("timeout", 0, "wall-clock limit for the whole run (0 uses the config value)")
	rootCmd.Flags().BoolVar(&mcpMode, "mcp", false, "Run as Model Context Protocol server")

	rootCmd.AddCommand(newSnapshotCmd(), newVerifyCmd(), newRestoreCmd())

	return rootCmd.Execute()
}

// loadRunConfig resolves the configuration and the requested environment
// for a command invocation.
func loadRunConfig(cmd *cobra.Command) (*Config, EnvironmentConfig, error) {
	cfg, err := LoadConfig(cfgFile, cmd.Flags())
	if err != nil {
		return nil, EnvironmentConfig{}, err
	}
	if envName == "" {
		return nil, EnvironmentConfig{}, errors.New("--env is required")
	}
	envCfg, err := cfg.Environment(envName)
	if err != nil {
		return nil, EnvironmentConfig{}, err
	}
	return cfg, envCfg, nil
}

// runContext applies the configured wall-clock timeout.
func runContext(ctx context.Context, cfg *Config) (context.Context, context.CancelFunc) {
	if cfg.Snapshot.Timeout > 0 {
		return context.WithTimeout(ctx, cfg.Snapshot.Timeout)
	}
	return context.WithCancel(ctx)
}
