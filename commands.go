package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/vsamanullah/migverify/integrity"
)

func newSnapshotCmd() *cobra.Command {
	var (
		outputPath string
		label      string
	)

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Capture a baseline snapshot of a live database",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, envCfg, err := loadRunConfig(cmd)
			if err != nil {
				return err
			}
			if label == "" {
				label = envName
			}

			ctx, cancel := runContext(context.Background(), cfg)
			defer cancel()

			return processSnapshot(ctx, envCfg, cfg.CaptureOptions(label), outputPath,
				NewPostgresConnectionFactory(), NewLiveCapturer(), NewFileSnapshotStore())
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "baseline.json", "snapshot output path")
	cmd.Flags().StringVar(&label, "label", "", "source label stored in the snapshot (default: environment name)")
	cmd.Flags().Bool("include-data", false, "retain full row data (restore-capable snapshot)")
	return cmd
}

func newVerifyCmd() *cobra.Command {
	var (
		baselinePath string
		jsonPath     string
	)

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Compare a live database against a baseline snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, envCfg, err := loadRunConfig(cmd)
			if err != nil {
				return err
			}

			ctx, cancel := runContext(context.Background(), cfg)
			defer cancel()

			report, err := processVerify(ctx, envCfg, baselinePath, cfg.VerifyOptions(), os.Stdout, jsonPath,
				NewPostgresConnectionFactory(), NewFileSnapshotStore(), NewLiveVerifier())
			if err != nil {
				return err
			}
			if report.ExitCode() != 0 {
				return errChecksFailed
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&baselinePath, "baseline", "b", "baseline.json", "baseline snapshot path")
	cmd.Flags().StringVar(&jsonPath, "json", "", "also write the report as JSON to this path")
	cmd.Flags().Bool("strict-checksum", false, "fail (not warn) on checksum mismatch with identical row count")
	return cmd
}

func newRestoreCmd() *cobra.Command {
	var snapshotPath string

	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Load a restore-capable snapshot into a live database",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, envCfg, err := loadRunConfig(cmd)
			if err != nil {
				return err
			}

			ctx, cancel := runContext(context.Background(), cfg)
			defer cancel()

			summary, err := processRestore(ctx, envCfg, snapshotPath,
				NewPostgresConnectionFactory(), NewFileSnapshotStore(), NewLiveRestorer())
			if err != nil {
				return err
			}
			if summary.Failures() > 0 {
				return errChecksFailed
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&snapshotPath, "snapshot", "s", "baseline.json", "restore-capable snapshot path")
	return cmd
}

func processSnapshot(ctx context.Context, envCfg EnvironmentConfig, opts integrity.CaptureOptions, outputPath string,
	factory ConnectionFactory, capturer Capturer, store SnapshotStore) error {
	slog.Info("capturing baseline snapshot", "source", opts.SourceLabel, "output", outputPath)

	db, err := factory.Open(ctx, envCfg)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	snap, err := capturer.Capture(ctx, db, opts)
	if err != nil {
		return fmt.Errorf("failed to capture snapshot: %w", err)
	}

	if err := store.Save(outputPath, snap); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}

	slog.Info("baseline saved", "path", outputPath,
		"tables", snap.Metadata.TableCount, "rows", snap.Metadata.TotalRowCount)
	return nil
}

func processVerify(ctx context.Context, envCfg EnvironmentConfig, baselinePath string, opts integrity.VerifyOptions,
	out io.Writer, jsonPath string, factory ConnectionFactory, store SnapshotStore, verifier Verifier) (*integrity.Report, error) {
	// The baseline is validated before any connection is made so format
	// errors abort before any table is processed.
	baseline, err := store.Load(baselinePath)
	if err != nil {
		return nil, fmt.Errorf("failed to load baseline: %w", err)
	}
	slog.Info("loaded baseline", "path", baselinePath,
		"source", baseline.Metadata.SourceLabel, "tables", baseline.Metadata.TableCount)

	db, err := factory.Open(ctx, envCfg)
	if err != nil {
		return nil, err
	}
	defer func() { _ = db.Close() }()

	results, err := verifier.Verify(ctx, db, baseline, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to verify: %w", err)
	}

	report := integrity.NewReport(baseline, results)
	report.Render(out)

	if jsonPath != "" {
		f, err := os.Create(jsonPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create report file: %w", err)
		}
		defer f.Close()
		if err := report.WriteJSON(f); err != nil {
			return nil, fmt.Errorf("failed to write report: %w", err)
		}
	}

	slog.Info("verification complete", "overall", report.Overall.String(),
		"passed", report.Passed, "warned", report.Warned, "failed", report.Failed, "incomplete", report.Incomplete)
	return report, nil
}

func processRestore(ctx context.Context, envCfg EnvironmentConfig, snapshotPath string,
	factory ConnectionFactory, store SnapshotStore, restorer Restorer) (*integrity.RestoreSummary, error) {
	snap, err := store.Load(snapshotPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}

	db, err := factory.Open(ctx, envCfg)
	if err != nil {
		return nil, err
	}
	defer func() { _ = db.Close() }()

	summary, err := restorer.Restore(ctx, db, snap)
	if err != nil {
		return nil, fmt.Errorf("failed to restore: %w", err)
	}

	slog.Info("restore complete", "tables", len(summary.Inserted), "failures", summary.Failures())
	return summary, nil
}
