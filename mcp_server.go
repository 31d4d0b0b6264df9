package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/vsamanullah/migverify/integrity"
)

// StartMCPServer starts the MCP server exposing snapshot capture and
// migration verification as tools.
func StartMCPServer() error {
	s := server.NewMCPServer(
		"migverify",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	captureSnapshotTool := mcp.NewTool("capture_snapshot",
		mcp.WithDescription("Capture a baseline snapshot of a PostgreSQL database environment"),
		mcp.WithString("environment",
			mcp.Required(),
			mcp.Description("Environment name from the config file"),
		),
		mcp.WithString("output_path",
			mcp.Required(),
			mcp.Description("Path to write the snapshot JSON document"),
		),
		mcp.WithString("config_path",
			mcp.Description("Config file path (default: migverify.yaml)"),
		),
		mcp.WithString("include_data",
			mcp.Description("Set to 'true' to retain full row data (restore-capable snapshot)"),
			mcp.Enum("true", "false"),
		),
	)

	s.AddTool(captureSnapshotTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleCaptureSnapshot(ctx, request)
	})

	verifyMigrationTool := mcp.NewTool("verify_migration",
		mcp.WithDescription("Verify a PostgreSQL database environment against a baseline snapshot"),
		mcp.WithString("environment",
			mcp.Required(),
			mcp.Description("Environment name from the config file"),
		),
		mcp.WithString("baseline_path",
			mcp.Required(),
			mcp.Description("Path to the baseline snapshot JSON document"),
		),
		mcp.WithString("config_path",
			mcp.Description("Config file path (default: migverify.yaml)"),
		),
		mcp.WithString("strict_checksum",
			mcp.Description("Set to 'true' to fail on checksum mismatch with identical row count"),
			mcp.Enum("true", "false"),
		),
	)

	s.AddTool(verifyMigrationTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleVerifyMigration(ctx, request)
	})

	inspectSnapshotTool := mcp.NewTool("inspect_snapshot",
		mcp.WithDescription("Summarize a snapshot document without touching any database"),
		mcp.WithString("snapshot_path",
			mcp.Required(),
			mcp.Description("Path to the snapshot JSON document"),
		),
	)

	s.AddTool(inspectSnapshotTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleInspectSnapshot(ctx, request)
	})

	slog.Info("starting migverify mcp server")
	return server.ServeStdio(s)
}

func handleCaptureSnapshot(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	envName, err := request.RequireString("environment")
	if err != nil {
		return mcp.NewToolResultError("environment parameter is required"), nil
	}
	outputPath, err := request.RequireString("output_path")
	if err != nil {
		return mcp.NewToolResultError("output_path parameter is required"), nil
	}
	configPath := request.GetString("config_path", "")
	includeData, _ := strconv.ParseBool(request.GetString("include_data", "false"))

	output, err := captureSnapshotCore(ctx, configPath, envName, outputPath, includeData)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("snapshot captured successfully:\n\n%s", output)), nil
}

// captureSnapshotCore contains the core capture logic, separated for testing
func captureSnapshotCore(ctx context.Context, configPath, envName, outputPath string, includeData bool) (string, error) {
	cfg, err := LoadConfig(configPath, nil)
	if err != nil {
		return "", err
	}
	envCfg, err := cfg.Environment(envName)
	if err != nil {
		return "", err
	}

	opts := cfg.CaptureOptions(envName)
	opts.IncludeData = opts.IncludeData || includeData

	runCtx, cancel := runContext(ctx, cfg)
	defer cancel()
	if err := processSnapshot(runCtx, envCfg, opts, outputPath,
		NewPostgresConnectionFactory(), NewLiveCapturer(), NewFileSnapshotStore()); err != nil {
		return "", err
	}

	return fmt.Sprintf("baseline written to %s", outputPath), nil
}

func handleVerifyMigration(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	envName, err := request.RequireString("environment")
	if err != nil {
		return mcp.NewToolResultError("environment parameter is required"), nil
	}
	baselinePath, err := request.RequireString("baseline_path")
	if err != nil {
		return mcp.NewToolResultError("baseline_path parameter is required"), nil
	}
	configPath := request.GetString("config_path", "")
	strict, _ := strconv.ParseBool(request.GetString("strict_checksum", "false"))

	output, err := verifyMigrationCore(ctx, configPath, envName, baselinePath, strict)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(output), nil
}

// verifyMigrationCore contains the core verification logic, separated for testing
func verifyMigrationCore(ctx context.Context, configPath, envName, baselinePath string, strict bool) (string, error) {
	cfg, err := LoadConfig(configPath, nil)
	if err != nil {
		return "", err
	}
	envCfg, err := cfg.Environment(envName)
	if err != nil {
		return "", err
	}

	opts := cfg.VerifyOptions()
	opts.StrictChecksum = opts.StrictChecksum || strict

	runCtx, cancel := runContext(ctx, cfg)
	defer cancel()

	var buf bytes.Buffer
	report, err := processVerify(runCtx, envCfg, baselinePath, opts, &buf, "",
		NewPostgresConnectionFactory(), NewFileSnapshotStore(), NewLiveVerifier())
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("verification completed with overall status %s:\n\n%s", report.Overall, buf.String()), nil
}

func handleInspectSnapshot(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	snapshotPath, err := request.RequireString("snapshot_path")
	if err != nil {
		return mcp.NewToolResultError("snapshot_path parameter is required"), nil
	}

	output, err := inspectSnapshotCore(snapshotPath)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("snapshot summary:\n\n%s", output)), nil
}

// inspectSnapshotCore contains the core inspection logic, separated for testing
func inspectSnapshotCore(snapshotPath string) (string, error) {
	snap, err := integrity.LoadSnapshot(snapshotPath)
	if err != nil {
		return "", err
	}

	type tableSummary struct {
		RowCount       int64  `json:"row_count"`
		Columns        int    `json:"columns"`
		Checksum       string `json:"checksum"`
		RestoreCapable bool   `json:"restore_capable"`
	}

	summary := map[string]any{
		"format_version": snap.FormatVersion,
		"captured_at":    snap.Metadata.CapturedAt,
		"source_label":   snap.Metadata.SourceLabel,
		"table_count":    snap.Metadata.TableCount,
		"total_rows":     snap.Metadata.TotalRowCount,
	}
	tables := make(map[string]tableSummary, len(snap.Tables))
	for _, name := range snap.TableNames() {
		ts := snap.Tables[name]
		tables[name] = tableSummary{
			RowCount:       ts.RowCount,
			Columns:        len(ts.Columns),
			Checksum:       ts.Checksum,
			RestoreCapable: ts.RowCount == 0 || len(ts.Data) > 0,
		}
	}
	summary["tables"] = tables

	jsonOutput, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal summary to JSON: %w", err)
	}

	return string(jsonOutput), nil
}
