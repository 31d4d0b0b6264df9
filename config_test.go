package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vsamanullah/migverify/integrity"
)

const testConfigYAML = `
environments:
  source:
    host: db1.example.com
    port: 5432
    database: app
    username: app_user
    password: secret
  target:
    host: db2.example.com
    port: 5433
    database: app
    username: app_user
snapshot:
  page_size: 100
  timeout: 30s
checks:
  strict_checksum: true
`

func writeTestConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "migverify.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testConfigYAML), 0o644))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := LoadConfig("", nil)
	require.NoError(t, err)

	assert.Equal(t, integrity.DefaultPageSize, cfg.Snapshot.PageSize)
	assert.Equal(t, integrity.DefaultConcurrency, cfg.Snapshot.Concurrency)
	assert.Equal(t, 10*time.Minute, cfg.Snapshot.Timeout)
	assert.False(t, cfg.Snapshot.IncludeData)
	assert.False(t, cfg.Checks.StrictChecksum)
	assert.Empty(t, cfg.Environments)
}

func TestLoadConfigFromFile(t *testing.T) {
	cfg, err := LoadConfig(writeTestConfig(t), nil)
	require.NoError(t, err)

	require.Contains(t, cfg.Environments, "source")
	src := cfg.Environments["source"]
	assert.Equal(t, "db1.example.com", src.Host)
	assert.Equal(t, 5432, src.Port)
	assert.Equal(t, "app", src.Database)
	assert.Equal(t, "app_user", src.Username)
	assert.Equal(t, "secret", src.Password)

	assert.Equal(t, 100, cfg.Snapshot.PageSize)
	assert.Equal(t, 30*time.Second, cfg.Snapshot.Timeout)
	// Unset keys keep their defaults.
	assert.Equal(t, integrity.DefaultConcurrency, cfg.Snapshot.Concurrency)
	assert.True(t, cfg.Checks.StrictChecksum)
}

func TestLoadConfigDiscoversFileInWorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "migverify.yml"), []byte("snapshot:\n  page_size: 42\n"), 0o644))

	cfg, err := LoadConfig("", nil)
	require.NoError(t, err)
	assert.Equal(t, 42, cfg.Snapshot.PageSize)
}

func TestLoadConfigEnvOverridesFile(t *testing.T) {
	t.Setenv("MIGVERIFY_SNAPSHOT__PAGE_SIZE", "123")
	t.Setenv("MIGVERIFY_ENVIRONMENTS__SOURCE__PASSWORD", "from-env")

	cfg, err := LoadConfig(writeTestConfig(t), nil)
	require.NoError(t, err)

	assert.Equal(t, 123, cfg.Snapshot.PageSize)
	assert.Equal(t, "from-env", cfg.Environments["source"].Password)
	// Values the environment does not touch stay from the file.
	assert.Equal(t, "db1.example.com", cfg.Environments["source"].Host)
}

func TestLoadConfigFlagsOverrideEverything(t *testing.T) {
	t.Setenv("MIGVERIFY_SNAPSHOT__PAGE_SIZE", "123")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("page-size", integrity.DefaultPageSize, "")
	flags.Int("concurrency", integrity.DefaultConcurrency, "")
	flags.Bool("strict-checksum", false, "")
	require.NoError(t, flags.Set("page-size", "50"))

	cfg, err := LoadConfig(writeTestConfig(t), flags)
	require.NoError(t, err)

	// The explicitly set flag wins over env and file.
	assert.Equal(t, 50, cfg.Snapshot.PageSize)
	// Flags left at their default never mask lower layers.
	assert.Equal(t, integrity.DefaultConcurrency, cfg.Snapshot.Concurrency)
	assert.True(t, cfg.Checks.StrictChecksum)
}

func TestEnvironmentLookup(t *testing.T) {
	cfg, err := LoadConfig(writeTestConfig(t), nil)
	require.NoError(t, err)

	envCfg, err := cfg.Environment("target")
	require.NoError(t, err)
	assert.Equal(t, "db2.example.com", envCfg.Host)

	_, err = cfg.Environment("production")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `environment "production" not found`)
	assert.Contains(t, err.Error(), "source, target")
}

func TestConfigOptionMapping(t *testing.T) {
	cfg := &Config{
		Snapshot: SnapshotSettings{PageSize: 250, Concurrency: 2, IncludeData: true},
		Checks:   ChecksSettings{StrictChecksum: true},
	}

	capture := cfg.CaptureOptions("staging")
	assert.Equal(t, "staging", capture.SourceLabel)
	assert.Equal(t, 250, capture.PageSize)
	assert.Equal(t, 2, capture.Concurrency)
	assert.True(t, capture.IncludeData)

	verify := cfg.VerifyOptions()
	assert.Equal(t, 250, verify.PageSize)
	assert.True(t, verify.StrictChecksum)
}
