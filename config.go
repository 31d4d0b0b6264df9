package main

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/vsamanullah/migverify/integrity"
)

// EnvironmentConfig holds the connection details for one named database
// environment.
type EnvironmentConfig struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Database string `koanf:"database"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
	SSLMode  string `koanf:"sslmode"`
}

// SnapshotSettings tune the capture and verification engine.
type SnapshotSettings struct {
	PageSize    int           `koanf:"page_size"`
	Concurrency int           `koanf:"concurrency"`
	Timeout     time.Duration `koanf:"timeout"`
	IncludeData bool          `koanf:"include_data"`
}

// ChecksSettings tune comparison policy.
type ChecksSettings struct {
	StrictChecksum bool `koanf:"strict_checksum"`
}

// Config is the full immutable run configuration. It is loaded once and
// passed into each constructor; nothing reads ambient global state.
type Config struct {
	Environments map[string]EnvironmentConfig `koanf:"environments"`
	Snapshot     SnapshotSettings             `koanf:"snapshot"`
	Checks       ChecksSettings               `koanf:"checks"`
}

// Environment resolves a named environment, listing the known names in the
// error to keep typos diagnosable.
func (c *Config) Environment(name string) (EnvironmentConfig, error) {
	if envCfg, ok := c.Environments[name]; ok {
		return envCfg, nil
	}
	known := make([]string, 0, len(c.Environments))
	for n := range c.Environments {
		known = append(known, n)
	}
	sort.Strings(known)
	return EnvironmentConfig{}, fmt.Errorf("environment %q not found in configuration (known: %s)", name, strings.Join(known, ", "))
}

// CaptureOptions maps the settings onto engine capture options.
func (c *Config) CaptureOptions(label string) integrity.CaptureOptions {
	return integrity.CaptureOptions{
		SourceLabel: label,
		PageSize:    c.Snapshot.PageSize,
		Concurrency: c.Snapshot.Concurrency,
		IncludeData: c.Snapshot.IncludeData,
	}
}

// VerifyOptions maps the settings onto engine verify options.
func (c *Config) VerifyOptions() integrity.VerifyOptions {
	return integrity.VerifyOptions{
		PageSize:       c.Snapshot.PageSize,
		Concurrency:    c.Snapshot.Concurrency,
		StrictChecksum: c.Checks.StrictChecksum,
	}
}

func defaultConfig() map[string]any {
	return map[string]any{
		"snapshot.page_size":     integrity.DefaultPageSize,
		"snapshot.concurrency":   integrity.DefaultConcurrency,
		"snapshot.timeout":       "10m",
		"snapshot.include_data":  false,
		"checks.strict_checksum": false,
	}
}

// flagKeys maps CLI flag names onto config keys for override resolution.
var flagKeys = map[string]string{
	"page-size":       "snapshot.page_size",
	"concurrency":     "snapshot.concurrency",
	"timeout":         "snapshot.timeout",
	"include-data":    "snapshot.include_data",
	"strict-checksum": "checks.strict_checksum",
}

// findConfigFile returns the config file to use. Priority: explicit path,
// then migverify.yaml, then migverify.yml in the working directory.
func findConfigFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	for _, name := range []string{"migverify.yaml", "migverify.yml"} {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}
	return ""
}

// LoadConfig loads configuration with precedence (highest to lowest):
// flags > environment variables > config file > defaults. Environment
// variables use the MIGVERIFY_ prefix with "__" as the key separator,
// e.g. MIGVERIFY_SNAPSHOT__PAGE_SIZE.
func LoadConfig(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaultConfig(), "."), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if path := findConfigFile(cfgFile); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	err := k.Load(env.Provider("MIGVERIFY_", ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, "MIGVERIFY_")), "__", ".")
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	if flags != nil {
		err := k.Load(posflag.ProviderWithValue(flags, ".", k, func(key, value string) (string, any) {
			if mapped, ok := flagKeys[key]; ok {
				return mapped, value
			}
			return "", nil
		}), nil)
		if err != nil {
			return nil, fmt.Errorf("loading flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling configuration: %w", err)
	}
	return &cfg, nil
}
