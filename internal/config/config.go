// Package config loads hpcbench configuration from a YAML file and environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration values for the application.
type Config struct {
	// Database connection string. Empty disables persistence.
	DatabaseURL string

	// OTLP gRPC collector address. Empty disables tracing.
	OTELEndpoint string

	// Path of the Prometheus textfile written after each command. Empty disables it.
	MetricsTextfile string

	LogLevel slog.Level

	Scheduler SchedulerConfig

	// Minimum delay between two submissions.
	SubmitInterval time.Duration

	// HCL file with variant and sweep definitions. Empty uses the built-in sweeps.
	SweepFile string

	// Root of the run-group directories that output files are written to and collected from.
	ResultsDir string

	// Extension of the output files the collector parses.
	OutputSuffix string
}

// SchedulerConfig configures the batch scheduler invocation.
type SchedulerConfig struct {
	Command       string
	Args          []string
	LaunchCommand string
	ScriptDir     string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database_url", "")
	v.SetDefault("otel_endpoint", "")
	v.SetDefault("metrics_textfile", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("scheduler.command", "sbatch")
	v.SetDefault("scheduler.args", []string{})
	v.SetDefault("scheduler.launch_command", "srun")
	v.SetDefault("scheduler.script_dir", "")
	v.SetDefault("submit_interval", "0s")
	v.SetDefault("sweep_file", "")
	v.SetDefault("results_dir", "results")
	v.SetDefault("output_suffix", ".out")
}

// envBindings maps config keys to the environment variables that override them.
var envBindings = map[string]string{
	"database_url":             "DATABASE_URL",
	"otel_endpoint":            "OTEL_EXPORTER_OTLP_ENDPOINT",
	"metrics_textfile":         "HPCBENCH_METRICS_TEXTFILE",
	"log_level":                "HPCBENCH_LOG_LEVEL",
	"scheduler.command":        "HPCBENCH_SCHEDULER_COMMAND",
	"scheduler.launch_command": "HPCBENCH_LAUNCH_COMMAND",
	"scheduler.script_dir":     "HPCBENCH_SCRIPT_DIR",
	"submit_interval":          "HPCBENCH_SUBMIT_INTERVAL",
	"sweep_file":               "HPCBENCH_SWEEP_FILE",
	"results_dir":              "HPCBENCH_RESULTS_DIR",
	"output_suffix":            "HPCBENCH_OUTPUT_SUFFIX",
}

// Load reads configuration from an optional YAML file and environment variables.
// Environment variables take precedence over the file. When path is empty,
// hpcbench.yaml in the current directory is used if it exists.
func Load(path string) (*Config, error) {
	return LoadWith(viper.New(), path)
}

// LoadWith is Load on a caller-provided viper instance, so CLI flags bound to it
// take part in resolution.
func LoadWith(v *viper.Viper, path string) (*Config, error) {
	setDefaults(v)

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		v.SetConfigName("hpcbench")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(v.GetString("log_level"))); err != nil {
		return nil, fmt.Errorf("invalid log_level: %w", err)
	}

	interval, err := time.ParseDuration(v.GetString("submit_interval"))
	if err != nil {
		return nil, fmt.Errorf("invalid submit_interval: %w", err)
	}

	cfg := &Config{
		DatabaseURL:     v.GetString("database_url"),
		OTELEndpoint:    v.GetString("otel_endpoint"),
		MetricsTextfile: v.GetString("metrics_textfile"),
		LogLevel:        level,
		Scheduler: SchedulerConfig{
			Command:       v.GetString("scheduler.command"),
			Args:          v.GetStringSlice("scheduler.args"),
			LaunchCommand: v.GetString("scheduler.launch_command"),
			ScriptDir:     v.GetString("scheduler.script_dir"),
		},
		SubmitInterval: interval,
		SweepFile:      v.GetString("sweep_file"),
		ResultsDir:     v.GetString("results_dir"),
		OutputSuffix:   v.GetString("output_suffix"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that cannot be caught while decoding.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Scheduler.Command) == "" {
		return fmt.Errorf("scheduler.command is required (env: HPCBENCH_SCHEDULER_COMMAND)")
	}
	if c.SubmitInterval < 0 {
		return fmt.Errorf("submit_interval must not be negative, got %v", c.SubmitInterval)
	}
	if !strings.HasPrefix(c.OutputSuffix, ".") {
		return fmt.Errorf("output_suffix must start with '.', got %q", c.OutputSuffix)
	}
	if c.ScriptDirMissing() {
		return fmt.Errorf("scheduler.script_dir %q does not exist", c.Scheduler.ScriptDir)
	}
	return nil
}

// ScriptDirMissing reports whether a configured script directory is absent.
func (c *Config) ScriptDirMissing() bool {
	if c.Scheduler.ScriptDir == "" {
		return false
	}
	info, err := os.Stat(c.Scheduler.ScriptDir)
	return err != nil || !info.IsDir()
}
