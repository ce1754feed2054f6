package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

func resetViper() {
	viper.Reset()
	bindFlags()
}

// resetFlags restores every flag of c and its subcommands to its default.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// isolate clears configuration from the host and runs the test in an empty directory.
func isolate(t *testing.T) string {
	t.Helper()
	for _, env := range []string{
		"DATABASE_URL", "OTEL_EXPORTER_OTLP_ENDPOINT",
		"HPCBENCH_METRICS_TEXTFILE", "HPCBENCH_LOG_LEVEL",
		"HPCBENCH_SCHEDULER_COMMAND", "HPCBENCH_LAUNCH_COMMAND", "HPCBENCH_SCRIPT_DIR",
		"HPCBENCH_SUBMIT_INTERVAL", "HPCBENCH_SWEEP_FILE", "HPCBENCH_RESULTS_DIR", "HPCBENCH_OUTPUT_SUFFIX",
	} {
		t.Setenv(env, "")
	}
	dir := t.TempDir()
	t.Chdir(dir)
	return dir
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	resetViper()
	resetFlags(rootCmd)
	cfgFile = ""

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)

	err := rootCmd.Execute()
	return stdout.String(), stderr.String(), err
}

// fakeScheduler writes an executable that stands in for sbatch.
func fakeScheduler(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sbatch")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("failed to write fake scheduler: %v", err)
	}
	return path
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
