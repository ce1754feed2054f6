package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "benchctl",
	Short: "benchctl runs benchmark test matrices on a Slurm batch cluster",
	Long: `benchctl is the command-line tool for benchmarking the HPCCG translations.

It expands sweep definitions into batch jobs, renders each job into an sbatch
script, submits the scripts to the scheduler, and later parses the benchmark
logs the jobs wrote into structured performance records.

Common workflows:

  List the available sweeps:
    benchctl sweeps

  Inspect the scripts of a sweep without submitting:
    benchctl render strong --out ./scripts

  Submit a sweep:
    benchctl submit compare

  Parse every benchmark log under the results directory:
    benchctl collect --json

  Store submissions and results in PostgreSQL:
    benchctl migrate
    benchctl collect --save

Configuration:
  Values come from hpcbench.yaml (or --config), overridden by environment variables:
    HPCBENCH_SCHEDULER_COMMAND   Submission command (default: sbatch)
    HPCBENCH_SWEEP_FILE          HCL sweep definitions (default: built-in sweeps)
    HPCBENCH_RESULTS_DIR         Root of the run-group directories (default: results)
    HPCBENCH_SUBMIT_INTERVAL     Minimum delay between submissions (default: 0s)
    DATABASE_URL                 PostgreSQL connection string (optional)`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// bindFlags connects the persistent flags to their configuration keys.
func bindFlags() {
	flags := rootCmd.PersistentFlags()
	viper.BindPFlag("log_level", flags.Lookup("log-level"))
	viper.BindPFlag("sweep_file", flags.Lookup("sweep-file"))
	viper.BindPFlag("results_dir", flags.Lookup("results-dir"))
	viper.BindPFlag("metrics_textfile", flags.Lookup("metrics-textfile"))
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is ./hpcbench.yaml)")
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	flags.String("sweep-file", "", "HCL file with variant and sweep definitions")
	flags.String("results-dir", "results", "Root of the run-group directories")
	flags.String("metrics-textfile", "", "Write Prometheus metrics to this file on exit")
	bindFlags()
}
