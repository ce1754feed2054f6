package cmd

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"

	"hpcbench/internal/job"
	"hpcbench/internal/matrix"
	"hpcbench/internal/orchestrator"
	"hpcbench/internal/scheduler"
	"hpcbench/internal/store"
	"hpcbench/pkg/api"

	"github.com/spf13/cobra"
)

var submitCmd = &cobra.Command{
	Use:   "submit [sweep]",
	Short: "Submit every job of a sweep to the scheduler",
	Long: `Render every job of a sweep and hand each script to the scheduler, one at a time.

A job the scheduler rejects is reported and the sweep continues. Submissions are
recorded in the database when DATABASE_URL is set.

Example:
  benchctl submit compare
  benchctl submit strong --dry-run
  HPCBENCH_SUBMIT_INTERVAL=2s benchctl submit weak --json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		asJSON, _ := cmd.Flags().GetBool("json")

		env, err := setup(cmd)
		if err != nil {
			return err
		}
		defer env.close(context.WithoutCancel(cmd.Context()))

		spec, err := env.sweep(args[0])
		if err != nil {
			cmd.Printf("Error: %v\n", err)
			return nil
		}
		seq, err := matrix.Generate(spec)
		if err != nil {
			cmd.Printf("Error: %v\n", err)
			return nil
		}

		if dryRun {
			n := 0
			for d := range seq {
				printStarting(cmd, d)
				n++
			}
			cmd.Printf("Dry run: %d jobs not submitted\n", n)
			return nil
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		var submissions store.SubmissionStore
		if env.cfg.DatabaseURL != "" {
			db, err := env.database(ctx)
			if err != nil {
				cmd.Printf("Error: %v\n", err)
				return nil
			}
			submissions = db
		}

		submitter := scheduler.NewSubmitter(scheduler.NewExecRunner(""), scheduler.SubmitterConfig{
			Command:   env.cfg.Scheduler.Command,
			Args:      env.cfg.Scheduler.Args,
			ScriptDir: env.cfg.Scheduler.ScriptDir,
		})

		o := orchestrator.New(submitter, submissions, env.instruments, env.log, orchestrator.Config{
			Sweep:    spec.Name,
			Interval: env.cfg.SubmitInterval,
		})
		if !asJSON {
			o.OnStart = func(d job.Descriptor) { printStarting(cmd, d) }
		}

		report, err := o.Run(ctx, seq)
		if err != nil {
			cmd.Printf("Interrupted: %v\n", err)
		}

		if asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(toSubmitReport(report))
		}
		printReport(cmd, report)
		return nil
	},
}

// printStarting prints the progress line of one job.
func printStarting(cmd *cobra.Command, d job.Descriptor) {
	cmd.Printf("Starting %s @ '%s' (%d cores, %.1fGB RAM)\n",
		filepath.Base(d.Directory), d.Args, d.Resources.CoreCount, float64(d.Resources.MemoryMB)/1000)
}

func printReport(cmd *cobra.Command, report *orchestrator.Report) {
	cmd.Println()
	for _, e := range report.Entries {
		switch e.Status {
		case store.SubmissionAcknowledged:
			cmd.Printf("%s %s  job %d\n", statusIcon(string(e.Status)), e.Label, e.JobID)
		default:
			msg := "no job id in scheduler output"
			if e.Err != nil {
				msg = e.Err.Error()
			}
			cmd.Printf("%s %s  %s%s%s\n", statusIcon(string(e.Status)), e.Label, colorDim, msg, colorReset)
		}
	}

	cmd.Println("──────────────────────────────")
	cmd.Printf("%sRun ID:%s  %s\n", colorDim, colorReset, report.RunID)
	cmd.Printf("%sSweep:%s   %s\n", colorDim, colorReset, report.Sweep)
	cmd.Printf("%sJobs:%s    %d\n", colorDim, colorReset, report.Total())
	for _, status := range sortedStatuses(report.Counts) {
		cmd.Printf("  %s: %d\n", colorizeStatus(string(status)), report.Counts[status])
	}
}

func sortedStatuses(counts map[store.SubmissionStatus]int) []store.SubmissionStatus {
	statuses := make([]store.SubmissionStatus, 0, len(counts))
	for s := range counts {
		statuses = append(statuses, s)
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i] < statuses[j] })
	return statuses
}

func toSubmitReport(report *orchestrator.Report) api.SubmitReport {
	out := api.SubmitReport{
		RunID:   report.RunID.String(),
		Sweep:   report.Sweep,
		Total:   report.Total(),
		Counts:  make(map[string]int, len(report.Counts)),
		Entries: make([]api.SubmissionEntry, 0, len(report.Entries)),
	}
	for status, n := range report.Counts {
		out.Counts[string(status)] = n
	}
	for _, e := range report.Entries {
		entry := api.SubmissionEntry{
			Label:     e.Label,
			Directory: e.Directory,
			Args:      e.Args,
			CoreCount: e.CoreCount,
			MemoryMB:  e.MemoryMB,
			Status:    string(e.Status),
		}
		if e.Status == store.SubmissionAcknowledged {
			jobID := e.JobID
			entry.JobID = &jobID
		}
		if e.Err != nil {
			entry.Error = e.Err.Error()
		}
		out.Entries = append(out.Entries, entry)
	}
	return out
}

func init() {
	flags := submitCmd.Flags()
	flags.Bool("dry-run", false, "Print the jobs that would be submitted without submitting them")
	flags.Bool("json", false, "Print the run report as JSON")
	rootCmd.AddCommand(submitCmd)
}
