package cmd

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"text/tabwriter"
	"time"

	"hpcbench/internal/results"
	"hpcbench/internal/store"
	"hpcbench/pkg/api"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var collectCmd = &cobra.Command{
	Use:   "collect [results_dir]",
	Short: "Parse the benchmark logs of finished jobs",
	Long: `Parse every output file two levels below the results directory
(<results_dir>/<run group>/<file>) into performance records.

Files that are not benchmark logs (for example jobs killed by the scheduler)
are listed as skipped. With --save, parsed results are stored in the database,
replacing earlier results from the same file.

Example:
  benchctl collect
  benchctl collect /scratch/results --json
  benchctl collect --save`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")
		save, _ := cmd.Flags().GetBool("save")

		env, err := setup(cmd)
		if err != nil {
			return err
		}
		defer env.close(cmd.Context())

		root := env.cfg.ResultsDir
		if len(args) == 1 {
			root = args[0]
		}

		var saver store.ResultStore
		if save {
			db, err := env.database(cmd.Context())
			if err != nil {
				cmd.Printf("Error: %v\n", err)
				return nil
			}
			saver = db
		}

		report := api.CollectReport{
			Root:     root,
			Results:  []api.ResultRecord{},
			Skipped:  []api.SkippedRecord{},
			Collated: time.Now().UTC(),
		}
		saved := 0

		collector := results.NewCollector(env.cfg.OutputSuffix)
		for outcome, err := range collector.Collect(root) {
			if err != nil {
				env.log.Error("failed to collect", "path", outcome.Path, "error", err)
				report.Errors = append(report.Errors, err.Error())
				continue
			}

			env.instruments.Results.Add(cmd.Context(), 1,
				metric.WithAttributes(attribute.String("kind", outcome.Kind.String())))

			if outcome.Kind != results.KindResult {
				env.log.Debug("skipping output file", "path", outcome.Path, "kind", outcome.Kind.String())
				skipped := api.SkippedRecord{Group: outcome.Group, Path: outcome.Path, Kind: outcome.Kind.String()}
				if outcome.Kind == results.KindMalformed {
					skipped.Reason = outcome.Err.Error()
				}
				report.Skipped = append(report.Skipped, skipped)
				continue
			}

			report.Results = append(report.Results, toResultRecord(outcome))

			if saver != nil {
				if err := saver.SaveRunResult(cmd.Context(), toStoreResult(outcome)); err != nil {
					env.log.Error("failed to save result", "path", outcome.Path, "error", err)
					report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", outcome.Path, err))
					continue
				}
				saved++
			}
		}

		if asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		}

		printResults(cmd, report)
		if save {
			cmd.Printf("Saved %d results\n", saved)
		}
		return nil
	},
}

func printResults(cmd *cobra.Command, report api.CollectReport) {
	if len(report.Results) == 0 {
		cmd.Printf("No benchmark results found in %s.\n", report.Root)
	} else {
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "GROUP\tNAME\tSIZE\tTOTAL (s)\tDDOT (s)\tWAXPBY (s)\tSPARSEMV (s)\tMFLOPS\tFILE")
		for _, r := range report.Results {
			fmt.Fprintf(w, "%s\t%s\t%dx%dx%d\t%.4f\t%.4f\t%.4f\t%.4f\t%.2f\t%s\n",
				r.Group,
				r.Name,
				r.Dimensions[0], r.Dimensions[1], r.Dimensions[2],
				r.Metrics[string(results.MetricTotal)].Seconds,
				r.Metrics[string(results.MetricDDOT)].Seconds,
				r.Metrics[string(results.MetricWAXPBY)].Seconds,
				r.Metrics[string(results.MetricSPARSEMV)].Seconds,
				r.Metrics[string(results.MetricTotal)].MFLOPS,
				filepath.Base(r.Path),
			)
		}
		w.Flush()
	}

	for _, s := range report.Skipped {
		if s.Reason != "" {
			cmd.Printf("%s skipped %s (%s): %s\n", colorYellow+"!"+colorReset, s.Path, s.Kind, s.Reason)
		} else {
			cmd.Printf("%s skipped %s (%s)\n", colorYellow+"!"+colorReset, s.Path, s.Kind)
		}
	}
	for _, e := range report.Errors {
		cmd.Printf("%s %s\n", colorRed+"✗"+colorReset, e)
	}
}

func toResultRecord(o results.Outcome) api.ResultRecord {
	r := o.Result
	rec := api.ResultRecord{
		Group:      o.Group,
		Path:       o.Path,
		Name:       r.Name,
		Dimensions: r.Dimensions,
		Metrics:    make(map[string]api.MetricRecord, len(results.Metrics)),
	}
	for _, m := range results.Metrics {
		rec.Metrics[string(m)] = api.MetricRecord{
			Seconds:   r.Timings[m],
			FlopCount: r.FlopCounts[m],
			MFLOPS:    r.Throughput[m],
		}
	}
	return rec
}

func toStoreResult(o results.Outcome) *store.RunResult {
	r := o.Result
	sr := &store.RunResult{
		ID:         uuid.New(),
		RunGroup:   o.Group,
		SourcePath: o.Path,
		AppName:    r.Name,
		NX:         r.Dimensions[0],
		NY:         r.Dimensions[1],
		NZ:         r.Dimensions[2],
		CreatedAt:  time.Now().UTC(),
	}
	for _, m := range results.Metrics {
		sr.Metrics = append(sr.Metrics, store.MetricRow{
			Metric:    string(m),
			Seconds:   r.Timings[m],
			FlopCount: r.FlopCounts[m],
			MFLOPS:    r.Throughput[m],
		})
	}
	return sr
}

func init() {
	flags := collectCmd.Flags()
	flags.Bool("json", false, "Print results as JSON")
	flags.Bool("save", false, "Store parsed results in the database")
	rootCmd.AddCommand(collectCmd)
}
