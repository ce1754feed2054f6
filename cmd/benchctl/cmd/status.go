package cmd

import (
	"encoding/json"
	"fmt"
	"sort"
	"text/tabwriter"
	"time"

	"hpcbench/internal/store"
	"hpcbench/pkg/api"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status [run_id]",
	Short: "Show recorded submissions",
	Long: `Show the submissions recorded in the database.

Without a run id, prints the number of submissions per status across all runs.
With a run id, lists the submissions of that run in order.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		var runID uuid.UUID
		if len(args) == 1 {
			var err error
			runID, err = uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid run id %q: %w", args[0], err)
			}
		}

		env, err := setup(cmd)
		if err != nil {
			return err
		}
		defer env.close(cmd.Context())

		db, err := env.database(cmd.Context())
		if err != nil {
			cmd.Printf("Error: %v\n", err)
			return nil
		}

		if runID == uuid.Nil {
			counts, err := db.CountSubmissionsByStatus(cmd.Context())
			if err != nil {
				cmd.Printf("Failed to count submissions: %v\n", err)
				return nil
			}
			if asJSON {
				resp := api.SubmissionCountsResponse{Counts: make(map[string]int64, len(counts))}
				for s, n := range counts {
					resp.Counts[string(s)] = n
				}
				return json.NewEncoder(cmd.OutOrStdout()).Encode(resp)
			}
			printCounts(cmd, counts)
			return nil
		}

		subs, err := db.ListSubmissions(cmd.Context(), runID)
		if err != nil {
			cmd.Printf("Failed to list submissions: %v\n", err)
			return nil
		}
		if asJSON {
			return json.NewEncoder(cmd.OutOrStdout()).Encode(toRunSubmissions(runID, subs))
		}
		if len(subs) == 0 {
			cmd.Printf("No submissions recorded for run %s.\n", runID)
			return nil
		}
		printSubmissions(cmd, subs)
		return nil
	},
}

func printCounts(cmd *cobra.Command, counts map[store.SubmissionStatus]int64) {
	statuses := make([]store.SubmissionStatus, 0, len(counts))
	for s := range counts {
		statuses = append(statuses, s)
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i] < statuses[j] })

	cmd.Printf("%sSubmissions%s\n", colorBold, colorReset)
	cmd.Println("──────────────────────────────")
	for _, s := range statuses {
		cmd.Printf("%s %-14s %d\n", statusIcon(string(s)), colorizeStatus(string(s)), counts[s])
	}
}

func printSubmissions(cmd *cobra.Command, subs []store.Submission) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "LABEL\tSTATUS\tJOB ID\tSUBMITTED\tERROR")
	for _, s := range subs {
		jobID := "-"
		if s.JobID != nil {
			jobID = fmt.Sprint(*s.JobID)
		}
		errMsg := ""
		if s.ErrorMessage != nil {
			errMsg = truncate(*s.ErrorMessage, 50)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			s.Label,
			s.Status,
			jobID,
			s.CreatedAt.Format(time.RFC3339),
			errMsg,
		)
	}
	w.Flush()
}

// truncate shortens s to at most n runes, ending in "..." when cut.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-3]) + "..."
}

func toRunSubmissions(runID uuid.UUID, subs []store.Submission) api.RunSubmissions {
	out := api.RunSubmissions{
		RunID:       runID.String(),
		Submissions: make([]api.RecordedSubmission, 0, len(subs)),
	}
	for _, s := range subs {
		rec := api.RecordedSubmission{
			SubmissionEntry: api.SubmissionEntry{
				Label:     s.Label,
				Directory: s.Directory,
				Args:      s.Args,
				CoreCount: s.CoreCount,
				MemoryMB:  s.MemoryMB,
				Status:    string(s.Status),
				JobID:     s.JobID,
			},
			Sweep:       s.Sweep,
			Timeout:     s.Timeout,
			SubmittedAt: s.CreatedAt,
		}
		if s.ErrorMessage != nil {
			rec.Error = *s.ErrorMessage
		}
		out.Submissions = append(out.Submissions, rec)
	}
	return out
}

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
)

func statusIcon(status string) string {
	switch store.SubmissionStatus(status) {
	case store.SubmissionAcknowledged:
		return colorGreen + "✓" + colorReset
	case store.SubmissionFailed, store.SubmissionInvalid:
		return colorRed + "✗" + colorReset
	case store.SubmissionNoID:
		return colorYellow + "?" + colorReset
	default:
		return "•"
	}
}

func colorizeStatus(status string) string {
	switch store.SubmissionStatus(status) {
	case store.SubmissionAcknowledged:
		return colorGreen + status + colorReset
	case store.SubmissionFailed, store.SubmissionInvalid:
		return colorRed + status + colorReset
	case store.SubmissionNoID:
		return colorYellow + status + colorReset
	default:
		return status
	}
}

func init() {
	statusCmd.Flags().Bool("json", false, "Print counts or submissions as JSON")
	rootCmd.AddCommand(statusCmd)
}
