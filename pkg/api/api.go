// Package api contains the JSON documents printed by benchctl.
// This package is shared by the CLI and any tooling that consumes its output.
package api

import "time"

// SubmitReport is the output of `benchctl submit --json`.
type SubmitReport struct {
	RunID   string            `json:"run_id"`
	Sweep   string            `json:"sweep"`
	Total   int               `json:"total"`
	Counts  map[string]int    `json:"counts"`
	Entries []SubmissionEntry `json:"entries"`
}

// SubmissionEntry describes one submission attempt.
type SubmissionEntry struct {
	Label     string `json:"label"`
	Directory string `json:"directory"`
	Args      string `json:"args"`
	CoreCount int    `json:"core_count"`
	MemoryMB  int    `json:"memory_mb"`
	Status    string `json:"status"`
	JobID     *int64 `json:"job_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

// RunSubmissions is the output of `benchctl status <run_id> --json`.
type RunSubmissions struct {
	RunID       string               `json:"run_id"`
	Submissions []RecordedSubmission `json:"submissions"`
}

// RecordedSubmission is a submission as stored in the database.
type RecordedSubmission struct {
	SubmissionEntry
	Sweep       string    `json:"sweep"`
	Timeout     string    `json:"timeout"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// CollectReport is the output of `benchctl collect --json`.
type CollectReport struct {
	Root     string          `json:"root"`
	Results  []ResultRecord  `json:"results"`
	Skipped  []SkippedRecord `json:"skipped"`
	Errors   []string        `json:"errors,omitempty"`
	Collated time.Time       `json:"collated_at"`
}

// ResultRecord is one parsed benchmark log.
type ResultRecord struct {
	Group      string                  `json:"group"`
	Path       string                  `json:"path"`
	Name       string                  `json:"name"`
	Dimensions [3]int                  `json:"dimensions"`
	Metrics    map[string]MetricRecord `json:"metrics"`
}

// MetricRecord holds the three summary values of one metric.
type MetricRecord struct {
	Seconds   float64 `json:"seconds"`
	FlopCount int64   `json:"flops"`
	MFLOPS    float64 `json:"mflops"`
}

// SkippedRecord is an output file that did not yield a result.
type SkippedRecord struct {
	Group  string `json:"group"`
	Path   string `json:"path"`
	Kind   string `json:"kind"`
	Reason string `json:"reason,omitempty"`
}

// SubmissionCountsResponse is the output of `benchctl status --json`.
type SubmissionCountsResponse struct {
	Counts map[string]int64 `json:"counts"`
}
