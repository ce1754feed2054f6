// Package store contains the database layer for hpcbench.
package store

import (
	"time"

	"github.com/google/uuid"
)

// SubmissionStatus represents the outcome of one submission attempt.
type SubmissionStatus string

const (
	// SubmissionAcknowledged means the scheduler returned a job id.
	SubmissionAcknowledged SubmissionStatus = "acknowledged"
	// SubmissionNoID means the scheduler exited successfully without a job id.
	SubmissionNoID SubmissionStatus = "no_id"
	// SubmissionFailed means the scheduler command could not run or exited non-zero.
	SubmissionFailed SubmissionStatus = "failed"
	// SubmissionInvalid means the descriptor was rejected before reaching the scheduler.
	SubmissionInvalid SubmissionStatus = "invalid"
)

// Submission records one descriptor handed to the scheduler.
type Submission struct {
	ID           uuid.UUID
	RunID        uuid.UUID
	Sweep        string
	Label        string
	Directory    string
	Args         string
	CoreCount    int
	MemoryMB     int
	Timeout      string
	Status       SubmissionStatus
	JobID        *int64
	ErrorMessage *string
	Script       string
	CreatedAt    time.Time
}

// RunResult is a parsed benchmark log as persisted.
type RunResult struct {
	ID         uuid.UUID
	RunGroup   string
	SourcePath string
	AppName    string
	NX, NY, NZ int
	Metrics    []MetricRow
	CreatedAt  time.Time
}

// MetricRow holds the three summary values of one metric.
type MetricRow struct {
	Metric    string
	Seconds   float64
	FlopCount int64
	MFLOPS    float64
}
