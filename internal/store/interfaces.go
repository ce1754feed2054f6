package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
)

// DBTransaction defines the methods shared by *sql.DB and *sql.Tx
// This allows us to pass either a connection pool or an active transaction to the repository methods.
type DBTransaction interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// SubmissionStore records submission attempts.
type SubmissionStore interface {
	// CreateSubmission inserts one submission attempt.
	CreateSubmission(ctx context.Context, s *Submission) error

	// ListSubmissions returns the submissions of a run in insertion order.
	ListSubmissions(ctx context.Context, runID uuid.UUID) ([]Submission, error)

	// CountSubmissionsByStatus returns the number of submissions per status across all runs.
	CountSubmissionsByStatus(ctx context.Context) (map[SubmissionStatus]int64, error)
}

// ResultStore persists parsed benchmark logs.
type ResultStore interface {
	// SaveRunResult inserts a result and its metric rows atomically.
	// A result already stored for the same source path is replaced.
	SaveRunResult(ctx context.Context, r *RunResult) error
}
