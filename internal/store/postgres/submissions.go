package postgres

import (
	"context"

	"hpcbench/internal/store"

	"github.com/google/uuid"
)

// CreateSubmission inserts one submission attempt.
func (s *Store) CreateSubmission(ctx context.Context, sub *store.Submission) error {
	query := `
		INSERT INTO submissions (id, run_id, sweep, label, directory, args, core_count, memory_mb, timeout, status, job_id, error_message, script, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err := s.db.ExecContext(ctx, query,
		sub.ID,
		sub.RunID,
		sub.Sweep,
		sub.Label,
		sub.Directory,
		sub.Args,
		sub.CoreCount,
		sub.MemoryMB,
		sub.Timeout,
		sub.Status,
		sub.JobID,
		sub.ErrorMessage,
		sub.Script,
		sub.CreatedAt,
	)
	return err
}

// ListSubmissions returns the submissions of a run, oldest first.
func (s *Store) ListSubmissions(ctx context.Context, runID uuid.UUID) ([]store.Submission, error) {
	query := `
		SELECT id, run_id, sweep, label, directory, args, core_count, memory_mb, timeout, status, job_id, error_message, script, created_at
		FROM submissions
		WHERE run_id = $1
		ORDER BY created_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []store.Submission
	for rows.Next() {
		var sub store.Submission
		if err := rows.Scan(
			&sub.ID, &sub.RunID, &sub.Sweep, &sub.Label, &sub.Directory, &sub.Args,
			&sub.CoreCount, &sub.MemoryMB, &sub.Timeout, &sub.Status,
			&sub.JobID, &sub.ErrorMessage, &sub.Script, &sub.CreatedAt,
		); err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// CountSubmissionsByStatus returns the number of submissions per status.
func (s *Store) CountSubmissionsByStatus(ctx context.Context) (map[store.SubmissionStatus]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM submissions GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[store.SubmissionStatus]int64)
	for rows.Next() {
		var status store.SubmissionStatus
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}
