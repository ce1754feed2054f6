package postgres

import (
	"context"
	"fmt"

	"hpcbench/internal/store"
)

// SaveRunResult replaces any result stored for the same source path, then
// inserts the result and one row per metric in a single transaction.
func (s *Store) SaveRunResult(ctx context.Context, r *store.RunResult) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// run_metrics rows go with it (ON DELETE CASCADE).
	if _, err := tx.ExecContext(ctx, `DELETE FROM run_results WHERE source_path = $1`, r.SourcePath); err != nil {
		return fmt.Errorf("failed to replace result: %w", err)
	}

	query := `
		INSERT INTO run_results (id, run_group, source_path, app_name, nx, ny, nz, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	if _, err := tx.ExecContext(ctx, query, r.ID, r.RunGroup, r.SourcePath, r.AppName, r.NX, r.NY, r.NZ, r.CreatedAt); err != nil {
		return fmt.Errorf("failed to insert result: %w", err)
	}

	metricQuery := `
		INSERT INTO run_metrics (result_id, metric, seconds, flop_count, mflops)
		VALUES ($1, $2, $3, $4, $5)
	`
	for _, m := range r.Metrics {
		if _, err := tx.ExecContext(ctx, metricQuery, r.ID, m.Metric, m.Seconds, m.FlopCount, m.MFLOPS); err != nil {
			return fmt.Errorf("failed to insert metric %s: %w", m.Metric, err)
		}
	}

	return tx.Commit()
}
