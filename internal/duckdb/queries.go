package duckdb

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tinytelemetry/probe/internal/model"
)

// ListRuns returns the most recently started runs first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]model.RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, case_name, input_path, out_path, err_path, status,
		       total, succeeded, failed, started_at, finished_at
		FROM runs
		ORDER BY started_at DESC, id
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("duckdb: list runs: %w", err)
	}
	defer rows.Close()

	var out []model.RunRecord
	for rows.Next() {
		var (
			r        model.RunRecord
			status   string
			finished sql.NullTime
		)
		if err := rows.Scan(&r.ID, &r.Case, &r.InputPath, &r.OutPath, &r.ErrPath, &status,
			&r.Total, &r.Succeeded, &r.Failed, &r.StartedAt, &finished); err != nil {
			return nil, fmt.Errorf("duckdb: scan run: %w", err)
		}
		r.Status = model.RunStatus(status)
		if finished.Valid {
			t := finished.Time
			r.FinishedAt = &t
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// LatencyStats summarises the latencies of a run's successful outcomes.
func (s *Store) LatencyStats(ctx context.Context, runID string) (model.LatencyStats, error) {
	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	s.mu.RLock()
	defer s.mu.RUnlock()

	var st model.LatencyStats
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(latency),
		       COALESCE(AVG(latency), 0),
		       COALESCE(quantile_cont(latency, 0.5), 0),
		       COALESCE(quantile_cont(latency, 0.95), 0),
		       COALESCE(MAX(latency), 0)
		FROM outcomes
		WHERE run_id = ? AND ok`, runID).Scan(&st.Count, &st.Mean, &st.P50, &st.P95, &st.Max)
	if err != nil {
		return model.LatencyStats{}, fmt.Errorf("duckdb: latency stats: %w", err)
	}
	return st, nil
}

// ErrorBreakdown counts a run's failures by error type, most frequent first.
func (s *Store) ErrorBreakdown(ctx context.Context, runID string) ([]model.ErrorCount, error) {
	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT error_type, COUNT(*) AS n
		FROM outcomes
		WHERE run_id = ? AND NOT ok
		GROUP BY error_type
		ORDER BY n DESC, error_type`, runID)
	if err != nil {
		return nil, fmt.Errorf("duckdb: error breakdown: %w", err)
	}
	defer rows.Close()

	var out []model.ErrorCount
	for rows.Next() {
		var ec model.ErrorCount
		if err := rows.Scan(&ec.Type, &ec.Count); err != nil {
			return nil, fmt.Errorf("duckdb: scan error count: %w", err)
		}
		out = append(out, ec)
	}
	return out, rows.Err()
}
