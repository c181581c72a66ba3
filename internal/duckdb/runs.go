package duckdb

import (
	"context"
	"errors"
	"fmt"

	"github.com/tinytelemetry/probe/internal/model"
)

var _ model.RunIndex = (*Store)(nil)

// BeginRun records a run in the running state.
func (s *Store) BeginRun(ctx context.Context, info model.RunInfo) error {
	if info.ID == "" {
		return errors.New("duckdb: run id is empty")
	}
	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, case_name, input_path, out_path, err_path, status, started_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		info.ID, info.Case, info.InputPath, info.OutPath, info.ErrPath, string(model.RunRunning), info.StartedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("duckdb: begin run: %w", err)
	}
	return nil
}

// FinishRun stores the final counts and status of a run.
func (s *Store) FinishRun(ctx context.Context, id string, sum model.RunSummary) error {
	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, total = ?, succeeded = ?, failed = ?, finished_at = ? WHERE id = ?`,
		string(sum.Status), sum.Total, sum.Succeeded, sum.Failed, sum.FinishedAt.UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("duckdb: finish run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("duckdb: finish run: unknown run %q", id)
	}
	return nil
}

// InsertOutcomes appends outcomes in a single transaction.
func (s *Store) InsertOutcomes(ctx context.Context, outcomes []model.IndexedOutcome) error {
	if len(outcomes) == 0 {
		return nil
	}
	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("duckdb: begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO outcomes (run_id, row_index, query, ok, status, error_type, message, latency) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("duckdb: prepare outcome insert: %w", err)
	}
	defer stmt.Close()

	for _, o := range outcomes {
		var status, errType, message, latency any
		if o.Status != 0 {
			status = o.Status
		}
		if o.OK {
			latency = o.Latency
		} else {
			errType = o.ErrorType
			message = o.Message
		}
		if _, err := stmt.ExecContext(ctx, o.RunID, o.Row, o.Query, o.OK, status, errType, message, latency); err != nil {
			return fmt.Errorf("duckdb: insert outcome row %d: %w", o.Row, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("duckdb: commit outcomes: %w", err)
	}
	committed = true
	return nil
}
