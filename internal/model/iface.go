package model

import "context"

// RunWriter records runs and their outcomes.
type RunWriter interface {
	BeginRun(ctx context.Context, info RunInfo) error
	FinishRun(ctx context.Context, id string, summary RunSummary) error
	InsertOutcomes(ctx context.Context, outcomes []IndexedOutcome) error
}

// RunReader provides read-only queries over indexed runs.
type RunReader interface {
	ListRuns(ctx context.Context, limit int) ([]RunRecord, error)
	LatencyStats(ctx context.Context, runID string) (LatencyStats, error)
	ErrorBreakdown(ctx context.Context, runID string) ([]ErrorCount, error)
}

// RunIndex is the full run index contract.
type RunIndex interface {
	RunWriter
	RunReader
}
