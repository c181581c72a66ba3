package duckdb

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tinytelemetry/probe/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore("")
	if err != nil {
		t.Fatalf("NewStore(\"\") failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func beginRun(t *testing.T, store *Store, id, caseName string, started time.Time) {
	t.Helper()
	err := store.BeginRun(context.Background(), model.RunInfo{
		ID:        id,
		Case:      caseName,
		InputPath: caseName + ".csv",
		OutPath:   caseName + ".ok.jsonl",
		ErrPath:   caseName + ".err.jsonl",
		StartedAt: started,
	})
	if err != nil {
		t.Fatalf("BeginRun(%s): %v", id, err)
	}
}

func TestRunLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	beginRun(t, store, "run-1", "alpha", now.Add(-time.Minute))
	beginRun(t, store, "run-2", "beta", now)

	runs, err := store.ListRuns(ctx, 10)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("ListRuns len=%d, want 2", len(runs))
	}
	if runs[0].ID != "run-2" || runs[0].Status != model.RunRunning || runs[0].FinishedAt != nil {
		t.Fatalf("newest run = %+v, want running run-2", runs[0])
	}

	err = store.FinishRun(ctx, "run-1", model.RunSummary{
		Status: model.RunDone, Total: 3, Succeeded: 2, Failed: 1, FinishedAt: now,
	})
	if err != nil {
		t.Fatalf("FinishRun: %v", err)
	}

	runs, err = store.ListRuns(ctx, 1)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("ListRuns(limit=1) len=%d", len(runs))
	}

	runs, _ = store.ListRuns(ctx, 0)
	var finished model.RunRecord
	for _, r := range runs {
		if r.ID == "run-1" {
			finished = r
		}
	}
	if finished.Status != model.RunDone || finished.Succeeded != 2 || finished.Failed != 1 || finished.FinishedAt == nil {
		t.Fatalf("finished run = %+v", finished)
	}
}

func TestFinishUnknownRun(t *testing.T) {
	store := newTestStore(t)
	err := store.FinishRun(context.Background(), "missing", model.RunSummary{Status: model.RunDone, FinishedAt: time.Now()})
	if err == nil {
		t.Fatal("expected error for unknown run")
	}
}

func TestOutcomeAggregates(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	beginRun(t, store, "run-1", "alpha", time.Now())

	outcomes := []model.IndexedOutcome{
		{RunID: "run-1", Row: 0, Query: "a", OK: true, Latency: 0.1},
		{RunID: "run-1", Row: 1, Query: "b", OK: true, Latency: 0.3},
		{RunID: "run-1", Row: 2, Query: "c", OK: false, Status: 500, ErrorType: "http_status", Message: "HTTP 500: x"},
		{RunID: "run-1", Row: 3, Query: "d", OK: false, ErrorType: "timeout", Message: "timeout"},
		{RunID: "run-1", Row: 4, Query: "e", OK: false, Status: 502, ErrorType: "http_status", Message: "HTTP 502: y"},
	}
	if err := store.InsertOutcomes(ctx, outcomes); err != nil {
		t.Fatalf("InsertOutcomes: %v", err)
	}
	if err := store.InsertOutcomes(ctx, nil); err != nil {
		t.Fatalf("InsertOutcomes(nil): %v", err)
	}

	st, err := store.LatencyStats(ctx, "run-1")
	if err != nil {
		t.Fatalf("LatencyStats: %v", err)
	}
	if st.Count != 2 || st.Max != 0.3 {
		t.Fatalf("LatencyStats = %+v, want count=2 max=0.3", st)
	}
	if st.Mean < 0.19 || st.Mean > 0.21 {
		t.Fatalf("LatencyStats mean = %v, want ~0.2", st.Mean)
	}

	breakdown, err := store.ErrorBreakdown(ctx, "run-1")
	if err != nil {
		t.Fatalf("ErrorBreakdown: %v", err)
	}
	if len(breakdown) != 2 || breakdown[0].Type != "http_status" || breakdown[0].Count != 2 {
		t.Fatalf("ErrorBreakdown = %+v", breakdown)
	}

	empty, err := store.LatencyStats(ctx, "nope")
	if err != nil {
		t.Fatalf("LatencyStats(nope): %v", err)
	}
	if empty.Count != 0 || empty.Mean != 0 {
		t.Fatalf("LatencyStats(nope) = %+v, want zero", empty)
	}
}

func TestSnapshotTo(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "probe.duckdb")
	store, err := NewStore(dbPath)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	beginRun(t, store, "run-1", "alpha", time.Now())

	snapshotPath := filepath.Join(t.TempDir(), "snapshots", "probe.duckdb")
	if err := store.SnapshotTo(snapshotPath); err != nil {
		t.Fatalf("SnapshotTo: %v", err)
	}
	info, err := os.Stat(snapshotPath)
	if err != nil {
		t.Fatalf("stat snapshot: %v", err)
	}
	if info.Size() == 0 {
		t.Fatal("snapshot file is empty")
	}

	if got := snapshotRunIDs(t, snapshotPath); len(got) != 1 || got[0] != "run-1" {
		t.Fatalf("snapshot runs = %v, want [run-1]", got)
	}

	// A later snapshot to the same path replaces the earlier one.
	beginRun(t, store, "run-2", "alpha", time.Now().Add(time.Minute))
	if err := store.SnapshotTo(snapshotPath); err != nil {
		t.Fatalf("second SnapshotTo: %v", err)
	}
	if got := snapshotRunIDs(t, snapshotPath); len(got) != 2 {
		t.Fatalf("snapshot runs = %v, want 2 runs", got)
	}
}

func snapshotRunIDs(t *testing.T, path string) []string {
	t.Helper()
	snap, err := NewStore(path)
	if err != nil {
		t.Fatalf("open snapshot: %v", err)
	}
	defer snap.Close()
	runs, err := snap.ListRuns(context.Background(), 10)
	if err != nil {
		t.Fatalf("ListRuns on snapshot: %v", err)
	}
	ids := make([]string, 0, len(runs))
	for _, r := range runs {
		ids = append(ids, r.ID)
	}
	return ids
}

func TestSnapshotToInMemoryStore(t *testing.T) {
	store := newTestStore(t)
	err := store.SnapshotTo(filepath.Join(t.TempDir(), "x.duckdb"))
	if !errors.Is(err, ErrInMemoryStore) {
		t.Fatalf("SnapshotTo err=%v, want ErrInMemoryStore", err)
	}
}
