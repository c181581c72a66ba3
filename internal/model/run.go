package model

import "time"

// RunStatus is the terminal state of an indexed run.
type RunStatus string

const (
	RunRunning RunStatus = "running"
	RunDone    RunStatus = "done"
	RunFailed  RunStatus = "failed"
)

// RunInfo identifies one (case, input file) execution.
type RunInfo struct {
	ID        string
	Case      string
	InputPath string
	OutPath   string
	ErrPath   string
	StartedAt time.Time
}

// RunSummary is recorded when a run finishes.
type RunSummary struct {
	Status     RunStatus
	Total      int
	Succeeded  int
	Failed     int
	FinishedAt time.Time
}

// RunRecord is a stored run as listed by the run index.
type RunRecord struct {
	ID         string     `json:"id"`
	Case       string     `json:"case"`
	InputPath  string     `json:"input_path"`
	OutPath    string     `json:"out_path"`
	ErrPath    string     `json:"err_path"`
	Status     RunStatus  `json:"status"`
	Total      int        `json:"total"`
	Succeeded  int        `json:"succeeded"`
	Failed     int        `json:"failed"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// IndexedOutcome is one outcome mirrored into the run index.
type IndexedOutcome struct {
	RunID     string
	Row       int
	Query     string
	OK        bool
	Status    int
	ErrorType string
	Message   string
	Latency   float64
}

// LatencyStats summarises successful request latencies of a run, in seconds.
type LatencyStats struct {
	Count int64   `json:"count"`
	Mean  float64 `json:"mean"`
	P50   float64 `json:"p50"`
	P95   float64 `json:"p95"`
	Max   float64 `json:"max"`
}

// ErrorCount is the number of failures of one error type in a run.
type ErrorCount struct {
	Type  string `json:"type"`
	Count int64  `json:"count"`
}
