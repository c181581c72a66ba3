package model

import "time"

// Shared defaults used by the runner, the CLI and the pipeline command.
const (
	DefaultConcurrency = 10
	DefaultTimeout     = 30 * time.Second
	DefaultRetries     = 2
	DefaultBackoffBase = 800 * time.Millisecond
	DefaultFlushEvery  = 200
	DefaultQueryColumn = "질문"
	DefaultQueryField  = "queries"
)
