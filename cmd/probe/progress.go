package main

import (
	"fmt"
	"io"
	"path/filepath"
	"sync"

	"github.com/tinytelemetry/probe/internal/runner"
)

// progressPrinter writes plain progress lines for terminals that are not
// showing logs.
type progressPrinter struct {
	mu    sync.Mutex
	w     io.Writer
	every int
}

func newProgressPrinter(w io.Writer, every int) *progressPrinter {
	if every < 1 {
		every = 1
	}
	return &progressPrinter{w: w, every: every}
}

func (p *progressPrinter) Observe(e runner.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	name := e.Case + "/" + filepath.Base(e.File)
	switch e.State {
	case runner.StateDispatching:
		if e.Counts.Processed == 0 || e.Counts.Processed%p.every != 0 {
			return
		}
		fmt.Fprintf(p.w, "[%s] %d/%d  ok %d  err %d\n",
			name, e.Counts.Processed, e.Total, e.Counts.Succeeded, e.Counts.Failed)
	case runner.StateDone:
		fmt.Fprintf(p.w, "[%s] done: %d/%d  ok %d  err %d\n",
			name, e.Counts.Processed, e.Total, e.Counts.Succeeded, e.Counts.Failed)
	case runner.StateFailed:
		fmt.Fprintf(p.w, "[%s] failed: %v\n", name, e.Err)
	}
}
