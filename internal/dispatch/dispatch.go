// Package dispatch turns the rows of one input file into gated request tasks
// and delivers their outcomes in input or completion order.
package dispatch

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/tinytelemetry/probe/internal/executor"
	"github.com/tinytelemetry/probe/internal/gate"
	"github.com/tinytelemetry/probe/internal/model"
)

// Mode selects the order in which outcomes are delivered.
type Mode int

const (
	// CompletionOrder delivers each outcome as soon as its task finishes.
	CompletionOrder Mode = iota
	// InputOrder delivers outcomes in row order.
	InputOrder
)

func (m Mode) String() string {
	if m == InputOrder {
		return "input"
	}
	return "completion"
}

// ParseMode parses "completion" or "input".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "completion":
		return CompletionOrder, nil
	case "input":
		return InputOrder, nil
	default:
		return CompletionOrder, fmt.Errorf("dispatch: unknown order %q (want completion or input)", s)
	}
}

// Executor performs one row's request lifecycle.
type Executor interface {
	Execute(ctx context.Context, req executor.Request) model.Outcome
}

// Config controls task construction for one input file.
type Config struct {
	Template    model.RequestTemplate
	QueryColumn string
	Mode        Mode
	// MaxRows stops task creation at this source row position. Zero means no
	// cutoff. Rows past the cutoff are not inspected at all.
	MaxRows int
}

// Result pairs a row with its terminal outcome.
type Result struct {
	Row     model.Row
	Outcome model.Outcome
}

// Stats describes how the rows of one file were planned.
type Stats struct {
	Rows       int // source rows seen before the cutoff
	Skipped    int // blank-query rows
	Dispatched int // tasks that ran and produced an outcome
	CutOff     int // rows never inspected because of MaxRows
	// Interrupted counts tasks that never acquired a gate slot because the
	// caller's context was done. They produce no outcome.
	Interrupted int
}

// Dispatcher runs row tasks through a shared executor under a gate.
type Dispatcher struct {
	exec Executor
	gate *gate.Gate
	cfg  Config
	log  *zap.Logger
}

// New creates a Dispatcher. A nil logger is replaced with a no-op logger.
func New(exec Executor, g *gate.Gate, cfg Config, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.QueryColumn == "" {
		cfg.QueryColumn = model.DefaultQueryColumn
	}
	return &Dispatcher{exec: exec, gate: g, cfg: cfg, log: log}
}

type task struct {
	row model.Row
	req executor.Request
	err error
}

// Plan selects the rows that become tasks, in order.
func (d *Dispatcher) Plan(rows []model.Row) ([]model.Row, Stats) {
	var stats Stats
	planned := make([]model.Row, 0, len(rows))
	for i, row := range rows {
		if d.cfg.MaxRows > 0 && i >= d.cfg.MaxRows {
			stats.CutOff = len(rows) - i
			break
		}
		stats.Rows++
		if row.Blank(d.cfg.QueryColumn) {
			stats.Skipped++
			continue
		}
		planned = append(planned, row)
	}
	stats.Dispatched = len(planned)
	return planned, stats
}

// Dispatch creates every task for rows before awaiting any of them, then
// calls emit once per task that ran. emit is never called concurrently.
//
// Cancelling ctx stops tasks that are still waiting for a gate slot; they are
// counted in Stats.Interrupted and never emitted. Tasks that already hold a
// slot run to completion. If emit returns an error the remaining tasks are
// cancelled, awaited and the error is returned.
func (d *Dispatcher) Dispatch(ctx context.Context, rows []model.Row, emit func(Result) error) (Stats, error) {
	planned, stats := d.Plan(rows)
	if len(planned) == 0 {
		return stats, nil
	}

	tasks := make([]task, len(planned))
	for i, row := range planned {
		query := row.Value(d.cfg.QueryColumn)
		body, err := d.cfg.Template.BuildBody(query)
		tasks[i] = task{
			row: row,
			req: executor.Request{URL: d.cfg.Template.URL, Headers: d.cfg.Template.Headers, Body: body},
			err: err,
		}
	}

	waitCtx, cancelWait := context.WithCancel(ctx)
	defer cancelWait()
	execCtx, cancelExec := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelExec()

	results := make([]Result, len(tasks))
	ran := make([]bool, len(tasks))
	done := make([]chan struct{}, len(tasks))
	completed := make(chan int, len(tasks))
	var wg sync.WaitGroup
	for i := range tasks {
		done[i] = make(chan struct{})
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out, ok := d.run(waitCtx, execCtx, tasks[i])
			results[i] = Result{Row: tasks[i].row, Outcome: out}
			ran[i] = ok
			close(done[i])
			completed <- i
		}(i)
	}

	d.log.Debug("dispatched tasks",
		zap.Int("tasks", len(tasks)),
		zap.Int("skipped", stats.Skipped),
		zap.Stringer("order", d.cfg.Mode),
	)

	var emitErr error
	deliver := func(i int) bool {
		if !ran[i] {
			stats.Interrupted++
			return true
		}
		emitErr = emit(results[i])
		return emitErr == nil
	}
	if d.cfg.Mode == InputOrder {
		for i := range tasks {
			<-done[i]
			if !deliver(i) {
				break
			}
		}
	} else {
		for range tasks {
			if !deliver(<-completed) {
				break
			}
		}
	}
	if emitErr != nil {
		cancelWait()
		cancelExec()
		wg.Wait()
		return stats, emitErr
	}
	wg.Wait()

	stats.Dispatched -= stats.Interrupted
	if stats.Interrupted > 0 {
		d.log.Warn("dispatch interrupted",
			zap.Int("ran", stats.Dispatched),
			zap.Int("not_dispatched", stats.Interrupted),
		)
	}
	return stats, nil
}

// run executes one task. It reports false when the task never acquired a
// gate slot because waitCtx was done.
func (d *Dispatcher) run(waitCtx, execCtx context.Context, t task) (out model.Outcome, ok bool) {
	if t.err != nil {
		return model.Failure(model.KindTransport, 0, "exception: "+t.err.Error()), true
	}
	if err := d.gate.Acquire(waitCtx); err != nil {
		return model.Outcome{}, false
	}
	defer d.gate.Release()
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("request task panicked", zap.Int("row", t.row.Index), zap.Any("panic", r))
			out = model.Failure(model.KindTransport, 0, fmt.Sprintf("exception: panic: %v", r))
			ok = true
		}
	}()
	return d.exec.Execute(execCtx, t.req), true
}
