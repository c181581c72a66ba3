// Package runner executes cases: for every paired input file it loads rows,
// dispatches them through a gated executor and streams outcomes to a sink.
package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tinytelemetry/probe/internal/dispatch"
	"github.com/tinytelemetry/probe/internal/executor"
	"github.com/tinytelemetry/probe/internal/gate"
	"github.com/tinytelemetry/probe/internal/jsonl"
	"github.com/tinytelemetry/probe/internal/model"
	"github.com/tinytelemetry/probe/internal/rows"
	"github.com/tinytelemetry/probe/internal/sink"
)

// Config holds the process-wide tunables.
type Config struct {
	Concurrency int
	Policy      executor.Policy
	FlushEvery  int
	MaxRows     int
	Mode        dispatch.Mode
	Sheet       string
	Encoding    string
}

// Archiver stores a finished case's output files.
type Archiver interface {
	ArchiveCase(ctx context.Context, caseName string, files []string) error
}

// FileReport summarises one processed input file.
type FileReport struct {
	Case     string
	RunID    string
	IO       model.CaseIO
	Stats    dispatch.Stats
	Counts   sink.Counts
	Duration time.Duration
}

// Runner runs cases sequentially.
type Runner struct {
	cfg       Config
	exec      dispatch.Executor
	index     model.RunWriter
	archiver  Archiver
	observers []Observer
	log       *zap.Logger
	now       func() time.Time
}

// Option configures a Runner.
type Option func(*Runner)

// WithExecutor replaces the HTTP executor built from Config.Policy.
func WithExecutor(e dispatch.Executor) Option {
	return func(r *Runner) { r.exec = e }
}

// WithIndex mirrors runs and outcomes into a run index.
func WithIndex(w model.RunWriter) Option {
	return func(r *Runner) { r.index = w }
}

// WithArchiver uploads output files after each case.
func WithArchiver(a Archiver) Option {
	return func(r *Runner) { r.archiver = a }
}

// WithObserver subscribes to progress events.
func WithObserver(o Observer) Option {
	return func(r *Runner) {
		if o != nil {
			r.observers = append(r.observers, o)
		}
	}
}

// WithLogger sets the runner logger.
func WithLogger(log *zap.Logger) Option {
	return func(r *Runner) {
		if log != nil {
			r.log = log
		}
	}
}

// New creates a Runner.
func New(cfg Config, opts ...Option) *Runner {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = model.DefaultConcurrency
	}
	if cfg.FlushEvery < 1 {
		cfg.FlushEvery = model.DefaultFlushEvery
	}
	r := &Runner{
		cfg: cfg,
		log: zap.NewNop(),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.exec == nil {
		r.exec = executor.New(cfg.Policy, executor.WithLogger(r.log))
	}
	return r
}

// RunCases runs cases one after another. A failing case does not stop the
// ones after it; all case errors are returned joined. Cancelling ctx stops
// before the next case.
func (r *Runner) RunCases(ctx context.Context, cases []model.CaseConfig) ([]FileReport, error) {
	var (
		reports []FileReport
		errs    []error
	)
	for _, c := range cases {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		rep, err := r.RunCase(ctx, c)
		reports = append(reports, rep...)
		if err != nil {
			r.log.Error("case failed", zap.String("case", c.Name), zap.Error(err))
			errs = append(errs, err)
		}
	}
	return reports, errors.Join(errs...)
}

// RunCase validates the case, then processes its input files in order under
// a fresh gate. Configuration problems are reported before any request of
// the case is sent.
func (r *Runner) RunCase(ctx context.Context, c model.CaseConfig) ([]FileReport, error) {
	pairs, err := c.PairIO()
	if err != nil {
		return nil, err
	}
	tmpl, err := c.Template()
	if err != nil {
		return nil, err
	}

	log := r.log.With(zap.String("case", c.Name))
	log.Info("case started", zap.Int("files", len(pairs)), zap.String("url", tmpl.URL))

	g := gate.New(r.cfg.Concurrency)
	reports := make([]FileReport, 0, len(pairs))
	var runErr error
	for _, io := range pairs {
		rep, err := r.runFile(ctx, c, io, tmpl, g, log)
		if err != nil {
			runErr = fmt.Errorf("case %s: %w", c.Name, err)
			break
		}
		reports = append(reports, rep)
	}

	if r.archiver != nil {
		if err := r.archiver.ArchiveCase(ctx, c.Name, outputFiles(reports)); err != nil {
			log.Warn("archive case outputs", zap.Error(err))
		}
	}
	log.Info("case finished", zap.Int("files", len(reports)), zap.Bool("ok", runErr == nil))
	return reports, runErr
}

func (r *Runner) runFile(ctx context.Context, c model.CaseConfig, io model.CaseIO, tmpl model.RequestTemplate, g *gate.Gate, log *zap.Logger) (FileReport, error) {
	start := r.now()
	rep := FileReport{Case: c.Name, IO: io}
	ev := Event{Case: c.Name, File: io.InputPath}
	r.emit(ev, StateLoading)

	loaded, err := rows.Load(io.InputPath, rows.Options{
		Required: c.Required(),
		Sheet:    r.cfg.Sheet,
		Encoding: r.cfg.Encoding,
	})
	if err != nil {
		var ce *model.ConfigurationError
		if errors.As(err, &ce) && ce.Case == "" {
			ce.Case = c.Name
		}
		ev.Err = err
		r.emit(ev, StateFailed)
		return rep, err
	}
	for _, path := range []string{io.OutPath, io.ErrPath} {
		if err := jsonl.EnsureDir(path); err != nil {
			ev.Err = err
			r.emit(ev, StateFailed)
			return rep, err
		}
	}

	d := dispatch.New(r.exec, g, dispatch.Config{
		Template:    tmpl,
		QueryColumn: c.QueryColumn,
		Mode:        r.cfg.Mode,
		MaxRows:     r.cfg.MaxRows,
	}, log)
	_, planned := d.Plan(loaded)
	ev.Total = planned.Dispatched

	rep.RunID = r.beginRun(ctx, c.Name, io, start, log)
	ev.RunID = rep.RunID

	// Outcomes of tasks that outlive an interrupt are still indexed.
	indexCtx := context.WithoutCancel(ctx)
	sinkOpts := []sink.Option{sink.WithLogger(log)}
	if r.index != nil && rep.RunID != "" {
		sinkOpts = append(sinkOpts, sink.WithMirror(r.mirror(indexCtx, rep.RunID)))
	}
	s := sink.New(sink.Config{
		SuccessPath: io.OutPath,
		ErrorPath:   io.ErrPath,
		FlushEvery:  r.cfg.FlushEvery,
		Echo:        c.Echo(),
		QueryColumn: c.QueryColumn,
	}, sinkOpts...)

	log.Info("file started",
		zap.String("input", io.InputPath),
		zap.Int("rows", len(loaded)),
		zap.Int("tasks", planned.Dispatched),
		zap.Int("skipped", planned.Skipped),
		zap.Int("cut_off", planned.CutOff),
	)
	r.emit(ev, StateDispatching)

	stats, err := d.Dispatch(ctx, loaded, func(res dispatch.Result) error {
		if err := s.OnOutcome(res.Row, res.Outcome); err != nil {
			return err
		}
		counts := s.Counts()
		ev.Counts = counts
		r.emit(ev, StateDispatching)
		if counts.Processed%r.cfg.FlushEvery == 0 {
			logProgress(log, counts, planned.Dispatched)
		}
		return nil
	})
	rep.Stats = stats
	if err == nil && stats.Interrupted > 0 {
		err = fmt.Errorf("interrupted with %d rows not dispatched: %w", stats.Interrupted, context.Cause(ctx))
	}

	r.emit(ev, StateDraining)
	if cerr := s.Close(); err == nil {
		err = cerr
	}
	rep.Counts = s.Counts()
	rep.Duration = r.now().Sub(start)
	ev.Counts = rep.Counts

	if rep.Counts.Processed%r.cfg.FlushEvery != 0 || rep.Counts.Processed == 0 {
		logProgress(log, rep.Counts, planned.Dispatched)
	}
	r.finishRun(indexCtx, rep, err, log)

	if err != nil {
		ev.Err = err
		r.emit(ev, StateFailed)
		return rep, err
	}
	r.emit(ev, StateDone)
	log.Info("file finished",
		zap.String("input", io.InputPath),
		zap.Int("succeeded", rep.Counts.Succeeded),
		zap.Int("failed", rep.Counts.Failed),
		zap.Duration("duration", rep.Duration),
	)
	return rep, nil
}

func (r *Runner) beginRun(ctx context.Context, caseName string, io model.CaseIO, start time.Time, log *zap.Logger) string {
	if r.index == nil {
		return ""
	}
	id := uuid.NewString()
	err := r.index.BeginRun(ctx, model.RunInfo{
		ID:        id,
		Case:      caseName,
		InputPath: io.InputPath,
		OutPath:   io.OutPath,
		ErrPath:   io.ErrPath,
		StartedAt: start,
	})
	if err != nil {
		log.Warn("index run start", zap.Error(err))
		return ""
	}
	return id
}

func (r *Runner) finishRun(ctx context.Context, rep FileReport, runErr error, log *zap.Logger) {
	if r.index == nil || rep.RunID == "" {
		return
	}
	status := model.RunDone
	if runErr != nil {
		status = model.RunFailed
	}
	err := r.index.FinishRun(ctx, rep.RunID, model.RunSummary{
		Status:     status,
		Total:      rep.Stats.Dispatched,
		Succeeded:  rep.Counts.Succeeded,
		Failed:     rep.Counts.Failed,
		FinishedAt: r.now(),
	})
	if err != nil {
		log.Warn("index run finish", zap.Error(err))
	}
}

func (r *Runner) mirror(ctx context.Context, runID string) sink.MirrorFunc {
	return func(records []model.OutputRecord) error {
		out := make([]model.IndexedOutcome, 0, len(records))
		for _, rec := range records {
			io := model.IndexedOutcome{
				RunID:   runID,
				Row:     rec.Row,
				Query:   rec.Query,
				OK:      rec.OK,
				Latency: rec.Latency,
			}
			if rec.Error != nil {
				io.ErrorType = rec.Error.Type
				io.Message = rec.Error.Message
				if rec.Error.Status != nil {
					io.Status = *rec.Error.Status
				}
			}
			out = append(out, io)
		}
		return r.index.InsertOutcomes(ctx, out)
	}
}

func (r *Runner) emit(ev Event, state State) {
	if len(r.observers) == 0 {
		return
	}
	ev.State = state
	ev.At = r.now()
	for _, o := range r.observers {
		o.Observe(ev)
	}
}

func logProgress(log *zap.Logger, c sink.Counts, total int) {
	log.Info("progress",
		zap.String("done", fmt.Sprintf("%d/%d", c.Processed, total)),
		zap.Int("ok", c.Succeeded),
		zap.Int("err", c.Failed),
	)
}

func outputFiles(reports []FileReport) []string {
	var files []string
	for _, rep := range reports {
		for _, path := range []string{rep.IO.OutPath, rep.IO.ErrPath} {
			if _, err := os.Stat(path); err == nil {
				files = append(files, path)
			}
		}
	}
	return files
}
