// Package sink batches row outcomes into success and error JSONL streams.
package sink

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/tinytelemetry/probe/internal/jsonl"
	"github.com/tinytelemetry/probe/internal/model"
)

// AppendFunc appends records to the stream at path.
type AppendFunc func(path string, records []model.OutputRecord) error

// MirrorFunc receives every flushed batch after it reached disk.
type MirrorFunc func(records []model.OutputRecord) error

// Config describes the two streams of one input file.
type Config struct {
	SuccessPath string
	ErrorPath   string
	FlushEvery  int
	Echo        []string
	QueryColumn string
}

// Counts are cumulative outcome totals.
type Counts struct {
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// Sink is the single writer of one file's success and error streams.
// It is not safe for concurrent use.
type Sink struct {
	cfg     Config
	write   AppendFunc
	mirror  MirrorFunc
	log     *zap.Logger
	ok      []model.OutputRecord
	failed  []model.OutputRecord
	counts  Counts
	flushes int
	closed  bool
}

// Option configures a Sink.
type Option func(*Sink)

// WithAppend replaces the stream writer.
func WithAppend(fn AppendFunc) Option {
	return func(s *Sink) {
		if fn != nil {
			s.write = fn
		}
	}
}

// WithMirror registers a secondary consumer of flushed records. Mirror errors
// are logged and never fail the sink.
func WithMirror(fn MirrorFunc) Option {
	return func(s *Sink) { s.mirror = fn }
}

// WithLogger sets the sink logger.
func WithLogger(log *zap.Logger) Option {
	return func(s *Sink) {
		if log != nil {
			s.log = log
		}
	}
}

// New creates a Sink. FlushEvery below one is replaced with the default.
func New(cfg Config, opts ...Option) *Sink {
	if cfg.FlushEvery < 1 {
		cfg.FlushEvery = model.DefaultFlushEvery
	}
	if cfg.QueryColumn == "" {
		cfg.QueryColumn = model.DefaultQueryColumn
	}
	if len(cfg.Echo) == 0 {
		cfg.Echo = []string{cfg.QueryColumn}
	}
	s := &Sink{
		cfg:   cfg,
		write: jsonl.AppendLines[model.OutputRecord],
		log:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.ok = make([]model.OutputRecord, 0, cfg.FlushEvery)
	s.failed = make([]model.OutputRecord, 0, cfg.FlushEvery)
	return s
}

// OnOutcome records one outcome and flushes both batches every FlushEvery
// outcomes.
func (s *Sink) OnOutcome(row model.Row, o model.Outcome) error {
	if s.closed {
		return errors.New("sink: outcome after close")
	}
	rec := model.BuildRecord(row, s.cfg.Echo, s.cfg.QueryColumn, o)
	if o.OK {
		s.ok = append(s.ok, rec)
		s.counts.Succeeded++
	} else {
		s.failed = append(s.failed, rec)
		s.counts.Failed++
	}
	s.counts.Processed++
	if s.counts.Processed%s.cfg.FlushEvery == 0 {
		return s.Flush()
	}
	return nil
}

// Flush writes any pending records. Batches are cleared only after a
// successful write.
func (s *Sink) Flush() error {
	if len(s.ok) == 0 && len(s.failed) == 0 {
		return nil
	}
	if len(s.ok) > 0 {
		if err := s.write(s.cfg.SuccessPath, s.ok); err != nil {
			return fmt.Errorf("sink: flush success stream: %w", err)
		}
		s.mirrorBatch(s.ok)
		s.ok = s.ok[:0]
	}
	if len(s.failed) > 0 {
		if err := s.write(s.cfg.ErrorPath, s.failed); err != nil {
			return fmt.Errorf("sink: flush error stream: %w", err)
		}
		s.mirrorBatch(s.failed)
		s.failed = s.failed[:0]
	}
	s.flushes++
	s.log.Debug("flushed batches",
		zap.String("success_path", s.cfg.SuccessPath),
		zap.Int("processed", s.counts.Processed),
		zap.Int("succeeded", s.counts.Succeeded),
		zap.Int("failed", s.counts.Failed),
	)
	return nil
}

// Close performs the final flush. Further outcomes are rejected.
func (s *Sink) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.Flush()
}

// Counts returns the running totals.
func (s *Sink) Counts() Counts {
	return s.counts
}

// Flushes returns how many non-empty flushes reached disk.
func (s *Sink) Flushes() int {
	return s.flushes
}

// Pending returns the number of buffered records not yet written.
func (s *Sink) Pending() int {
	return len(s.ok) + len(s.failed)
}

func (s *Sink) mirrorBatch(records []model.OutputRecord) {
	if s.mirror == nil {
		return
	}
	if err := s.mirror(records); err != nil {
		s.log.Warn("mirror flushed batch", zap.Error(err), zap.Int("records", len(records)))
	}
}
