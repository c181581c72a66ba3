package pipeline

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// StepError explains why a stage stopped a query.
type StepError struct {
	Stage  string
	Kind   string
	Detail string
}

// Reason is the value written to the failure record.
func (e *StepError) Reason() string {
	if e.Detail == "" {
		return e.Kind
	}
	return e.Kind + ": " + e.Detail
}

func (e *StepError) Error() string {
	return e.Stage + ": " + e.Reason()
}

// Result is either a value or the StepError that prevented it.
type Result[T any] struct {
	Value T
	Err   *StepError
}

// Ok wraps a successful value.
func Ok[T any](v T) Result[T] {
	return Result[T]{Value: v}
}

// Fail builds a failed result.
func Fail[T any](stage, kind, detail string) Result[T] {
	return Result[T]{Err: &StepError{Stage: stage, Kind: kind, Detail: detail}}
}

// OK reports whether the result carries a value.
func (r Result[T]) OK() bool {
	return r.Err == nil
}

// Step is the log scope of one stage. Callers defer End.
type Step struct {
	log   *zap.Logger
	name  string
	start time.Time
	err   *StepError
}

// StartStep opens a scoped log context for the named stage.
func StartStep(log *zap.Logger, name string) *Step {
	if log == nil {
		log = zap.NewNop()
	}
	return &Step{log: log.With(zap.String("stage", name)), name: name, start: time.Now()}
}

// Failed marks the step as failed; End reports it.
func (s *Step) Failed(err *StepError) {
	s.err = err
}

// End writes the single log line for this step.
func (s *Step) End() {
	took := zap.Duration("took", time.Since(s.start))
	if s.err == nil {
		s.log.Debug("pipeline: step ok", took)
		return
	}
	s.log.Info("pipeline: step failed", took, zap.String("reason", s.err.Reason()))
}

// RunStep runs fn inside a Step. A panic inside fn becomes a failure.
func RunStep[T any](log *zap.Logger, stage string, fn func() Result[T]) (res Result[T]) {
	step := StartStep(log, stage)
	defer step.End()
	defer func() {
		if r := recover(); r != nil {
			res = Fail[T](stage, "panic", fmt.Sprint(r))
		}
		step.Failed(res.Err)
	}()
	return fn()
}
