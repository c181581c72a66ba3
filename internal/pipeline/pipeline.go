// Package pipeline runs queries one at a time through query expansion and
// intent classification, recording each query as a success or as a failure
// at the stage that stopped it.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tinytelemetry/probe/internal/executor"
	"github.com/tinytelemetry/probe/internal/jsonl"
	"github.com/tinytelemetry/probe/internal/model"
)

// DefaultProgressEvery is how often, in queries, progress is logged.
const DefaultProgressEvery = 10

// Config names the two model endpoints and the output files.
type Config struct {
	ExpandURL     string
	IntentURL     string
	Headers       map[string]string
	Pause         time.Duration
	ProgressEvery int
	ResultsPath   string
	FailedPath    string
}

// CallResult is one endpoint call as recorded in the output.
type CallResult struct {
	StatusCode *int     `json:"status_code"`
	ElapsedSec *float64 `json:"elapsed_sec"`
	Response   any      `json:"response"`
	Error      string   `json:"error,omitempty"`
}

// Exchange pairs a request payload with its result.
type Exchange struct {
	Request map[string]any `json:"request"`
	Result  CallResult     `json:"result"`
}

// SuccessRecord is written to the results file.
type SuccessRecord struct {
	OriginalQuery string     `json:"original_user_query"`
	Expand        Exchange   `json:"expand"`
	ParsedQuery   QueryInfo  `json:"parsed_query"`
	Intent        Exchange   `json:"intent"`
	ParsedIntent  IntentInfo `json:"parsed_intent"`
	Answer        *Answer    `json:"answer,omitempty"`
}

// FailureRecord is written to the failed file.
type FailureRecord struct {
	Stage         string         `json:"stage"`
	Reason        string         `json:"reason"`
	OriginalQuery string         `json:"original_user_query"`
	QueryComplete string         `json:"query_complete,omitempty"`
	ExpandRequest map[string]any `json:"expand_request,omitempty"`
	ExpandResult  *CallResult    `json:"expand_result,omitempty"`
	ParsedQuery   *QueryInfo     `json:"parsed_query,omitempty"`
	IntentRequest map[string]any `json:"intent_request,omitempty"`
	IntentResult  *CallResult    `json:"intent_result,omitempty"`
	ParsedIntent  *IntentInfo    `json:"parsed_intent,omitempty"`
}

// Summary counts a finished run.
type Summary struct {
	Total     int
	Succeeded int
	Failed    int
}

// Pipeline processes queries sequentially.
type Pipeline struct {
	cfg   Config
	exec  Executor
	gens  *Generators
	sleep executor.Sleeper
	log   *zap.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithGenerators adds an answer generation stage after classification.
func WithGenerators(g *Generators) Option {
	return func(p *Pipeline) { p.gens = g }
}

// WithLogger sets the pipeline logger.
func WithLogger(log *zap.Logger) Option {
	return func(p *Pipeline) {
		if log != nil {
			p.log = log
		}
	}
}

// WithSleeper replaces the pause between queries.
func WithSleeper(s executor.Sleeper) Option {
	return func(p *Pipeline) {
		if s != nil {
			p.sleep = s
		}
	}
}

// New validates cfg and builds a Pipeline over exec.
func New(cfg Config, exec Executor, opts ...Option) (*Pipeline, error) {
	if cfg.ExpandURL == "" || cfg.IntentURL == "" {
		return nil, errors.New("pipeline: expand and intent urls are required")
	}
	if exec == nil {
		return nil, errors.New("pipeline: executor is required")
	}
	if cfg.ProgressEvery <= 0 {
		cfg.ProgressEvery = DefaultProgressEvery
	}
	p := &Pipeline{
		cfg:   cfg,
		exec:  exec,
		sleep: executor.SleepContext,
		log:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Run processes every non-blank query, then writes the results and failed
// files once. Files are only written when they have records.
func (p *Pipeline) Run(ctx context.Context, queries []string) (Summary, error) {
	var todo []string
	for _, q := range queries {
		if strings.TrimSpace(q) != "" {
			todo = append(todo, q)
		}
	}
	log := p.log.With(zap.Int("queries", len(todo)))
	log.Info("pipeline: starting")

	var ok []SuccessRecord
	var failed []FailureRecord
	sum := Summary{Total: len(todo)}
	for i, q := range todo {
		if err := ctx.Err(); err != nil {
			return sum, fmt.Errorf("pipeline: run: %w", err)
		}
		rec, fail := p.Process(ctx, q)
		if fail != nil {
			failed = append(failed, *fail)
		} else {
			ok = append(ok, rec)
		}
		sum.Succeeded, sum.Failed = len(ok), len(failed)

		n := i + 1
		if n%p.cfg.ProgressEvery == 0 || n == len(todo) {
			log.Info("pipeline: progress",
				zap.Int("done", n),
				zap.Int("succeeded", sum.Succeeded),
				zap.Int("failed", sum.Failed),
			)
		}
		if p.cfg.Pause > 0 && n < len(todo) {
			if err := p.sleep(ctx, p.cfg.Pause); err != nil {
				return sum, fmt.Errorf("pipeline: run: %w", err)
			}
		}
	}

	if len(ok) > 0 && p.cfg.ResultsPath != "" {
		if err := jsonl.WriteLines(p.cfg.ResultsPath, ok); err != nil {
			return sum, fmt.Errorf("pipeline: write results: %w", err)
		}
	}
	if len(failed) > 0 && p.cfg.FailedPath != "" {
		if err := jsonl.WriteLines(p.cfg.FailedPath, failed); err != nil {
			return sum, fmt.Errorf("pipeline: write failed: %w", err)
		}
	}
	log.Info("pipeline: complete", zap.Int("succeeded", sum.Succeeded), zap.Int("failed", sum.Failed))
	return sum, nil
}

// Process runs one query through every stage. Exactly one of the returned
// values is meaningful: fail is nil on success.
func (p *Pipeline) Process(ctx context.Context, query string) (SuccessRecord, *FailureRecord) {
	log := p.log.With(zap.String("query", query))
	fail := &FailureRecord{OriginalQuery: query}

	fail.ExpandRequest = map[string]any{"user_query": query, "stream": false}
	expand := RunStep(log, StageExpandAPI, func() Result[CallResult] {
		return p.call(ctx, StageExpandAPI, p.cfg.ExpandURL, fail.ExpandRequest)
	})
	fail.ExpandResult = &expand.Value
	if !expand.OK() {
		return SuccessRecord{}, failAt(fail, expand.Err)
	}

	parsedQuery := RunStep(log, StageExpandParse, func() Result[QueryInfo] {
		answer, ok := llmAnswer(expand.Value.Response)
		if !ok {
			return Fail[QueryInfo](StageExpandParse, ReasonAnswerNotString, "")
		}
		return ParseQueryAnswer(answer)
	})
	if !parsedQuery.OK() {
		return SuccessRecord{}, failAt(fail, parsedQuery.Err)
	}
	fail.ParsedQuery = &parsedQuery.Value
	fail.QueryComplete = *parsedQuery.Value.QueryComplete

	fail.IntentRequest = map[string]any{"user_query": fail.QueryComplete}
	intent := RunStep(log, StageIntentAPI, func() Result[CallResult] {
		return p.call(ctx, StageIntentAPI, p.cfg.IntentURL, fail.IntentRequest)
	})
	fail.IntentResult = &intent.Value
	if !intent.OK() {
		return SuccessRecord{}, failAt(fail, intent.Err)
	}

	parsedIntent := RunStep(log, StageIntentParse, func() Result[IntentInfo] {
		answer, ok := llmAnswer(intent.Value.Response)
		if !ok {
			return Fail[IntentInfo](StageIntentParse, ReasonAnswerNotString, "")
		}
		return ParseIntentAnswer(answer)
	})
	if !parsedIntent.OK() {
		return SuccessRecord{}, failAt(fail, parsedIntent.Err)
	}
	fail.ParsedIntent = &parsedIntent.Value

	rec := SuccessRecord{
		OriginalQuery: query,
		Expand:        Exchange{Request: fail.ExpandRequest, Result: expand.Value},
		ParsedQuery:   parsedQuery.Value,
		Intent:        Exchange{Request: fail.IntentRequest, Result: intent.Value},
		ParsedIntent:  parsedIntent.Value,
	}

	if p.gens != nil {
		kind := parsedIntent.Value.Intent.No.Intent()
		gen := RunStep(log, StageGenerate, func() Result[Answer] {
			ans, err := p.gens.For(kind).Generate(ctx, fail.QueryComplete, map[string]any{
				"search_queries": parsedQuery.Value.SearchQueries,
				"intent_name":    parsedIntent.Value.Intent.IntentName,
			})
			if err != nil {
				return Fail[Answer](StageGenerate, "generate_error", err.Error())
			}
			return Ok(ans)
		})
		if !gen.OK() {
			return SuccessRecord{}, failAt(fail, gen.Err)
		}
		rec.Answer = &gen.Value
	}
	return rec, nil
}

// call posts payload and converts the outcome into a CallResult. A body that
// is not a JSON document is recorded as {"raw_text": body}.
func (p *Pipeline) call(ctx context.Context, stage, url string, payload map[string]any) Result[CallResult] {
	body, err := json.Marshal(payload)
	if err != nil {
		return Fail[CallResult](stage, ReasonHTTPError, err.Error())
	}
	out := p.exec.Execute(ctx, executor.Request{URL: url, Headers: p.cfg.Headers, Body: body})

	var res CallResult
	if out.StatusCode != 0 {
		status := out.StatusCode
		res.StatusCode = &status
	}
	if !out.OK {
		res.Error = out.Message
		return Result[CallResult]{Value: res, Err: &StepError{Stage: stage, Kind: ReasonHTTPError}}
	}
	elapsed := model.RoundLatency(out.Latency)
	res.ElapsedSec = &elapsed
	if s, isText := out.Body.(string); isText {
		res.Response = map[string]any{"raw_text": s}
	} else {
		res.Response = out.Body
	}
	return Ok(res)
}

func failAt(rec *FailureRecord, err *StepError) *FailureRecord {
	rec.Stage = err.Stage
	rec.Reason = err.Reason()
	return rec
}
