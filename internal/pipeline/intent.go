package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/tinytelemetry/probe/internal/executor"
	"github.com/tinytelemetry/probe/internal/model"
)

// Intent is a classified user intent.
type Intent int

// Known intents. Codes 301 to 311 are document drafts.
const (
	Conversation Intent = 101
	QA           Intent = 201
	DraftFirst   Intent = 301
	AnnualReport Intent = 310
	DraftLast    Intent = 311
	Sensitive    Intent = 501
	Unclassified Intent = 900
)

// ParseIntent maps a numeric code to an Intent; unknown codes are Unclassified.
func ParseIntent(no int) Intent {
	switch {
	case no == int(Conversation), no == int(QA), no == int(Sensitive), no == int(Unclassified):
		return Intent(no)
	case no >= int(DraftFirst) && no <= int(DraftLast):
		return Intent(no)
	}
	return Unclassified
}

// IsDraft reports whether the intent asks for a document draft.
func (i Intent) IsDraft() bool {
	return i >= DraftFirst && i <= DraftLast
}

func (i Intent) String() string {
	switch {
	case i == Conversation:
		return "conversation"
	case i == QA:
		return "qa"
	case i == AnnualReport:
		return "annual_report"
	case i.IsDraft():
		return "draft_" + strconv.Itoa(int(i))
	case i == Sensitive:
		return "sensitive"
	}
	return "unclassified"
}

// Answer is what a generator produced for a query.
type Answer struct {
	Intent  string  `json:"intent"`
	Text    string  `json:"text"`
	Status  int     `json:"status_code,omitempty"`
	Elapsed float64 `json:"elapsed_sec"`
}

// AnswerGenerator produces an answer for one classified query.
type AnswerGenerator interface {
	Generate(ctx context.Context, query string, extra map[string]any) (Answer, error)
}

// Generators routes intents to generators, falling back to a default.
type Generators struct {
	byIntent map[Intent]AnswerGenerator
	fallback AnswerGenerator
}

// NewGenerators requires a default generator.
func NewGenerators(fallback AnswerGenerator) (*Generators, error) {
	if fallback == nil {
		return nil, errors.New("pipeline: generators: default generator is required")
	}
	return &Generators{byIntent: map[Intent]AnswerGenerator{}, fallback: fallback}, nil
}

// Register binds g to intent.
func (g *Generators) Register(intent Intent, gen AnswerGenerator) {
	if gen != nil {
		g.byIntent[intent] = gen
	}
}

// For returns the generator for intent.
func (g *Generators) For(intent Intent) AnswerGenerator {
	if gen, ok := g.byIntent[intent]; ok {
		return gen
	}
	return g.fallback
}

// Executor is the request surface the pipeline needs.
type Executor interface {
	Execute(ctx context.Context, req executor.Request) model.Outcome
}

// HTTPGenerator posts {user_query, intent, context} to URL and reads the
// answer from llm_result.answer.
type HTTPGenerator struct {
	Exec    Executor
	URL     string
	Headers map[string]string
	Intent  Intent
}

// Generate implements AnswerGenerator.
func (h *HTTPGenerator) Generate(ctx context.Context, query string, extra map[string]any) (Answer, error) {
	body, err := json.Marshal(map[string]any{
		"user_query": query,
		"intent":     int(h.Intent),
		"context":    extra,
		"stream":     false,
	})
	if err != nil {
		return Answer{}, fmt.Errorf("pipeline: generate: %w", err)
	}
	out := h.Exec.Execute(ctx, executor.Request{URL: h.URL, Headers: h.Headers, Body: body})
	ans := Answer{Intent: h.Intent.String(), Status: out.StatusCode, Elapsed: model.RoundLatency(out.Latency)}
	if !out.OK {
		return ans, fmt.Errorf("pipeline: generate: %s", out.Message)
	}
	text, ok := llmAnswer(out.Body)
	if !ok {
		return ans, errors.New("pipeline: generate: " + ReasonAnswerNotString)
	}
	ans.Text = text
	return ans, nil
}

// llmAnswer reads body["llm_result"]["answer"] as a string.
func llmAnswer(body any) (string, bool) {
	doc, ok := body.(map[string]any)
	if !ok {
		return "", false
	}
	res, ok := doc["llm_result"].(map[string]any)
	if !ok {
		return "", false
	}
	s, ok := res["answer"].(string)
	return s, ok
}
