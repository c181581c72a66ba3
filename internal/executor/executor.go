// Package executor sends one HTTP POST per row with a per-attempt timeout and
// bounded retries, and always returns an outcome rather than an error.
package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/tinytelemetry/probe/internal/model"
)

// Request is a fully built POST request for one row.
type Request struct {
	URL     string
	Headers map[string]string
	Body    []byte
}

// Policy bounds how long and how often a request is attempted.
type Policy struct {
	Timeout     time.Duration
	MaxRetries  int
	BackoffBase time.Duration
}

// DefaultPolicy returns the stock timeout, retry and backoff settings.
func DefaultPolicy() Policy {
	return Policy{
		Timeout:     model.DefaultTimeout,
		MaxRetries:  model.DefaultRetries,
		BackoffBase: model.DefaultBackoffBase,
	}
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Executor performs requests under a Policy. It is safe for concurrent use.
type Executor struct {
	client  *http.Client
	policy  Policy
	limiter *rate.Limiter
	sleep   Sleeper
	log     *zap.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithHTTPClient overrides the shared HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(e *Executor) {
		if c != nil {
			e.client = c
		}
	}
}

// WithRateLimit caps attempts per second across all callers. rps <= 0 disables
// the limit.
func WithRateLimit(rps float64, burst int) Option {
	return func(e *Executor) {
		if rps <= 0 {
			e.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		e.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithLogger sets the logger used for retry diagnostics.
func WithLogger(log *zap.Logger) Option {
	return func(e *Executor) {
		if log != nil {
			e.log = log
		}
	}
}

// WithSleeper replaces the backoff wait.
func WithSleeper(s Sleeper) Option {
	return func(e *Executor) {
		if s != nil {
			e.sleep = s
		}
	}
}

// New creates an Executor.
func New(policy Policy, opts ...Option) *Executor {
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}
	e := &Executor{
		client: &http.Client{},
		policy: policy,
		sleep:  SleepContext,
		log:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Policy returns the executor's retry policy.
func (e *Executor) Policy() Policy {
	return e.policy
}

// Backoff returns the wait before retry number attempt (0-based): base * 2^attempt.
func Backoff(base time.Duration, attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	return base << attempt
}

// Execute runs the request to completion. Every 2xx response succeeds
// immediately; any other status, a timeout or a transport error is retried up
// to MaxRetries times, and the last failure is returned. Latency covers only the
// final attempt.
func (e *Executor) Execute(ctx context.Context, req Request) model.Outcome {
	var last model.Outcome
	attempts := e.policy.MaxRetries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				return withAttempts(transportFailure(err), attempt+1)
			}
		}

		last = e.attempt(ctx, req)
		last.Attempts = attempt + 1
		if last.OK {
			return last
		}
		if ctx.Err() != nil || attempt == attempts-1 {
			return last
		}

		wait := Backoff(e.policy.BackoffBase, attempt)
		e.log.Debug("retrying request",
			zap.String("url", req.URL),
			zap.Int("attempt", attempt+1),
			zap.String("error_type", last.ErrorType()),
			zap.Duration("backoff", wait),
		)
		if err := e.sleep(ctx, wait); err != nil {
			return last
		}
	}
	return last
}

func (e *Executor) attempt(ctx context.Context, req Request) model.Outcome {
	attemptCtx := ctx
	if e.policy.Timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, e.policy.Timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		return transportFailure(err)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	if httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := e.client.Do(httpReq)
	if err != nil {
		return classify(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	latency := time.Since(start)
	if err != nil {
		return classify(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := fmt.Sprintf("HTTP %d: %s", resp.StatusCode, string(data))
		return model.Failure(model.KindHTTPStatus, resp.StatusCode, msg)
	}
	return model.Success(resp.StatusCode, decodeBody(data), latency)
}

// decodeBody returns the parsed JSON document, or the raw text when the body
// is not valid JSON.
func decodeBody(data []byte) any {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return string(data)
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return string(data)
	}
	if dec.More() {
		return string(data)
	}
	return v
}

func classify(err error) model.Outcome {
	if isTimeout(err) {
		return model.Failure(model.KindTimeout, 0, model.TimeoutMessage)
	}
	return transportFailure(err)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func transportFailure(err error) model.Outcome {
	return model.Failure(model.KindTransport, 0, "exception: "+describe(err))
}

func describe(err error) string {
	msg := err.Error()
	if msg == "" {
		msg = fmt.Sprintf("%T", err)
	}
	return strings.TrimSpace(msg)
}

func withAttempts(o model.Outcome, n int) model.Outcome {
	o.Attempts = n
	return o
}

// SleepContext waits for d or until ctx is done, whichever comes first.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
