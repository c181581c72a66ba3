package executor

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinytelemetry/probe/internal/model"
)

type recordingSleeper struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (s *recordingSleeper) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.waits = append(s.waits, d)
	s.mu.Unlock()
	return ctx.Err()
}

func TestBackoff(t *testing.T) {
	base := 800 * time.Millisecond
	assert.Equal(t, 800*time.Millisecond, Backoff(base, 0))
	assert.Equal(t, 1600*time.Millisecond, Backoff(base, 1))
	assert.Equal(t, 3200*time.Millisecond, Backoff(base, 2))
}

func TestExecuteRetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = io.WriteString(w, "boom")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"answer":"ok","score":0.5}`)
	}))
	defer srv.Close()

	sl := &recordingSleeper{}
	ex := New(Policy{Timeout: 5 * time.Second, MaxRetries: 2, BackoffBase: time.Second}, WithSleeper(sl.sleep))

	out := ex.Execute(context.Background(), Request{URL: srv.URL, Body: []byte(`{"queries":["q"]}`)})

	require.True(t, out.OK, "outcome: %+v", out)
	assert.Equal(t, 3, out.Attempts)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, sl.waits)
	body, ok := out.Body.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "ok", body["answer"])
	assert.Equal(t, json.Number("0.5"), body["score"])
}

func TestExecuteLatencyCoversFinalAttemptOnly(t *testing.T) {
	const slow = 100 * time.Millisecond
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			time.Sleep(slow)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = io.WriteString(w, `{"answer":"fast"}`)
	}))
	defer srv.Close()

	sl := &recordingSleeper{}
	ex := New(Policy{Timeout: 5 * time.Second, MaxRetries: 2, BackoffBase: time.Second}, WithSleeper(sl.sleep))

	out := ex.Execute(context.Background(), Request{URL: srv.URL})

	require.True(t, out.OK, "outcome: %+v", out)
	assert.Equal(t, 3, out.Attempts)
	assert.Positive(t, out.Latency)
	assert.Less(t, out.Latency, slow)
}

func TestExecuteExhaustsRetriesWithLastStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = io.WriteString(w, "down")
	}))
	defer srv.Close()

	sl := &recordingSleeper{}
	ex := New(Policy{Timeout: time.Second, MaxRetries: 1, BackoffBase: 10 * time.Millisecond}, WithSleeper(sl.sleep))
	out := ex.Execute(context.Background(), Request{URL: srv.URL})

	require.False(t, out.OK)
	assert.Equal(t, model.KindHTTPStatus, out.Kind)
	assert.Equal(t, 503, out.StatusCode)
	assert.Equal(t, "HTTP 503: down", out.Message)
	assert.Equal(t, "http_status", out.ErrorType())
	assert.Equal(t, int32(2), calls.Load())
	assert.Len(t, sl.waits, 1)
}

func TestExecuteZeroRetriesIsSingleAttempt(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	ex := New(Policy{Timeout: time.Second}, WithSleeper(func(context.Context, time.Duration) error {
		t.Fatal("unexpected sleep")
		return nil
	}))
	out := ex.Execute(context.Background(), Request{URL: srv.URL})
	assert.False(t, out.OK)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, "HTTP 400: ", out.Message)
}

func TestExecuteNonJSONBodyIsRawText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "plain answer")
	}))
	defer srv.Close()

	out := New(Policy{Timeout: time.Second}).Execute(context.Background(), Request{URL: srv.URL})
	require.True(t, out.OK)
	assert.Equal(t, "plain answer", out.Body)
}

func TestExecuteTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	out := New(Policy{Timeout: 50 * time.Millisecond}).Execute(context.Background(), Request{URL: srv.URL})
	require.False(t, out.OK)
	assert.Equal(t, model.KindTimeout, out.Kind)
	assert.Equal(t, model.TimeoutMessage, out.Message)
	assert.Equal(t, "timeout", out.ErrorType())
	assert.Zero(t, out.StatusCode)
}

func TestExecuteTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	out := New(Policy{Timeout: time.Second}).Execute(context.Background(), Request{URL: url})
	require.False(t, out.OK)
	assert.Equal(t, model.KindTransport, out.Kind)
	assert.Equal(t, "exception", out.ErrorType())
	assert.Contains(t, out.Message, "exception: ")
}

func TestExecuteSendsHeadersAndBody(t *testing.T) {
	var gotKey, gotType, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-Api-Key")
		gotType = r.Header.Get("Content-Type")
		data, _ := io.ReadAll(r.Body)
		gotBody = string(data)
		_, _ = io.WriteString(w, "{}")
	}))
	defer srv.Close()

	out := New(DefaultPolicy()).Execute(context.Background(), Request{
		URL:     srv.URL,
		Headers: map[string]string{"X-Api-Key": "k"},
		Body:    []byte(`{"queries":["q"]}`),
	})
	require.True(t, out.OK)
	assert.Equal(t, "k", gotKey)
	assert.Equal(t, "application/json", gotType)
	assert.Equal(t, `{"queries":["q"]}`, gotBody)
}

func TestWithRateLimitDisabledForNonPositiveRate(t *testing.T) {
	ex := New(DefaultPolicy(), WithRateLimit(0, 5))
	assert.Nil(t, ex.limiter)
	ex = New(DefaultPolicy(), WithRateLimit(100, 0))
	require.NotNil(t, ex.limiter)
	assert.Equal(t, 1, ex.limiter.Burst())
}

func TestSleepContext(t *testing.T) {
	require.NoError(t, SleepContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	require.ErrorIs(t, SleepContext(ctx, time.Minute), context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}
