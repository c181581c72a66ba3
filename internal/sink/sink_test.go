package sink

import (
	"bufio"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinytelemetry/probe/internal/model"
)

type write struct {
	path string
	n    int
}

func row(i int) model.Row {
	return model.Row{Index: i, Fields: map[string]string{"q": "query"}}
}

func TestSinkFlushesEveryNAndRemainder(t *testing.T) {
	var writes []write
	s := New(Config{SuccessPath: "ok", ErrorPath: "err", FlushEvery: 200, QueryColumn: "q"},
		WithAppend(func(path string, records []model.OutputRecord) error {
			writes = append(writes, write{path, len(records)})
			return nil
		}))

	for i := 0; i < 450; i++ {
		require.NoError(t, s.OnOutcome(row(i), model.Success(200, "r", time.Millisecond)))
	}
	require.NoError(t, s.Close())

	assert.Equal(t, []write{{"ok", 200}, {"ok", 200}, {"ok", 50}}, writes)
	assert.Equal(t, Counts{Processed: 450, Succeeded: 450}, s.Counts())
	assert.Equal(t, 3, s.Flushes())
	assert.Zero(t, s.Pending())
}

func TestSinkCountsSuccessAndFailureTogether(t *testing.T) {
	var writes []write
	s := New(Config{SuccessPath: "ok", ErrorPath: "err", FlushEvery: 3, QueryColumn: "q"},
		WithAppend(func(path string, records []model.OutputRecord) error {
			writes = append(writes, write{path, len(records)})
			return nil
		}))

	require.NoError(t, s.OnOutcome(row(0), model.Success(200, "r", 0)))
	require.NoError(t, s.OnOutcome(row(1), model.Failure(model.KindTimeout, 0, model.TimeoutMessage)))
	assert.Empty(t, writes)
	require.NoError(t, s.OnOutcome(row(2), model.Success(200, "r", 0)))
	assert.Equal(t, []write{{"ok", 2}, {"err", 1}}, writes)

	require.NoError(t, s.Close())
	assert.Len(t, writes, 2, "close with empty batches must not write")
}

func TestSinkWritesJSONLFiles(t *testing.T) {
	dir := t.TempDir()
	okPath := filepath.Join(dir, "out", "ok.jsonl")
	errPath := filepath.Join(dir, "out", "err.jsonl")
	s := New(Config{SuccessPath: okPath, ErrorPath: errPath, FlushEvery: 10, QueryColumn: "q", Echo: []string{"id", "q"}})

	r := model.Row{Index: 0, Fields: map[string]string{"id": "1", "q": "hello"}}
	require.NoError(t, s.OnOutcome(r, model.Success(200, map[string]any{"a": "b"}, 250*time.Millisecond)))
	require.NoError(t, s.OnOutcome(r, model.Failure(model.KindHTTPStatus, 502, "HTTP 502: bad gateway")))
	require.NoError(t, s.Close())

	assert.Equal(t, []string{`{"id":"1","q":"hello","results":{"a":"b"},"latency":0.25}`}, readLines(t, okPath))
	assert.Equal(t, []string{`{"id":"1","q":"hello","error":{"type":"http_status","status":502,"message":"HTTP 502: bad gateway"}}`}, readLines(t, errPath))
}

func TestSinkKeepsBatchOnWriteError(t *testing.T) {
	fail := true
	var written int
	s := New(Config{SuccessPath: "ok", ErrorPath: "err", FlushEvery: 1},
		WithAppend(func(_ string, records []model.OutputRecord) error {
			if fail {
				return errors.New("disk full")
			}
			written += len(records)
			return nil
		}))

	err := s.OnOutcome(row(0), model.Success(200, nil, 0))
	require.Error(t, err)
	assert.Equal(t, 1, s.Pending())

	fail = false
	require.NoError(t, s.Close())
	assert.Equal(t, 1, written)
	require.Error(t, s.OnOutcome(row(1), model.Success(200, nil, 0)))
}

func TestSinkMirrorErrorsAreNotFatal(t *testing.T) {
	var mirrored int
	s := New(Config{SuccessPath: "ok", ErrorPath: "err", FlushEvery: 2},
		WithAppend(func(string, []model.OutputRecord) error { return nil }),
		WithMirror(func(records []model.OutputRecord) error {
			mirrored += len(records)
			return errors.New("index unavailable")
		}))

	require.NoError(t, s.OnOutcome(row(0), model.Success(200, nil, 0)))
	require.NoError(t, s.OnOutcome(row(1), model.Failure(model.KindTransport, 0, "exception: x")))
	require.NoError(t, s.Close())
	assert.Equal(t, 2, mirrored)
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	require.NoError(t, sc.Err())
	return lines
}
