package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

const sampleJSONL = `{"파일명":"a.pdf","질문":"첫 질문","results":{"results":[{"query":"q1","retrieved_documents":[{"id":"d1","score":0.9,"payload":{"file":"b.pdf","page_num":3,"text":"abcdefghij"}},{"id":"d2","score":0.8,"payload":{"file":"a.pdf","group":"g"}}]}]},"latency":1.25}

not json
{"파일명":"c.pdf","질문":"둘째","results":[{"query":"q2","retrieved_documents":[{"id":"d3","payload":{"file":"x.pdf"}}]}],"latency":0.5}
`

func TestConvert(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "ok.jsonl")
	require.NoError(t, os.WriteFile(in, []byte(sampleJSONL), 0o644))
	out := filepath.Join(dir, "reports", "ok.xlsx")

	opts := DefaultOptions()
	opts.TopK = 1
	opts.TruncateText = 4
	sum, err := Convert(in, out, opts)
	require.NoError(t, err)
	assert.Equal(t, Summary{DetailRows: 3, MatchRows: 3}, sum)

	f, err := excelize.OpenFile(out)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{DetailsSheet, MatchSheet}, f.GetSheetList())

	details, err := f.GetRows(DetailsSheet)
	require.NoError(t, err)
	require.Len(t, details, 4)
	assert.Equal(t, "rec_id", details[0][0])
	// top-k keeps only the first document of line 1
	assert.Equal(t, "1", details[1][0])
	assert.Equal(t, "d1", details[1][6])
	assert.Equal(t, "b.pdf", details[1][9])
	assert.Equal(t, "abcd…", details[1][12])
	assert.Equal(t, "FALSE", strings.ToUpper(details[1][14]))
	assert.Equal(t, "[JSONDecodeError@line3]", details[2][2])

	matches, err := f.GetRows(MatchSheet)
	require.NoError(t, err)
	require.Len(t, matches, 4)
	// the match flag looks past the top-k cut
	assert.Equal(t, "TRUE", strings.ToUpper(matches[1][4]))
	assert.Equal(t, "3", matches[2][0])
	assert.Equal(t, "4", matches[3][0])
	assert.Equal(t, "FALSE", strings.ToUpper(matches[3][4]))
}

func TestConvertMissingInput(t *testing.T) {
	_, err := Convert(filepath.Join(t.TempDir(), "missing.jsonl"), filepath.Join(t.TempDir(), "x.xlsx"), DefaultOptions())
	require.Error(t, err)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "한글…", truncate("한글입니다", 2))
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "unbounded", truncate("unbounded", 0))
}
