// Package report converts a success stream into a spreadsheet for review: one
// sheet of retrieved documents per question and one sheet of per-question
// file-match flags.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"github.com/tinytelemetry/probe/internal/jsonl"
)

const (
	DetailsSheet = "details"
	MatchSheet   = "match_per_question"
)

var (
	detailColumns = []any{
		"rec_id", "파일명", "질문", "latency", "block_index", "rank", "doc_id", "score",
		"group", "payload_file", "payload_page_num", "parent_text", "text", "summary",
		"is_same_file", "parse_error",
	}
	matchColumns = []any{"rec_id", "파일명", "질문", "latency", "any_exact_match", "parse_error"}
)

// Options tunes the conversion.
type Options struct {
	// TopK limits documents per result block on the details sheet. Zero keeps all.
	TopK int
	// TruncateText caps long text cells, in characters. Zero disables.
	TruncateText int
	// FileColumn names the record field holding the expected source file.
	FileColumn string
	// QuestionColumn names the record field holding the question.
	QuestionColumn string
}

// DefaultOptions mirrors the stock report layout.
func DefaultOptions() Options {
	return Options{TopK: 5, TruncateText: 500, FileColumn: "파일명", QuestionColumn: "질문"}
}

// Summary counts the rows written to each sheet.
type Summary struct {
	DetailRows int
	MatchRows  int
}

// Convert reads the JSONL at in and writes the workbook at out.
func Convert(in, out string, opts Options) (Summary, error) {
	if opts.FileColumn == "" {
		opts.FileColumn = "파일명"
	}
	if opts.QuestionColumn == "" {
		opts.QuestionColumn = "질문"
	}
	if _, err := os.Stat(in); err != nil {
		return Summary{}, fmt.Errorf("report: input: %w", err)
	}

	var details, matches [][]any
	err := jsonl.Scan(in, func(lineNo int, line []byte) error {
		var rec map[string]any
		if err := json.Unmarshal(line, &rec); err != nil {
			marker := fmt.Sprintf("[JSONDecodeError@line%d]", lineNo)
			details = append(details, []any{lineNo, "", marker, "", "", "", "", "", "", "", "", "", "", "", "", err.Error()})
			matches = append(matches, []any{lineNo, "", marker, "", "", err.Error()})
			return nil
		}
		d, m := rows(lineNo, rec, opts)
		details = append(details, d...)
		matches = append(matches, m)
		return nil
	})
	if err != nil {
		return Summary{}, fmt.Errorf("report: %w", err)
	}

	if err := writeWorkbook(out, details, matches); err != nil {
		return Summary{}, err
	}
	return Summary{DetailRows: len(details), MatchRows: len(matches)}, nil
}

func rows(recID int, rec map[string]any, opts Options) ([][]any, []any) {
	file := stringField(rec, opts.FileColumn)
	question := stringField(rec, opts.QuestionColumn)
	latency := scalar(rec["latency"])
	blocks := resultBlocks(rec)

	var details [][]any
	anyMatch := false
	for bi, b := range blocks {
		for i, doc := range b.docs {
			payload, _ := doc["payload"].(map[string]any)
			payloadFile := stringField(payload, "file")
			if file == payloadFile {
				anyMatch = true
			}
			if opts.TopK > 0 && i >= opts.TopK {
				continue
			}
			details = append(details, []any{
				recID, file, question, latency, bi, i + 1,
				scalar(doc["id"]), scalar(doc["score"]),
				scalar(payload["group"]), payloadFile, scalar(payload["page_num"]),
				truncate(stringField(payload, "parent_text"), opts.TruncateText),
				truncate(stringField(payload, "text"), opts.TruncateText),
				truncate(stringField(payload, "summary"), opts.TruncateText),
				file == payloadFile, "",
			})
		}
	}
	return details, []any{recID, file, question, latency, anyMatch, ""}
}

type block struct {
	query string
	docs  []map[string]any
}

// resultBlocks accepts results as {"results": [...]} or as a bare list of
// {"query", "retrieved_documents"} blocks.
func resultBlocks(rec map[string]any) []block {
	var items []any
	switch root := rec["results"].(type) {
	case map[string]any:
		items, _ = root["results"].([]any)
	case []any:
		items = root
	default:
		return nil
	}

	out := make([]block, 0, len(items))
	for _, it := range items {
		m, ok := it.(map[string]any)
		if !ok {
			continue
		}
		b := block{query: stringField(m, "query")}
		docs, _ := m["retrieved_documents"].([]any)
		for _, d := range docs {
			if dm, ok := d.(map[string]any); ok {
				b.docs = append(b.docs, dm)
			}
		}
		out = append(out, b)
	}
	return out
}

func writeWorkbook(out string, details, matches [][]any) error {
	if dir := filepath.Dir(out); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("report: mkdir: %w", err)
		}
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", DetailsSheet); err != nil {
		return fmt.Errorf("report: rename sheet: %w", err)
	}
	if _, err := f.NewSheet(MatchSheet); err != nil {
		return fmt.Errorf("report: new sheet: %w", err)
	}
	if err := writeSheet(f, DetailsSheet, detailColumns, details); err != nil {
		return err
	}
	if err := writeSheet(f, MatchSheet, matchColumns, matches); err != nil {
		return err
	}
	if err := f.SaveAs(out); err != nil {
		return fmt.Errorf("report: save: %w", err)
	}
	return nil
}

func writeSheet(f *excelize.File, sheet string, header []any, rows [][]any) error {
	sw, err := f.NewStreamWriter(sheet)
	if err != nil {
		return fmt.Errorf("report: stream %s: %w", sheet, err)
	}
	if err := sw.SetRow("A1", header); err != nil {
		return fmt.Errorf("report: %s header: %w", sheet, err)
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("report: %s row %d: %w", sheet, i+2, err)
		}
		if err := sw.SetRow(cell, row); err != nil {
			return fmt.Errorf("report: %s row %d: %w", sheet, i+2, err)
		}
	}
	if err := sw.Flush(); err != nil {
		return fmt.Errorf("report: flush %s: %w", sheet, err)
	}
	return nil
}

func stringField(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	switch v := m[key].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// scalar keeps numbers and strings as cell values and renders anything else
// as text.
func scalar(v any) any {
	switch v.(type) {
	case nil:
		return ""
	case string, float64, bool:
		return v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(b)
	}
}

func truncate(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "…"
}
