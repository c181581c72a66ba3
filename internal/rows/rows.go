// Package rows loads tabular input files into ordered rows.
package rows

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/unicode"

	"github.com/tinytelemetry/probe/internal/model"
)

// Options controls how a file is read.
type Options struct {
	// Required lists columns every file must carry.
	Required []string
	// Sheet selects a workbook sheet by name. Empty selects the first sheet.
	Sheet string
	// Encoding is the character set of CSV/TSV input: utf-8 (default),
	// euc-kr, cp949 or windows-1251.
	Encoding string
}

// Load reads path into rows ordered as in the source. The first row is the
// header; duplicate or empty header cells keep only their first occurrence.
func Load(path string, opts Options) ([]model.Row, error) {
	table, err := readTable(path, opts)
	if err != nil {
		return nil, err
	}

	header := normalizeHeader(table[0])
	if missing := missingColumns(header, opts.Required); len(missing) > 0 {
		return nil, &model.ConfigurationError{
			File:   path,
			Reason: "missing required columns: " + strings.Join(missing, ", "),
		}
	}

	out := make([]model.Row, 0, len(table)-1)
	for i, record := range table[1:] {
		fields := make(map[string]string, len(header))
		for col, name := range header {
			if name == "" {
				continue
			}
			if _, dup := fields[name]; dup {
				continue
			}
			if col < len(record) {
				fields[name] = record[col]
			} else {
				fields[name] = ""
			}
		}
		out = append(out, model.Row{Index: i, Fields: fields})
	}
	return out, nil
}

// Columns returns the header cells of path.
func Columns(path string, opts Options) ([]string, error) {
	table, err := readTable(path, opts)
	if err != nil {
		return nil, err
	}
	return normalizeHeader(table[0]), nil
}

func readTable(path string, opts Options) ([][]string, error) {
	var (
		table [][]string
		err   error
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".xlsx", ".xlsm":
		table, err = readWorkbook(path, opts.Sheet)
	case ".csv":
		table, err = readDelimited(path, ',', opts.Encoding)
	case ".tsv":
		table, err = readDelimited(path, '\t', opts.Encoding)
	default:
		return nil, &model.ConfigurationError{File: path, Reason: fmt.Sprintf("unsupported input format %q", ext)}
	}
	if err != nil {
		return nil, err
	}
	if len(table) == 0 {
		return nil, &model.ConfigurationError{File: path, Reason: "input has no header row"}
	}
	return table, nil
}

func readWorkbook(path, sheet string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("rows: open workbook: %w", err)
	}
	defer f.Close()

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, &model.ConfigurationError{File: path, Reason: "workbook has no sheets"}
		}
		sheet = sheets[0]
	}
	table, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("rows: read sheet %q: %w", sheet, err)
	}
	return table, nil
}

func readDelimited(path string, comma rune, charset string) ([][]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("rows: read: %w", err)
	}

	dec, err := decoderFor(charset)
	if err != nil {
		return nil, &model.ConfigurationError{File: path, Reason: err.Error()}
	}
	var reader io.Reader = bytes.NewReader(data)
	if dec != nil {
		reader = dec.Reader(reader)
	}

	r := csv.NewReader(reader)
	r.Comma = comma
	r.LazyQuotes = true
	r.FieldsPerRecord = -1
	table, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("rows: parse %s: %w", filepath.Base(path), err)
	}
	return table, nil
}

func decoderFor(charset string) (*encoding.Decoder, error) {
	switch strings.ToLower(strings.TrimSpace(charset)) {
	case "", "utf-8", "utf8":
		return unicode.UTF8BOM.NewDecoder(), nil
	case "euc-kr", "euckr", "cp949":
		return korean.EUCKR.NewDecoder(), nil
	case "windows-1251", "cp1251":
		return charmap.Windows1251.NewDecoder(), nil
	default:
		return nil, errors.New("unsupported encoding " + charset)
	}
}

func normalizeHeader(cells []string) []string {
	out := make([]string, len(cells))
	for i, c := range cells {
		out[i] = strings.TrimSpace(c)
	}
	return out
}

func missingColumns(header, required []string) []string {
	present := make(map[string]struct{}, len(header))
	for _, h := range header {
		present[h] = struct{}{}
	}
	var missing []string
	for _, col := range required {
		if _, ok := present[col]; !ok {
			missing = append(missing, col)
		}
	}
	return missing
}
