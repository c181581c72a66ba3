// Package jsonl reads and writes newline-delimited JSON files.
package jsonl

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const (
	defaultFileMode = 0644
	defaultDirMode  = 0755
)

// EnsureDir creates the parent directory of path.
func EnsureDir(path string) error {
	if strings.TrimSpace(path) == "" {
		return errors.New("jsonl: path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), defaultDirMode); err != nil {
		return fmt.Errorf("jsonl: mkdir: %w", err)
	}
	return nil
}

// AppendLines appends one JSON line per record to path, creating the file and
// its directory as needed. The write is synced before returning. An empty
// batch does not touch the file.
func AppendLines[T any](path string, records []T) error {
	if len(records) == 0 {
		return nil
	}
	return writeLines(path, records, os.O_CREATE|os.O_APPEND|os.O_WRONLY)
}

// WriteLines replaces the content of path with one JSON line per record.
func WriteLines[T any](path string, records []T) error {
	return writeLines(path, records, os.O_CREATE|os.O_TRUNC|os.O_WRONLY)
}

func writeLines[T any](path string, records []T, flag int) error {
	if err := EnsureDir(path); err != nil {
		return err
	}
	f, err := os.OpenFile(path, flag, defaultFileMode)
	if err != nil {
		return fmt.Errorf("jsonl: open: %w", err)
	}

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for i := range records {
		if err := enc.Encode(records[i]); err != nil {
			_ = f.Close()
			return fmt.Errorf("jsonl: encode line: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return fmt.Errorf("jsonl: write: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("jsonl: sync: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("jsonl: close: %w", err)
	}
	return nil
}

// Scan calls fn for every non-blank line of path with its 1-based line
// number. A trailing line without a newline is still delivered.
func Scan(path string, fn func(lineNo int, line []byte) error) error {
	if fn == nil {
		return errors.New("jsonl: scan callback is nil")
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("jsonl: open for scan: %w", err)
	}
	defer f.Close()

	reader := bufio.NewReader(f)
	lineNo := 0
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("jsonl: scan read: %w", err)
		}
		if len(line) > 0 {
			lineNo++
			if trimmed := bytes.TrimSpace(line); len(trimmed) > 0 {
				if ferr := fn(lineNo, trimmed); ferr != nil {
					return ferr
				}
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
	}
}

// Decode scans path and unmarshals each line into a fresh T.
func Decode[T any](path string, fn func(lineNo int, v T) error) error {
	return Scan(path, func(lineNo int, line []byte) error {
		var v T
		if err := json.Unmarshal(line, &v); err != nil {
			return fmt.Errorf("jsonl: %s:%d: %w", filepath.Base(path), lineNo, err)
		}
		return fn(lineNo, v)
	})
}
