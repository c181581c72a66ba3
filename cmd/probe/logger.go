package main

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// defaultLogPath is where logs go while the TUI owns the terminal.
func defaultLogPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "probe.log")
	}
	return filepath.Join(home, ".local", "state", "probe", "probe.log")
}

// newLogger builds the process logger. With a log file, or with the TUI on,
// JSON lines go to the file; otherwise a console encoder writes to stderr.
func newLogger(level, logFile string, tui bool) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log-level: %q", level)
	}

	config := zap.NewProductionConfig()
	config.Level = lvl

	path := logFile
	if path == "" && tui {
		path = defaultLogPath()
	}
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating log directory: %w", err)
		}
		config.OutputPaths = []string{path}
		config.ErrorOutputPaths = []string{path}
	} else {
		config.Encoding = "console"
		config.EncoderConfig = zap.NewDevelopmentEncoderConfig()
		config.Sampling = nil
	}
	return config.Build()
}
