// Package logging writes structured JSON run logs to disk. Stdout stays
// reserved for build progress lines and stderr for fatal diagnostics, so the
// logger never touches either.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// Option configures RunLogger creation.
type Option func(*newOptions)

type newOptions struct {
	runID string
	root  string
}

// WithRunID sets the run_id field stamped on every record.
func WithRunID(runID string) Option {
	return func(opts *newOptions) {
		opts.runID = strings.TrimSpace(runID)
	}
}

// WithRoot sets the workspace root field stamped on every record.
func WithRoot(root string) Option {
	return func(opts *newOptions) {
		opts.root = strings.TrimSpace(root)
	}
}

// RunLogger owns the per-invocation log file.
type RunLogger struct {
	Logger *log.Logger
	file   *os.File
	path   string
}

// New initializes logging under <stateDir>/logs.
func New(stateDir string, options ...Option) (*RunLogger, error) {
	stateDir = strings.TrimSpace(stateDir)
	if stateDir == "" {
		return nil, fmt.Errorf("state dir must not be empty")
	}

	logDir := filepath.Join(stateDir, "logs")
	if err := os.MkdirAll(logDir, 0o750); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	resolved := newOptions{}
	for _, option := range options {
		if option != nil {
			option(&resolved)
		}
	}

	timestamp := time.Now().UTC().Format("20060102-150405")
	fileName := fmt.Sprintf("drydock-%s.log", timestamp)
	if resolved.runID != "" {
		fileName = fmt.Sprintf("drydock-%s-%s.log", timestamp, resolved.runID)
	}
	filePath := filepath.Join(logDir, fileName)
	// #nosec G304 -- filePath is constructed from trusted local paths.
	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	logger := log.NewWithOptions(file, log.Options{
		Level:           log.InfoLevel,
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
	})
	logger.SetFormatter(log.JSONFormatter)

	runLogger := &RunLogger{
		Logger: logger.With("run_id", resolved.runID, "root", resolved.root),
		file:   file,
		path:   filePath,
	}
	runLogger.Logger.With("log_file", filePath).Info("logger initialized")
	return runLogger, nil
}

// Close flushes and closes the log file.
func (r *RunLogger) Close() error {
	if r == nil || r.file == nil {
		return nil
	}
	return r.file.Close()
}

// Path returns the current log file path.
func (r *RunLogger) Path() string {
	if r == nil {
		return ""
	}
	return r.path
}
