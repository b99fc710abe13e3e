package app

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"zbackup/internal/zb"
)

// zbHandler is a custom slog.Handler that formats log records as:
//
//	<timestamp>\t<level>\t<runID>\t<message>\t<key=value ...>
//
// Every record goes to file; records at or above consoleLevel also go to console.
type zbHandler struct {
	file         io.Writer
	console      io.Writer
	consoleLevel slog.Level
	runID        string
	attrs        []slog.Attr
}

func (h *zbHandler) Enabled(_ context.Context, level slog.Level) bool {
	return h.file != nil || (h.console != nil && level >= h.consoleLevel)
}

func (h *zbHandler) Handle(_ context.Context, r slog.Record) error {
	var buf bytes.Buffer
	ts := r.Time.UTC().Format("2006-01-02T15:04:05Z")
	fmt.Fprintf(&buf, "%s\t%s\t%s\t%s", ts, r.Level.String(), h.runID, r.Message)

	// Write pre-set attrs.
	for _, a := range h.attrs {
		fmt.Fprintf(&buf, "\t%s=%v", a.Key, a.Value)
	}

	// Write per-record attrs.
	r.Attrs(func(a slog.Attr) bool {
		fmt.Fprintf(&buf, "\t%s=%v", a.Key, a.Value)
		return true
	})
	buf.WriteByte('\n')

	if h.file != nil {
		if _, err := h.file.Write(buf.Bytes()); err != nil {
			return err
		}
	}
	if h.console != nil && r.Level >= h.consoleLevel {
		if _, err := h.console.Write(buf.Bytes()); err != nil {
			return err
		}
	}
	return nil
}

func (h *zbHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &zbHandler{
		file:         h.file,
		console:      h.console,
		consoleLevel: h.consoleLevel,
		runID:        h.runID,
		attrs:        append(append([]slog.Attr{}, h.attrs...), attrs...),
	}
}

func (h *zbHandler) WithGroup(string) slog.Handler { return h }

// newLogger creates a structured logger that writes every record to
// logDir/zbackup.log and records at or above consoleLevel to stderr.
// It returns the slog.Logger, the open log file (for cleanup), and any error.
func newLogger(logDir, runID string, consoleLevel slog.Level) (*slog.Logger, *os.File, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("creating log directory: %w", err)
	}

	logPath := filepath.Join(logDir, "zbackup.log")
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}

	handler := &zbHandler{file: f, console: os.Stderr, consoleLevel: consoleLevel, runID: runID}
	return slog.New(handler), f, nil
}

// slogAdapter wraps *slog.Logger to satisfy the zb.Logger interface.
type slogAdapter struct {
	l *slog.Logger
}

func (a *slogAdapter) Debug(msg string, args ...any) { a.l.Debug(msg, args...) }
func (a *slogAdapter) Info(msg string, args ...any)  { a.l.Info(msg, args...) }
func (a *slogAdapter) Warn(msg string, args ...any)  { a.l.Warn(msg, args...) }
func (a *slogAdapter) Error(msg string, args ...any) { a.l.Error(msg, args...) }

// NewConsoleLogger returns a logger writing records at or above level to
// stderr only, for commands that run before or without a log file.
func NewConsoleLogger(level slog.Level) zb.Logger {
	return &slogAdapter{l: slog.New(&zbHandler{console: os.Stderr, consoleLevel: level})}
}
