package app

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestZbHandler_Handle(t *testing.T) {
	ts := time.Date(2024, 6, 15, 14, 30, 45, 0, time.UTC)

	tests := []struct {
		name    string
		runID   string
		level   slog.Level
		message string
		attrs   []slog.Attr
		want    string
	}{
		{
			name:    "basic info message",
			runID:   "run-123",
			level:   slog.LevelInfo,
			message: "archive written",
			want:    "2024-06-15T14:30:45Z\tINFO\trun-123\tarchive written\n",
		},
		{
			name:    "debug level",
			runID:   "run-456",
			level:   slog.LevelDebug,
			message: "archive uploaded",
			want:    "2024-06-15T14:30:45Z\tDEBUG\trun-456\tarchive uploaded\n",
		},
		{
			name:    "with record attrs",
			runID:   "run-789",
			level:   slog.LevelWarn,
			message: "evicted",
			attrs:   []slog.Attr{slog.String("archive", "2024-Jun-01 10-00-000000.zstd"), slog.Int("size", 42)},
			want:    "2024-06-15T14:30:45Z\tWARN\trun-789\tevicted\tarchive=2024-Jun-01 10-00-000000.zstd\tsize=42\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			h := &zbHandler{file: &buf, runID: tt.runID}

			r := slog.NewRecord(ts, tt.level, tt.message, 0)
			for _, a := range tt.attrs {
				r.AddAttrs(a)
			}

			if err := h.Handle(context.Background(), r); err != nil {
				t.Fatalf("Handle() error = %v", err)
			}

			if got := buf.String(); got != tt.want {
				t.Errorf("Handle() output =\n%q\nwant:\n%q", got, tt.want)
			}
		})
	}
}

func TestZbHandler_ConsoleLevel(t *testing.T) {
	var file, console bytes.Buffer
	logger := slog.New(&zbHandler{file: &file, console: &console, consoleLevel: slog.LevelWarn, runID: "r"})

	logger.Debug("debug line")
	logger.Info("info line")
	logger.Warn("warn line")
	logger.Error("error line")

	for _, msg := range []string{"debug line", "info line", "warn line", "error line"} {
		if !strings.Contains(file.String(), msg) {
			t.Errorf("log file missing %q", msg)
		}
	}
	for _, msg := range []string{"debug line", "info line"} {
		if strings.Contains(console.String(), msg) {
			t.Errorf("console should not contain %q", msg)
		}
	}
	for _, msg := range []string{"warn line", "error line"} {
		if !strings.Contains(console.String(), msg) {
			t.Errorf("console missing %q", msg)
		}
	}
}

func TestZbHandler_WithAttrs(t *testing.T) {
	var buf bytes.Buffer
	h := &zbHandler{file: &buf, runID: "run-1"}

	// Add pre-set attrs
	h2 := h.WithAttrs([]slog.Attr{slog.String("component", "engine")}).(*zbHandler)

	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	r := slog.NewRecord(ts, slog.LevelInfo, "evict", 0)
	r.AddAttrs(slog.String("phase", "cap"))

	if err := h2.Handle(context.Background(), r); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	got := buf.String()
	if !strings.Contains(got, "component=engine") {
		t.Errorf("expected pre-set attr component=engine, got: %q", got)
	}
	if !strings.Contains(got, "phase=cap") {
		t.Errorf("expected record attr phase=cap, got: %q", got)
	}
}

func TestZbHandler_WithAttrs_doesNotMutateOriginal(t *testing.T) {
	var buf bytes.Buffer
	h := &zbHandler{file: &buf, runID: "run-1", attrs: []slog.Attr{slog.String("a", "1")}}

	h2 := h.WithAttrs([]slog.Attr{slog.String("b", "2")}).(*zbHandler)

	if len(h.attrs) != 1 {
		t.Errorf("original handler attrs modified: got %d, want 1", len(h.attrs))
	}
	if len(h2.attrs) != 2 {
		t.Errorf("new handler attrs: got %d, want 2", len(h2.attrs))
	}
}

func TestZbHandler_Enabled(t *testing.T) {
	h := &zbHandler{file: &bytes.Buffer{}}
	// The log file takes every level
	for _, level := range []slog.Level{slog.LevelDebug, slog.LevelInfo, slog.LevelWarn, slog.LevelError} {
		if !h.Enabled(context.Background(), level) {
			t.Errorf("Enabled(%v) = false, want true", level)
		}
	}

	consoleOnly := &zbHandler{console: &bytes.Buffer{}, consoleLevel: slog.LevelError}
	if consoleOnly.Enabled(context.Background(), slog.LevelWarn) {
		t.Error("console-only handler should drop records below its level")
	}
}

func TestNewLogger(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "log")

	logger, f, err := newLogger(dir, "test-run", slog.LevelError)
	if err != nil {
		t.Fatalf("newLogger() error = %v", err)
	}
	defer f.Close()

	logger.Info("written to file only")

	data, err := os.ReadFile(filepath.Join(dir, "zbackup.log"))
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !strings.Contains(string(data), "test-run\twritten to file only") {
		t.Errorf("log file = %q", data)
	}
}
