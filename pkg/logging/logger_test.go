package logging

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gazelaundry/pkg/config"
)

func TestInit(t *testing.T) {
	tempDir := t.TempDir()
	serverLog := filepath.Join(tempDir, "server.log")
	requestLog := filepath.Join(tempDir, "requests.log")
	eventLog := filepath.Join(tempDir, "events.log")

	// A previous run's log is rotated.
	if err := os.WriteFile(serverLog, []byte("old run\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := &config.LogConfig{
		Server:   config.LogSettings{Path: serverLog, Level: "DEBUG"},
		Requests: config.LogSettings{Path: requestLog, Level: "INFO"},
		Events:   config.LogSettings{Path: eventLog},
	}

	prev := slog.Default()
	cleanup, err := Init(cfg)
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	defer func() {
		cleanup()
		slog.SetDefault(prev)
		SetEventLogPath("")
	}()

	if _, err := os.Stat(serverLog); os.IsNotExist(err) {
		t.Error("Server log file not created")
	}
	if _, err := os.Stat(requestLog); os.IsNotExist(err) {
		t.Error("Request log file not created")
	}
	old, err := os.ReadFile(serverLog + ".old")
	if err != nil || string(old) != "old run\n" {
		t.Errorf("Previous log not rotated: %q, %v", old, err)
	}

	slog.Info("Capture me", "k", 1)
	if got := GlobalLogCapture.GetLastLine(); !strings.Contains(got, "Capture me") {
		t.Errorf("GlobalLogCapture = %q", got)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"Warn", slog.LevelWarn},
		{"ERROR", slog.LevelError},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestMultiHandler_Levels(t *testing.T) {
	var debugBuf, infoBuf bytes.Buffer
	h := &multiHandler{handlers: []slog.Handler{
		slog.NewTextHandler(&debugBuf, &slog.HandlerOptions{Level: slog.LevelDebug}),
		slog.NewTextHandler(&infoBuf, &slog.HandlerOptions{Level: slog.LevelInfo}),
	}}
	logger := slog.New(h).With("component", "test")

	if !h.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("Expected DEBUG to be enabled by the first handler")
	}

	logger.Debug("quiet")
	logger.Info("loud")

	if !strings.Contains(debugBuf.String(), "quiet") || !strings.Contains(debugBuf.String(), "loud") {
		t.Errorf("Debug handler missed records: %q", debugBuf.String())
	}
	if strings.Contains(infoBuf.String(), "quiet") {
		t.Errorf("Info handler received a DEBUG record: %q", infoBuf.String())
	}
	if !strings.Contains(infoBuf.String(), "component=test") {
		t.Errorf("Attributes not propagated: %q", infoBuf.String())
	}
}

func TestLogEvent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.log")
	SetEventLogPath(path)
	defer SetEventLogPath("")

	ts := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)
	LogEvent(&Event{Timestamp: ts, Type: "calibration", Title: "Calibration finished", Summary: "good"})

	want := "[2026-03-01 12:30:00] [calibration] Calibration finished - good"
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != want+"\n" {
		t.Errorf("event log = %q, want %q", data, want)
	}
	if got := GlobalEventCapture.GetLastLine(); got != want {
		t.Errorf("GlobalEventCapture = %q, want %q", got, want)
	}
}

func TestTrace(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	Trace(logger, "hidden")
	EnableTrace(true)
	defer EnableTrace(false)
	Trace(logger, "shown")

	if strings.Contains(buf.String(), "hidden") {
		t.Error("Trace logged while disabled")
	}
	if !strings.Contains(buf.String(), "shown") {
		t.Error("Trace did not log while enabled")
	}
}
