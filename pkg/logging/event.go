package logging

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Event is one line in the event log, e.g. a finished calibration.
type Event struct {
	Timestamp time.Time
	Type      string
	Title     string
	Summary   string
}

var (
	eventLogMu   sync.Mutex
	eventLogPath string
)

// SetEventLogPath configures the path for the event log file. An empty path
// disables the event log.
func SetEventLogPath(path string) {
	eventLogMu.Lock()
	defer eventLogMu.Unlock()
	eventLogPath = path
}

// LogEvent appends e to the event log and keeps it as the latest event.
// Format: [2006-01-02 15:04:05] [type] Title - Summary
func LogEvent(e *Event) {
	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	line := fmt.Sprintf("[%s] [%s] %s", ts.Format("2006-01-02 15:04:05"), e.Type, e.Title)
	if e.Summary != "" {
		line += " - " + e.Summary
	}
	_, _ = GlobalEventCapture.Write([]byte(line))

	eventLogMu.Lock()
	defer eventLogMu.Unlock()
	if eventLogPath == "" {
		return
	}
	if err := os.MkdirAll(filepath.Dir(eventLogPath), 0o755); err != nil {
		slog.Error("Failed to create event log directory", "error", err)
		return
	}
	f, err := os.OpenFile(eventLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		slog.Error("Failed to open event log", "error", err)
		return
	}
	defer f.Close()

	if _, err := f.WriteString(strings.TrimSpace(line) + "\n"); err != nil {
		slog.Error("Failed to write event log", "error", err)
	}
}
