package logging

import (
	"log/slog"
	"sync/atomic"
)

var traceEnabled atomic.Bool

// EnableTrace switches per-sample debug logging on or off. It is off by
// default so the sample path stays quiet.
func EnableTrace(on bool) {
	traceEnabled.Store(on)
}

// TraceEnabled reports whether trace logging is on.
func TraceEnabled() bool {
	return traceEnabled.Load()
}

// Trace logs a message at DEBUG level, but only if tracing is enabled.
func Trace(logger *slog.Logger, msg string, args ...any) {
	if traceEnabled.Load() {
		logger.Debug(msg, args...)
	}
}

// TraceDefault logs to the default logger if tracing is enabled.
func TraceDefault(msg string, args ...any) {
	if traceEnabled.Load() {
		slog.Debug(msg, args...)
	}
}
