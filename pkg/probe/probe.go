// Package probe verifies the service's dependencies before it accepts
// requests: the run database, the eye-tracking sensor and, when publishing
// is enabled, the MQTT broker.
package probe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// DefaultTimeout bounds a check that sets no Timeout of its own.
const DefaultTimeout = 5 * time.Second

// ErrSkipped marks the checks that did not run because an earlier critical
// check failed.
var ErrSkipped = errors.New("skipped after critical failure")

// CheckFunc returns nil when the dependency is usable.
type CheckFunc func(ctx context.Context) error

// Probe is one dependency check.
type Probe struct {
	Name     string
	Check    CheckFunc
	Critical bool // the service refuses to start without it
	Timeout  time.Duration
}

// Result is the outcome of one Probe.
type Result struct {
	Probe    Probe
	Error    error
	Duration time.Duration
}

// Passed reports whether the check ran and succeeded.
func (r Result) Passed() bool { return r.Error == nil }

// Run executes the probes in order. Once a critical probe fails the rest are
// reported as ErrSkipped without running, so no broker connection is opened
// for a service that will not start.
func Run(ctx context.Context, probes []Probe) []Result {
	results := make([]Result, 0, len(probes))
	failed := false
	for _, p := range probes {
		if failed {
			results = append(results, Result{Probe: p, Error: ErrSkipped})
			continue
		}
		r := runOne(ctx, p)
		results = append(results, r)
		failed = !r.Passed() && p.Critical
	}
	return results
}

func runOne(ctx context.Context, p Probe) Result {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	err := p.Check(checkCtx)
	return Result{Probe: p, Error: err, Duration: time.Since(start)}
}

// AnalyzeResults logs one line per check and returns the joined errors of
// the critical ones that failed.
func AnalyzeResults(results []Result) error {
	var errs []error
	for _, r := range results {
		attrs := []any{"check", r.Probe.Name, "took", r.Duration.Round(time.Millisecond)}
		switch {
		case r.Passed():
			slog.Info("Startup check passed", attrs...)
		case errors.Is(r.Error, ErrSkipped):
			slog.Warn("Startup check skipped", attrs...)
		default:
			slog.Error("Startup check failed", append(attrs, "critical", r.Probe.Critical, "error", r.Error)...)
			if r.Probe.Critical {
				errs = append(errs, fmt.Errorf("%s: %w", r.Probe.Name, r.Error))
			}
		}
	}
	return errors.Join(errs...)
}
