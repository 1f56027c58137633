package calibration

import (
	"context"
	"errors"
)

// RecorderFunc adapts a function to Recorder.
type RecorderFunc func(ctx context.Context, o Outcome) error

// RecordCalibration calls f(ctx, o).
func (f RecorderFunc) RecordCalibration(ctx context.Context, o Outcome) error {
	return f(ctx, o)
}

// Recorders reports to every non-nil recorder in order. A failing recorder
// does not keep the others from running; all errors are joined.
func Recorders(rs ...Recorder) Recorder {
	return RecorderFunc(func(ctx context.Context, o Outcome) error {
		var errs []error
		for _, r := range rs {
			if r == nil {
				continue
			}
			if err := r.RecordCalibration(ctx, o); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})
}
