package store

import (
	"context"

	"gazelaundry/pkg/calibration"
)

// CalibrationStore handles the calibration history.
type CalibrationStore interface {
	SaveCalibration(ctx context.Context, o *calibration.Outcome) error
	ListCalibrations(ctx context.Context, limit int) ([]calibration.Outcome, error)
	LatestCalibration(ctx context.Context) (*calibration.Outcome, error)
}

// StateStore handles persistent application state.
type StateStore interface {
	GetState(ctx context.Context, key string) (string, bool)
	SetState(ctx context.Context, key, val string) error
	DeleteState(ctx context.Context, key string) error
}
