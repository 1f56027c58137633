package sensor

import "gazelaundry/pkg/gaze"

// PointState is the per-point diagnostic of a calibration result.
type PointState int

const (
	// PointOK means the point was sampled successfully.
	PointOK PointState = 1 << iota
	// PointResample means the point must be sampled again.
	PointResample
	// PointNoData means no usable data was collected for the point.
	PointNoData
)

// NeedsRetry reports whether the point should be sampled again.
func (s PointState) NeedsRetry() bool {
	return s&(PointResample|PointNoData) != 0
}

// CalibrationPoint is the outcome for one target.
type CalibrationPoint struct {
	State       PointState `json:"state"`
	Coordinates gaze.Point `json:"coordinates"`
	MeanError   float64    `json:"mean_error"` // degrees
}

// CalibrationResult is reported once all points of a run were sampled.
type CalibrationResult struct {
	Success            bool               `json:"success"`
	AverageErrorDegree float64            `json:"average_error_degree"`
	Points             []CalibrationPoint `json:"points"`
}
