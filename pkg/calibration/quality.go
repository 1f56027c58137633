package calibration

import "gazelaundry/pkg/sensor"

// Quality is the human-facing verdict for a calibration result.
type Quality struct {
	Rating int    `json:"rating"` // 5 best, 1 worst, 0 no result
	Label  string `json:"label"`
}

// Thresholds on the average angular error, in degrees. Errors at or above
// the last limit are rated 1 ("redo").
var thresholds = []struct {
	limit float64
	Quality
}{
	{0.5, Quality{5, "perfect"}},
	{0.7, Quality{4, "good"}},
	{1.0, Quality{3, "moderate"}},
	{1.5, Quality{2, "poor"}},
}

var (
	qualityRedo  = Quality{1, "redo"}
	qualityError = Quality{0, "error"}
)

// Assess maps a result to its quality. A nil result rates 0 ("error").
func Assess(r *sensor.CalibrationResult) Quality {
	if r == nil {
		return qualityError
	}
	for _, t := range thresholds {
		if r.AverageErrorDegree < t.limit {
			return t.Quality
		}
	}
	return qualityRedo
}

// Rating returns Assess(r).Rating.
func Rating(r *sensor.CalibrationResult) int {
	return Assess(r).Rating
}

// Label returns Assess(r).Label.
func Label(r *sensor.CalibrationResult) string {
	return Assess(r).Label
}
