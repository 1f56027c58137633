package api

import (
	"testing"
	"time"

	"gazelaundry/pkg/eyetracker"
	"gazelaundry/pkg/gaze"
	"gazelaundry/pkg/sensor/mocksensor"
)

func waitFor(t *testing.T, check func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if check() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Errorf("Timeout waiting for: %s", msg)
}

// newTracker returns a tracker on a mock sensor that only emits injected
// samples.
func newTracker(t *testing.T, opts ...eyetracker.Option) (*eyetracker.EyeTracker, *mocksensor.Sensor) {
	t.Helper()
	ms := mocksensor.New(mocksensor.Config{
		SampleInterval: time.Hour,
		Resolution:     gaze.Resolution{Width: 800, Height: 600},
		AverageError:   0.9,
	})
	et, err := eyetracker.New(ms, opts...)
	if err != nil {
		t.Fatalf("eyetracker.New: %v", err)
	}
	t.Cleanup(func() {
		et.Close()
		et.Calibration().Wait()
		_ = ms.Close()
	})
	return et, ms
}

func validSample(x, y float64) *gaze.Sample {
	s := gaze.NewSample()
	s.State = gaze.TrackingGaze | gaze.TrackingEyes
	s.Smoothed = gaze.Point{X: x, Y: y}
	s.Raw = s.Smoothed
	s.Left.PupilCenter = gaze.Point{X: 0.45, Y: 0.5}
	s.Right.PupilCenter = gaze.Point{X: 0.55, Y: 0.5}
	return s
}
