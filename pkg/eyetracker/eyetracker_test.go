package eyetracker

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gazelaundry/pkg/dispatch"
	"gazelaundry/pkg/gaze"
	"gazelaundry/pkg/sensor"
	"gazelaundry/pkg/sensor/mocksensor"
	"gazelaundry/pkg/stats"
)

func newMock(t *testing.T, cfg mocksensor.Config) *mocksensor.Sensor {
	t.Helper()
	cfg.SampleInterval = time.Hour // samples are injected by the test
	cfg.Resolution = gaze.Resolution{Width: 1000, Height: 500}
	ms := mocksensor.New(cfg)
	t.Cleanup(func() { _ = ms.Close() })
	return ms
}

func sample(state gaze.State, x float64) *gaze.Sample {
	s := gaze.NewSample()
	s.State = state
	s.Smoothed = gaze.Point{X: x, Y: x}
	s.Raw = s.Smoothed
	s.Left.PupilCenter = gaze.Point{X: 0.4, Y: 0.5}
	s.Right.PupilCenter = gaze.Point{X: 0.6, Y: 0.5}
	return s
}

func waitFor(t *testing.T, check func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if check() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Errorf("Timeout waiting for: %s", msg)
}

func TestNew_ZeroFrameBeforeData(t *testing.T) {
	ms := newMock(t, mocksensor.Config{})
	et, err := New(ms)
	require.NoError(t, err)
	defer et.Close()

	assert.True(t, ms.IsActivated())
	assert.True(t, et.GazeFrame().IsZero())
	assert.False(t, et.IsTracking())
	assert.Equal(t, "1.0", et.Hub().VersionString())
}

func TestNew_ActivationRefused(t *testing.T) {
	ms := newMock(t, mocksensor.Config{RefuseActivation: true})
	et, err := New(ms)
	require.Error(t, err)
	assert.True(t, errors.Is(err, dispatch.ErrActivation))
	assert.True(t, errors.Is(err, sensor.ErrActivationRefused))
	require.NotNil(t, et)
	assert.True(t, et.GazeFrame().IsZero())
}

func TestFrameAndTracking(t *testing.T) {
	ms := newMock(t, mocksensor.Config{})
	tr := stats.New()
	var changes []bool
	var changesMu sync.Mutex
	hook := func(v bool) {
		changesMu.Lock()
		changes = append(changes, v)
		changesMu.Unlock()
	}
	et, err := New(ms, WithWindow(1), WithStats(tr), WithTrackingHook(hook))
	require.NoError(t, err)
	defer et.Close()

	ms.Inject(sample(gaze.TrackingGaze|gaze.TrackingEyes|gaze.TrackingPresence, 100))
	waitFor(t, et.IsTracking, "tracking")

	waitFor(t, func() bool { return !et.GazeFrame().IsZero() }, "first frame")
	assert.Equal(t, gaze.Point{X: 100, Y: 100}, et.GazeCoords())
	assert.InDelta(t, 500, et.EyeCenter().X, 1e-9)
	assert.InDelta(t, 250, et.EyeCenter().Y, 1e-9)
	assert.InDelta(t, 0.2, et.IPD(), 1e-9)
	assert.InDelta(t, 0, et.Roll(), 1e-9)

	// An invalid sample flips tracking but keeps the last frame.
	ms.Inject(sample(gaze.TrackingLost, 900))
	waitFor(t, func() bool { return !et.IsTracking() }, "tracking lost")
	assert.Equal(t, gaze.Point{X: 100, Y: 100}, et.GazeCoords())

	waitFor(t, func() bool { return tr.Snapshot()[stats.StreamGaze].Dropped == 1 }, "drop counted")
	snap := tr.Snapshot()[stats.StreamGaze]
	assert.Equal(t, int64(2), snap.Received)
	assert.Equal(t, int64(1), snap.Accepted)
	assert.Equal(t, int64(1), snap.Dropped)

	changesMu.Lock()
	assert.Equal(t, []bool{true, false}, changes)
	changesMu.Unlock()
}

func TestCalibration_Headless(t *testing.T) {
	ms := newMock(t, mocksensor.Config{AverageError: 0.3})
	et, err := New(ms, WithCalibration())
	require.NoError(t, err)
	defer et.Close()

	seq := et.Calibration()
	seq.SetSampleDuration(time.Millisecond)
	require.NoError(t, seq.Start(gaze.Point{X: 10, Y: 10}, gaze.Point{X: 20, Y: 20}))
	waitFor(t, func() bool { return !seq.IsCalibrating() }, "calibration done")
	seq.Wait()

	out, ok := seq.LastOutcome()
	require.True(t, ok)
	assert.Equal(t, "perfect", out.Label)
	assert.True(t, seq.IsCalibrated())
}

func TestClose_DeactivatesSensor(t *testing.T) {
	ms := newMock(t, mocksensor.Config{})
	et, err := New(ms)
	require.NoError(t, err)

	et.Close()
	assert.False(t, ms.IsActivated())
}
