package mocksensor

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gazelaundry/pkg/gaze"
	"gazelaundry/pkg/sensor"
)

func waitFor(t *testing.T, check func() bool, timeout time.Duration, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if check() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Errorf("Timeout waiting for: %s", msg)
}

type countingListener struct {
	mu    sync.Mutex
	valid int
	total int
}

func (c *countingListener) OnGaze(s *gaze.Sample) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.total++
	if gaze.Valid(s) {
		c.valid++
	}
}

func (c *countingListener) counts() (valid, total int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.valid, c.total
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.SampleInterval = 2 * time.Millisecond
	cfg.Seed = 42
	return cfg
}

func TestActivation(t *testing.T) {
	tests := []struct {
		name    string
		refuse  bool
		wantErr error
	}{
		{name: "Accepts", refuse: false, wantErr: nil},
		{name: "Refuses", refuse: true, wantErr: sensor.ErrActivationRefused},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.RefuseActivation = tt.refuse
			s := New(cfg)
			defer s.Close()

			err := s.Activate(sensor.Version10)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, !tt.refuse, s.IsActivated())
			if !tt.refuse {
				assert.Equal(t, "1.0", s.Version().String())
			}

			s.Deactivate()
			assert.False(t, s.IsActivated())
			assert.Equal(t, sensor.Version{}, s.Version())
		})
	}
}

func TestSamplesOnlyWhileActivated(t *testing.T) {
	s := New(testConfig())
	defer s.Close()

	l := &countingListener{}
	s.AddGazeListener(l)

	time.Sleep(20 * time.Millisecond)
	_, total := l.counts()
	assert.Equal(t, 0, total, "no samples before activation")

	require.NoError(t, s.Activate(sensor.Version10))
	waitFor(t, func() bool {
		_, total := l.counts()
		return total >= 10
	}, time.Second, "samples after activation")
}

func TestDropoutsAreInvalid(t *testing.T) {
	cfg := testConfig()
	cfg.DropoutRate = 1
	s := New(cfg)
	defer s.Close()

	l := &countingListener{}
	s.AddGazeListener(l)
	require.NoError(t, s.Activate(sensor.Version10))

	waitFor(t, func() bool {
		_, total := l.counts()
		return total >= 5
	}, time.Second, "samples")
	valid, _ := l.counts()
	assert.Equal(t, 0, valid)
}

func TestInject(t *testing.T) {
	s := New(testConfig())
	defer s.Close()

	l := &countingListener{}
	s.AddGazeListener(l)

	sample := gaze.NewSample()
	sample.State = gaze.TrackingEyes
	s.Inject(sample)

	waitFor(t, func() bool {
		valid, _ := l.counts()
		return valid == 1
	}, time.Second, "injected sample")
}

type recordingHandler struct {
	mu       sync.Mutex
	events   []string
	progress []float64
	results  []*sensor.CalibrationResult
}

func (h *recordingHandler) add(ev string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, ev)
}

func (h *recordingHandler) OnCalibrationStarted()    { h.add("started") }
func (h *recordingHandler) OnCalibrationProcessing() { h.add("processing") }

func (h *recordingHandler) OnCalibrationProgress(p float64) {
	h.mu.Lock()
	h.progress = append(h.progress, p)
	h.mu.Unlock()
	h.add("progress")
}

func (h *recordingHandler) OnCalibrationResult(r *sensor.CalibrationResult) {
	h.mu.Lock()
	h.results = append(h.results, r)
	h.mu.Unlock()
	h.add("result")
}

func (h *recordingHandler) snapshot() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.events...)
}

func TestCalibrationStart_RequiresActivation(t *testing.T) {
	s := New(testConfig())
	defer s.Close()

	err := s.CalibrationStart(3, &recordingHandler{})
	assert.ErrorIs(t, err, sensor.ErrNotActivated)
	assert.False(t, s.IsCalibrating())
}

func TestCalibrationRun_Success(t *testing.T) {
	s := New(testConfig())
	defer s.Close()
	require.NoError(t, s.Activate(sensor.Version10))

	h := &recordingHandler{}
	require.NoError(t, s.CalibrationStart(2, h))
	assert.True(t, s.IsCalibrating())
	assert.ErrorIs(t, s.CalibrationStart(2, h), sensor.ErrCalibrating)

	s.CalibrationPointStart(100, 100)
	s.CalibrationPointEnd()
	s.CalibrationPointStart(200, 200)
	s.CalibrationPointEnd()

	waitFor(t, func() bool { return len(h.snapshot()) == 5 }, time.Second, "all events")
	assert.Equal(t, []string{"started", "progress", "progress", "processing", "result"}, h.snapshot())

	h.mu.Lock()
	defer h.mu.Unlock()
	assert.Equal(t, []float64{0.5, 1}, h.progress)
	require.Len(t, h.results, 1)
	assert.True(t, h.results[0].Success)
	assert.Len(t, h.results[0].Points, 2)
	assert.False(t, s.IsCalibrating())
	assert.True(t, s.IsCalibrated())
}

func TestCalibrationRun_FailureKeepsRunOpenForRetries(t *testing.T) {
	cfg := testConfig()
	cfg.ResultFunc = func(sampled []gaze.Point) *sensor.CalibrationResult {
		r := &sensor.CalibrationResult{AverageErrorDegree: 2}
		for i, p := range sampled {
			st := sensor.PointOK
			if i == 0 {
				st = sensor.PointResample
			}
			r.Points = append(r.Points, sensor.CalibrationPoint{State: st, Coordinates: p})
		}
		return r
	}
	s := New(cfg)
	defer s.Close()
	require.NoError(t, s.Activate(sensor.Version10))

	h := &recordingHandler{}
	require.NoError(t, s.CalibrationStart(2, h))
	s.CalibrationPointEnd()
	s.CalibrationPointEnd()

	assert.True(t, s.IsCalibrating(), "one point flagged for retry")
	assert.False(t, s.IsCalibrated())

	s.CalibrationAbort()
	assert.False(t, s.IsCalibrating())
}
