// Package mocksensor is an in-process eye tracker. It produces a synthetic
// gaze stream and plays the device side of the calibration protocol, so the
// service can run without hardware.
package mocksensor

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"gazelaundry/pkg/gaze"
	"gazelaundry/pkg/sensor"
)

// Config holds the generator settings.
type Config struct {
	SampleInterval   time.Duration
	Resolution       gaze.Resolution
	DropoutRate      float64 // fraction of samples reported as lost
	Jitter           float64 // pixels, standard deviation
	OrbitRadius      float64 // pixels
	OrbitPeriod      time.Duration
	AverageError     float64 // degrees, used by the default result
	RefuseActivation bool
	Seed             int64
	// ResultFunc builds the result once all points of a run were sampled.
	// Nil selects a successful result with AverageError.
	ResultFunc func(sampled []gaze.Point) *sensor.CalibrationResult
}

// DefaultConfig returns a 30Hz, 1920x1080 generator.
func DefaultConfig() Config {
	return Config{
		SampleInterval: 33 * time.Millisecond,
		Resolution:     gaze.Resolution{Width: 1920, Height: 1080},
		DropoutRate:    0.05,
		Jitter:         12,
		OrbitRadius:    300,
		OrbitPeriod:    20 * time.Second,
		AverageError:   0.6,
	}
}

type event struct {
	handler  sensor.CalibrationHandler
	kind     string
	progress float64
	result   *sensor.CalibrationResult
	sample   *gaze.Sample
}

// Sensor implements sensor.Sensor.
type Sensor struct {
	mu         sync.Mutex
	cfg        Config
	rng        *rand.Rand
	activated  bool
	version    sensor.Version
	listeners  []sensor.GazeListener
	buf        *gaze.Sample
	started    time.Time
	events     chan event
	stopCh     chan struct{}
	closeOnce  sync.Once
	wg         sync.WaitGroup
	calibrated bool

	// calibration run
	calibrating bool
	handler     sensor.CalibrationHandler
	total       int
	ended       int
	current     gaze.Point
	sampled     []gaze.Point
}

// New creates the sensor and starts its delivery loop.
func New(cfg Config) *Sensor {
	def := DefaultConfig()
	if cfg.SampleInterval <= 0 {
		cfg.SampleInterval = def.SampleInterval
	}
	if cfg.Resolution.Width == 0 || cfg.Resolution.Height == 0 {
		cfg.Resolution = def.Resolution
	}
	if cfg.OrbitPeriod <= 0 {
		cfg.OrbitPeriod = def.OrbitPeriod
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	s := &Sensor{
		cfg:     cfg,
		rng:     rand.New(rand.NewSource(seed)),
		buf:     gaze.NewSample(),
		started: time.Now(),
		events:  make(chan event, 64),
		stopCh:  make(chan struct{}),
	}
	s.wg.Add(1)
	go s.loop()
	return s
}

// Activate marks the sensor active, unless configured to refuse.
func (s *Sensor) Activate(v sensor.Version) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg.RefuseActivation {
		return sensor.ErrActivationRefused
	}
	s.activated = true
	s.version = v
	return nil
}

// Deactivate stops sample delivery and forgets any calibration run.
func (s *Sensor) Deactivate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activated = false
	s.version = sensor.Version{}
	s.resetRun()
}

func (s *Sensor) IsActivated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activated
}

func (s *Sensor) IsCalibrating() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calibrating
}

func (s *Sensor) IsCalibrated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calibrated
}

func (s *Sensor) Version() sensor.Version {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

func (s *Sensor) ScreenResolution() gaze.Resolution {
	return s.cfg.Resolution
}

func (s *Sensor) AddGazeListener(l sensor.GazeListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// Inject queues a sample for delivery on the sensor goroutine. The sample
// is delivered even if the sensor is not activated.
func (s *Sensor) Inject(sample *gaze.Sample) {
	select {
	case s.events <- event{kind: "sample", sample: sample}:
	case <-s.stopCh:
	}
}

// Close stops the delivery loop.
func (s *Sensor) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopCh)
	})
	s.wg.Wait()
	return nil
}

func (s *Sensor) loop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.SampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case ev := <-s.events:
			s.deliver(ev)
		case <-ticker.C:
			if sample := s.generate(); sample != nil {
				s.broadcast(sample)
			}
		}
	}
}

func (s *Sensor) deliver(ev event) {
	switch ev.kind {
	case "sample":
		s.broadcast(ev.sample)
	case "started":
		ev.handler.OnCalibrationStarted()
	case "progress":
		ev.handler.OnCalibrationProgress(ev.progress)
	case "processing":
		ev.handler.OnCalibrationProcessing()
	case "result":
		ev.handler.OnCalibrationResult(ev.result)
	}
}

func (s *Sensor) broadcast(sample *gaze.Sample) {
	s.mu.Lock()
	listeners := make([]sensor.GazeListener, len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()

	for _, l := range listeners {
		l.OnGaze(sample)
	}
}

// generate fills the shared buffer with the next synthetic reading. The
// buffer is reused between ticks, like a vendor SDK reusing its structs.
func (s *Sensor) generate() *gaze.Sample {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.activated {
		return nil
	}

	res := s.cfg.Resolution
	phase := 2 * math.Pi * float64(time.Since(s.started)) / float64(s.cfg.OrbitPeriod)
	center := gaze.Point{X: float64(res.Width) / 2, Y: float64(res.Height) / 2}
	target := center.Add(gaze.Point{X: math.Cos(phase), Y: math.Sin(phase)}.Mul(s.cfg.OrbitRadius))
	raw := target.Add(gaze.Point{X: s.rng.NormFloat64(), Y: s.rng.NormFloat64()}.Mul(s.cfg.Jitter))

	b := s.buf
	b.Timestamp = time.Now()
	b.State = gaze.TrackingGaze | gaze.TrackingEyes | gaze.TrackingPresence
	if s.rng.Float64() < s.cfg.DropoutRate {
		b.State = gaze.TrackingLost
	}
	b.Fixated = s.cfg.Jitter < 15
	b.Raw = raw
	b.Smoothed = raw.Add(target).Div(2)

	tilt := 0.01 * math.Sin(phase/3)
	b.Left.PupilCenter = gaze.Point{X: 0.45, Y: 0.5 + tilt}
	b.Right.PupilCenter = gaze.Point{X: 0.55, Y: 0.5 - tilt}
	for _, eye := range []*gaze.Eye{b.Left, b.Right} {
		eye.PupilSize = 16 + s.rng.Float64()
		eye.Raw = raw
		eye.Smoothed = b.Smoothed
	}
	return b
}
