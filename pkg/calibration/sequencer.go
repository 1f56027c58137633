// Package calibration drives the sensor's calibration protocol: it hands
// targets to the caller one at a time, samples each for a fixed duration and
// retries the points the sensor rejects.
package calibration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"gazelaundry/pkg/gaze"
	"gazelaundry/pkg/sensor"
)

const (
	// DefaultSampleDuration is how long each target is sampled.
	DefaultSampleDuration = 500 * time.Millisecond
	// DefaultMaxRetries is how often a single target may be re-queued.
	DefaultMaxRetries = 1
)

var (
	// ErrCalibrating is returned when an operation requires the Idle state.
	ErrCalibrating = errors.New("calibration in progress")
	// ErrNoPoints is returned when starting without targets.
	ErrNoPoints = errors.New("no calibration points")
	// ErrStopped is returned by Start when Stop won the race against the
	// sensor accepting the run.
	ErrStopped = errors.New("calibration stopped while starting")
)

// ShowFunc presents a target to the user. It must call done once the
// target is visible; done returns immediately and sampling continues in
// the background.
type ShowFunc func(p gaze.Point, done func())

// Recorder receives the outcome of every finished session.
type Recorder interface {
	RecordCalibration(ctx context.Context, o Outcome) error
}

// Outcome summarizes one session.
type Outcome struct {
	RunID        uuid.UUID `json:"run_id"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
	Points       int       `json:"points"`
	Resampled    int       `json:"resampled"`
	Completed    bool      `json:"completed"` // a result was received
	Success      bool      `json:"success"`
	AverageError float64   `json:"average_error"`
	Quality
}

// Sequencer is the calibration state machine for one sensor. All exported
// methods, including the sensor callbacks, are mutually exclusive.
type Sequencer struct {
	mu         sync.Mutex
	sensor     sensor.Sensor
	show       ShowFunc
	rng        *rand.Rand
	recorder   Recorder
	sampleTime time.Duration
	maxRetries int
	onStart    func()
	onStop     func()

	calibrating bool
	gen         uint64 // bumped by every Start; targets of older sessions are stale
	starting    bool   // CalibrationStart is in flight
	stopEarly   bool   // the session ended while starting; the sensor run must be aborted
	points      []gaze.Point
	firstTaken  bool
	retries     map[gaze.Point]int
	run         Outcome
	last        *Outcome

	// ctx is cancelled when the session stops, interrupting sampling waits.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a Sequencer.
type Option func(*Sequencer)

// WithSampleDuration sets the per-target sampling time.
func WithSampleDuration(d time.Duration) Option {
	return func(s *Sequencer) { s.sampleTime = d }
}

// WithMaxRetries bounds how often one target is re-queued after the sensor
// flags it.
func WithMaxRetries(n int) Option {
	return func(s *Sequencer) { s.maxRetries = n }
}

// WithRand sets the source used to pick targets after the first one.
func WithRand(r *rand.Rand) Option {
	return func(s *Sequencer) { s.rng = r }
}

// WithRecorder reports finished sessions to r.
func WithRecorder(r Recorder) Option {
	return func(s *Sequencer) { s.recorder = r }
}

// New creates an idle sequencer.
func New(sn sensor.Sensor, show ShowFunc, opts ...Option) *Sequencer {
	s := &Sequencer{
		sensor:     sn,
		show:       show,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
		sampleTime: DefaultSampleDuration,
		maxRetries: DefaultMaxRetries,
		onStart:    func() {},
		onStop:     func() {},
		ctx:        context.Background(),
		cancel:     func() {},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetSampleDuration changes the per-target sampling time for later targets.
func (s *Sequencer) SetSampleDuration(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sampleTime = d
}

// SetOnStart sets the hook run after a session started. Nil clears it.
func (s *Sequencer) SetOnStart(f func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f == nil {
		f = func() {}
	}
	s.onStart = f
}

// SetOnStop sets the hook run after a session stopped. Nil clears it.
func (s *Sequencer) SetOnStop(f func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f == nil {
		f = func() {}
	}
	s.onStop = f
}

// IsCalibrating reports whether a session is running.
func (s *Sequencer) IsCalibrating() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calibrating
}

// IsCalibrated reports whether the sensor holds a valid calibration.
func (s *Sequencer) IsCalibrated() bool {
	return s.sensor.IsCalibrated()
}

// LastOutcome returns the outcome of the most recent finished session.
func (s *Sequencer) LastOutcome() (Outcome, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return Outcome{}, false
	}
	return *s.last, true
}

// Remaining returns the number of targets still queued.
func (s *Sequencer) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.points)
}

// SetPoints replaces the target list. The first point is always shown
// first. Targets are snapped to whole pixels, the resolution the sensor
// works in. It fails with ErrCalibrating while a session runs.
func (s *Sequencer) SetPoints(points ...gaze.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setPointsLocked(points)
}

func (s *Sequencer) setPointsLocked(points []gaze.Point) error {
	if s.calibrating {
		return ErrCalibrating
	}
	s.points = make([]gaze.Point, len(points))
	for i, p := range points {
		s.points[i] = pixel(p)
	}
	return nil
}

// pixel rounds p to the whole pixel the sensor is told about and reports
// back in its results.
func pixel(p gaze.Point) gaze.Point {
	return gaze.Point{X: math.Round(p.X), Y: math.Round(p.Y)}
}

// Start sets the targets and begins a session. With no arguments the
// targets from the last SetPoints are used.
func (s *Sequencer) Start(points ...gaze.Point) error {
	s.mu.Lock()
	if len(points) > 0 {
		if err := s.setPointsLocked(points); err != nil {
			s.mu.Unlock()
			return err
		}
	}
	gen, n, err := s.beginLocked()
	s.mu.Unlock()
	if err != nil {
		return err
	}

	// The sensor may call back synchronously, so it is commanded unlocked.
	startErr := s.sensor.CalibrationStart(n, s)

	s.mu.Lock()
	s.starting = false
	stopEarly := s.stopEarly
	s.stopEarly = false
	if startErr != nil {
		if s.calibrating && s.gen == gen {
			s.calibrating = false
			s.cancel()
		}
		s.mu.Unlock()
		return fmt.Errorf("start calibration: %w", startErr)
	}
	if stopEarly {
		stopped := s.last != nil && !s.last.Completed
		s.mu.Unlock()
		s.sensor.CalibrationAbort()
		if stopped {
			return ErrStopped
		}
		return nil
	}
	live := s.calibrating && s.gen == gen
	hook := s.onStart
	s.mu.Unlock()

	if live {
		slog.Info("Calibration started", "points", n)
		hook()
	}
	return nil
}

// beginLocked reserves a new session and returns its generation and size.
func (s *Sequencer) beginLocked() (uint64, int, error) {
	if s.calibrating || s.starting {
		return 0, 0, ErrCalibrating
	}
	if len(s.points) == 0 {
		return 0, 0, ErrNoPoints
	}

	s.gen++
	s.starting = true
	s.calibrating = true
	s.firstTaken = false
	s.retries = make(map[gaze.Point]int)
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.run = Outcome{
		RunID:     uuid.New(),
		StartedAt: time.Now(),
		Points:    len(s.points),
	}
	return s.gen, len(s.points), nil
}

// Stop ends the session, aborting the sensor run if targets are left. It is
// a no-op when idle.
func (s *Sequencer) Stop() {
	s.mu.Lock()
	finish := s.stopLocked(nil)
	s.mu.Unlock()
	finish()
}

// stopLocked returns the work to do once the lock is released.
func (s *Sequencer) stopLocked(result *sensor.CalibrationResult) func() {
	if !s.calibrating {
		return func() {}
	}
	switch {
	case s.starting:
		// Start aborts once the sensor has taken the run.
		s.stopEarly = true
	case len(s.points) > 0 || s.sensor.IsCalibrating():
		s.sensor.CalibrationAbort()
	}
	s.points = nil
	s.calibrating = false
	s.cancel()

	o := s.run
	o.FinishedAt = time.Now()
	o.Completed = result != nil
	o.Quality = Assess(result)
	if result != nil {
		o.Success = result.Success
		o.AverageError = result.AverageErrorDegree
	}
	s.last = &o

	slog.Info("Calibration stopped", "run", o.RunID, "success", o.Success, "quality", o.Label, "resampled", o.Resampled)

	onStop, recorder := s.onStop, s.recorder
	return func() {
		if recorder != nil {
			if err := recorder.RecordCalibration(context.Background(), o); err != nil {
				slog.Error("Failed to record calibration", "run", o.RunID, "error", err)
			}
		}
		onStop()
	}
}

// Wait blocks until all sampling goroutines have returned.
func (s *Sequencer) Wait() {
	s.wg.Wait()
}

// OnCalibrationStarted implements sensor.CalibrationHandler.
func (s *Sequencer) OnCalibrationStarted() {
	s.advance()
}

// OnCalibrationProgress implements sensor.CalibrationHandler.
func (s *Sequencer) OnCalibrationProgress(progress float64) {
	slog.Debug("Calibration progress", "progress", progress)
	s.advance()
}

// OnCalibrationProcessing implements sensor.CalibrationHandler.
func (s *Sequencer) OnCalibrationProcessing() {
	slog.Debug("Calibration processing")
}

// OnCalibrationResult implements sensor.CalibrationHandler. A successful
// result ends the session. Otherwise the flagged targets are queued again,
// each at most maxRetries times; once nothing is left to retry the session
// is stopped rather than waiting on the sensor.
func (s *Sequencer) OnCalibrationResult(r *sensor.CalibrationResult) {
	s.mu.Lock()
	if !s.calibrating {
		s.mu.Unlock()
		return
	}

	if r != nil && r.Success {
		slog.Info("Calibration succeeded", "quality", Label(r), "error_deg", r.AverageErrorDegree)
		finish := s.stopLocked(r)
		s.mu.Unlock()
		finish()
		return
	}

	if r != nil {
		for _, p := range r.Points {
			if !p.State.NeedsRetry() {
				continue
			}
			c := pixel(p.Coordinates)
			if s.retries[c] >= s.maxRetries || s.queued(c) {
				continue
			}
			s.retries[c]++
			s.run.Resampled++
			s.points = append(s.points, c)
		}
	}

	next, ok := s.takeNextLocked()
	if !ok {
		slog.Warn("Calibration failed with nothing left to retry", "quality", Label(r))
		finish := s.stopLocked(r)
		s.mu.Unlock()
		finish()
		return
	}
	t := s.targetLocked(next)
	s.mu.Unlock()
	s.present(t)
}

func (s *Sequencer) queued(p gaze.Point) bool {
	for _, q := range s.points {
		if q == p {
			return true
		}
	}
	return false
}

// advance shows the next target, if any.
func (s *Sequencer) advance() {
	s.mu.Lock()
	if !s.calibrating {
		s.mu.Unlock()
		return
	}
	next, ok := s.takeNextLocked()
	t := s.targetLocked(next)
	s.mu.Unlock()
	if ok {
		s.present(t)
	}
}

// takeNextLocked removes the next target from the list: the first call of a
// session takes index 0, later calls pick at random.
func (s *Sequencer) takeNextLocked() (gaze.Point, bool) {
	if len(s.points) == 0 {
		return gaze.Point{}, false
	}
	i := 0
	if s.firstTaken {
		i = s.rng.Intn(len(s.points))
	}
	s.firstTaken = true
	p := s.points[i]
	s.points = append(s.points[:i], s.points[i+1:]...)
	return p, true
}

// target is one presentation of a point, bound to the session it was
// taken from.
type target struct {
	ctx   context.Context
	gen   uint64
	point gaze.Point
	d     time.Duration
}

func (s *Sequencer) targetLocked(p gaze.Point) target {
	return target{ctx: s.ctx, gen: s.gen, point: p, d: s.sampleTime}
}

// liveLocked reports whether t belongs to the running session.
func (s *Sequencer) liveLocked(t target) bool {
	return s.calibrating && s.gen == t.gen
}

// present hands t to the show callback. A confirmation that arrives after
// its session ended is dropped so it cannot reach a later sensor run.
func (s *Sequencer) present(t target) {
	var once sync.Once
	done := func() {
		once.Do(func() {
			s.mu.Lock()
			if !s.liveLocked(t) {
				s.mu.Unlock()
				slog.Debug("Ignoring confirmation of a stale target", "point", t.point)
				return
			}
			s.wg.Add(1)
			s.mu.Unlock()
			go func() {
				defer s.wg.Done()
				s.sample(t)
			}()
		})
	}
	s.show(t.point, done)
}

// sample records one target. An interrupted wait is logged and the point
// is still closed, unless a newer session owns the sensor by then.
func (s *Sequencer) sample(t target) {
	s.mu.Lock()
	live := s.liveLocked(t)
	s.mu.Unlock()
	if !live {
		return
	}
	s.sensor.CalibrationPointStart(int(t.point.X), int(t.point.Y))

	timer := time.NewTimer(t.d)
	select {
	case <-timer.C:
	case <-t.ctx.Done():
		timer.Stop()
		slog.Warn("Calibration sampling was interrupted", "point", t.point)
	}

	s.mu.Lock()
	superseded := s.gen != t.gen
	s.mu.Unlock()
	if superseded {
		return
	}
	s.sensor.CalibrationPointEnd()
}
