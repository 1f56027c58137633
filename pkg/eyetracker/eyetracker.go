// Package eyetracker is the application's view of the sensor: the latest
// smoothed frame, whether the eyes are currently tracked, and the
// calibration sequencer.
package eyetracker

import (
	"sync"
	"sync/atomic"

	"gazelaundry/pkg/calibration"
	"gazelaundry/pkg/dispatch"
	"gazelaundry/pkg/gaze"
	"gazelaundry/pkg/laundry"
	"gazelaundry/pkg/sensor"
	"gazelaundry/pkg/stats"
)

// Option configures an EyeTracker.
type Option func(*options)

type options struct {
	window   int
	stats    *stats.Tracker
	show     calibration.ShowFunc
	calOpts  []calibration.Option
	onChange func(tracking bool)
}

// WithWindow sets the smoothing window. Values below 1 select the default.
func WithWindow(n int) Option {
	return func(o *options) { o.window = n }
}

// WithStats counts the hub's traffic in tr.
func WithStats(tr *stats.Tracker) Option {
	return func(o *options) { o.stats = tr }
}

// WithShowFunc sets how calibration targets are presented. Without it every
// target is confirmed immediately.
func WithShowFunc(f calibration.ShowFunc) Option {
	return func(o *options) { o.show = f }
}

// WithTrackingHook calls f whenever the tracking state flips.
func WithTrackingHook(f func(tracking bool)) Option {
	return func(o *options) { o.onChange = f }
}

// WithCalibration passes options to the calibration sequencer.
func WithCalibration(opts ...calibration.Option) Option {
	return func(o *options) { o.calOpts = append(o.calOpts, opts...) }
}

// EyeTracker owns one dispatch hub and one calibration sequencer.
type EyeTracker struct {
	hub      *dispatch.Hub
	seq      *calibration.Sequencer
	onChange func(bool)

	mu       sync.RWMutex
	frame    gaze.Frame
	tracking atomic.Bool
}

// New wires the tracker to s and initializes the hub. On error the tracker
// is still usable: it reports the zero frame until the sensor recovers.
func New(s sensor.Sensor, opts ...Option) (*EyeTracker, error) {
	o := options{window: laundry.DefaultWindow}
	for _, opt := range opts {
		opt(&o)
	}
	if o.window < 1 {
		o.window = laundry.DefaultWindow
	}
	if o.show == nil {
		o.show = func(_ gaze.Point, done func()) { done() }
	}

	var hubOpts []dispatch.Option
	if o.stats != nil {
		hubOpts = append(hubOpts, dispatch.WithStats(o.stats))
	}

	et := &EyeTracker{
		hub:      dispatch.New(s, o.window, hubOpts...),
		seq:      calibration.New(s, o.show, o.calOpts...),
		frame:    gaze.Zero(),
		onChange: o.onChange,
	}
	et.hub.AddListener(dispatch.ListenerFunc(et.onFrame))
	et.hub.SetQualityListener(dispatch.ListenerFunc(et.onRaw))

	if err := et.hub.Init(); err != nil {
		return et, err
	}
	return et, nil
}

func (et *EyeTracker) onFrame(s *gaze.Sample) {
	f := gaze.FromSample(s, et.hub.Resolution())
	et.mu.Lock()
	et.frame = f
	et.mu.Unlock()
}

func (et *EyeTracker) onRaw(s *gaze.Sample) {
	valid := gaze.Valid(s)
	if et.tracking.Swap(valid) != valid && et.onChange != nil {
		et.onChange(valid)
	}
}

// Close stops calibration and releases the sensor.
func (et *EyeTracker) Close() {
	et.seq.Stop()
	et.hub.Close()
}

// Hub returns the dispatch hub for registering further listeners.
func (et *EyeTracker) Hub() *dispatch.Hub {
	return et.hub
}

// Calibration returns the sequencer.
func (et *EyeTracker) Calibration() *calibration.Sequencer {
	return et.seq
}

// GazeFrame returns the latest frame, or the zero frame before the first
// valid sample.
func (et *EyeTracker) GazeFrame() gaze.Frame {
	et.mu.RLock()
	defer et.mu.RUnlock()
	return et.frame
}

// IsTracking reports whether the most recent raw sample was valid.
func (et *EyeTracker) IsTracking() bool {
	return et.tracking.Load()
}

// GazeCoords returns the smoothed gaze point in pixels.
func (et *EyeTracker) GazeCoords() gaze.Point {
	return et.GazeFrame().GazePoint
}

// EyeCenter returns the point between both eyes in screen pixels.
func (et *EyeTracker) EyeCenter() gaze.Point {
	return et.GazeFrame().EyeCenter
}

// IPD returns the normalized distance between the pupils.
func (et *EyeTracker) IPD() float64 {
	return et.GazeFrame().IPD
}

// Roll returns the head roll in degrees.
func (et *EyeTracker) Roll() float64 {
	return et.GazeFrame().Roll
}
