// Package dispatch connects the sensor stream to the application: every raw
// sample goes to the quality listener, is laundered, and the smoothed result
// is fanned out to the data listeners.
package dispatch

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strconv"
	"sync"

	"github.com/google/uuid"

	"gazelaundry/pkg/gaze"
	"gazelaundry/pkg/laundry"
	"gazelaundry/pkg/logging"
	"gazelaundry/pkg/sensor"
	"gazelaundry/pkg/stats"
)

// ErrActivation is returned by Init when the sensor cannot be activated.
var ErrActivation = errors.New("could not activate sensor")

// Listener receives samples from the hub.
type Listener = sensor.GazeListener

// ListenerFunc adapts a function to Listener. Function values cannot be
// compared, so every AddListener call with a ListenerFunc registers anew.
type ListenerFunc func(s *gaze.Sample)

// OnGaze calls f(s).
func (f ListenerFunc) OnGaze(s *gaze.Sample) { f(s) }

type entry struct {
	token    uuid.UUID
	listener Listener
}

// Hub owns the smoothing ring and the listener set for one sensor.
type Hub struct {
	sensor sensor.Sensor
	ring   *laundry.Ring
	stats  *stats.Tracker

	mu        sync.RWMutex
	listeners []entry
	quality   Listener

	// dispatchMu serializes sample cycles so that the quality listener and
	// the data listeners always see the same sample.
	dispatchMu sync.Mutex

	initMu     sync.Mutex
	subscribed bool // set once; sensor subscriptions survive Deactivate
}

// Option configures a Hub.
type Option func(*Hub)

// WithStats counts received, accepted and dropped samples and listener
// failures in tr.
func WithStats(tr *stats.Tracker) Option {
	return func(h *Hub) { h.stats = tr }
}

// New creates a hub smoothing over window samples.
func New(s sensor.Sensor, window int, opts ...Option) *Hub {
	h := &Hub{
		sensor: s,
		ring:   laundry.New(window),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Init activates the sensor if needed and subscribes to its samples.
// Repeated calls are no-ops once the sensor is active.
func (h *Hub) Init() error {
	h.initMu.Lock()
	defer h.initMu.Unlock()

	if !h.sensor.IsActivated() {
		if err := h.sensor.Activate(sensor.Version10); err != nil {
			return fmt.Errorf("%w: %w", ErrActivation, err)
		}
	}
	if !h.subscribed {
		h.sensor.AddGazeListener(h)
		h.subscribed = true
	}
	slog.Info("Sensor activated", "api", h.VersionString(), "window", h.ring.Cap())
	return nil
}

// Close aborts a running calibration and deactivates the sensor. The
// sensor keeps the hub subscribed, so a later Init only reactivates it.
func (h *Hub) Close() {
	h.initMu.Lock()
	defer h.initMu.Unlock()

	if h.sensor.IsCalibrating() {
		h.sensor.CalibrationAbort()
	}
	h.sensor.Deactivate()
}

// AddListener registers l for smoothed samples and returns its token.
// Adding a listener that is already registered returns the existing token.
func (h *Hub) AddListener(l Listener) uuid.UUID {
	if l == nil {
		return uuid.Nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	if reflect.TypeOf(l).Comparable() {
		for _, e := range h.listeners {
			if e.listener == l {
				return e.token
			}
		}
	}
	token := uuid.New()
	h.listeners = append(h.listeners, entry{token: token, listener: l})
	return token
}

// RemoveListener unregisters the listener with the given token. It reports
// whether a listener was removed.
func (h *Hub) RemoveListener(token uuid.UUID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i, e := range h.listeners {
		if e.token == token {
			h.listeners = append(h.listeners[:i:i], h.listeners[i+1:]...)
			return true
		}
	}
	return false
}

// SetQualityListener sets the listener for raw samples, replacing any
// previous one. Nil clears it.
func (h *Hub) SetQualityListener(l Listener) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.quality = l
}

// QualityListener returns the current raw sample listener.
func (h *Hub) QualityListener() Listener {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.quality
}

// Listeners returns the number of data listeners.
func (h *Hub) Listeners() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.listeners)
}

// OnGaze implements sensor.GazeListener. It runs one dispatch cycle.
func (h *Hub) OnGaze(s *gaze.Sample) {
	h.dispatchMu.Lock()
	defer h.dispatchMu.Unlock()

	h.mu.RLock()
	quality := h.quality
	listeners := make([]entry, len(h.listeners))
	copy(listeners, h.listeners)
	h.mu.RUnlock()

	h.track(stats.StreamGaze, (*stats.Tracker).TrackReceived)

	if quality != nil {
		h.deliver(stats.StreamQuality, uuid.Nil, quality, s.Clone())
	}

	smooth := h.ring.Launder(s)
	if smooth == nil {
		h.track(stats.StreamGaze, (*stats.Tracker).TrackDropped)
		logging.TraceDefault("Dropped invalid sample", "state", s.State)
		return
	}
	h.track(stats.StreamGaze, (*stats.Tracker).TrackAccepted)

	for _, e := range listeners {
		h.deliver(stats.StreamGaze, e.token, e.listener, smooth.Clone())
	}
}

// deliver calls l, recovering from any panic so one listener cannot stop
// the others or the sensor.
func (h *Hub) deliver(stream string, token uuid.UUID, l Listener, s *gaze.Sample) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Listener panicked", "stream", stream, "token", token, "panic", r)
			h.track(stream, (*stats.Tracker).TrackFailure)
		}
	}()
	l.OnGaze(s)
}

func (h *Hub) track(stream string, fn func(*stats.Tracker, string)) {
	if h.stats != nil {
		fn(h.stats, stream)
	}
}

// LastRaw returns the most recent valid raw sample.
func (h *Hub) LastRaw() *gaze.Sample {
	return h.ring.Last()
}

// LastSmoothed returns the current smoothed sample.
func (h *Hub) LastSmoothed() *gaze.Sample {
	return h.ring.LastSmoothed()
}

// Resolution returns the sensor's screen resolution.
func (h *Hub) Resolution() gaze.Resolution {
	return h.sensor.ScreenResolution()
}

// VersionString returns the active protocol version as "major.minor", or
// "0.0" when the sensor is not activated.
func (h *Hub) VersionString() string {
	if !h.sensor.IsActivated() {
		return "0.0"
	}
	return h.sensor.Version().String()
}

// Version returns VersionString as a number.
func (h *Hub) Version() float64 {
	v, err := strconv.ParseFloat(h.VersionString(), 64)
	if err != nil {
		return 0
	}
	return v
}
