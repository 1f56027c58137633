// Package sensor defines the contract of the eye-tracking device the
// pipeline talks to. Implementations deliver samples and calibration events
// from their own goroutine.
package sensor

import (
	"errors"
	"fmt"

	"gazelaundry/pkg/gaze"
)

var (
	// ErrNotActivated is returned when an operation requires an active sensor.
	ErrNotActivated = errors.New("sensor not activated")
	// ErrActivationRefused is returned when the device rejects activation.
	ErrActivationRefused = errors.New("sensor refused activation")
	// ErrCalibrating is returned when a calibration run is already in progress.
	ErrCalibrating = errors.New("sensor already calibrating")
)

// Version is the protocol version negotiated on activation.
type Version struct {
	Major int
	Minor int
}

// Version10 is the only protocol version currently spoken.
var Version10 = Version{Major: 1, Minor: 0}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// GazeListener receives every raw sample.
type GazeListener interface {
	OnGaze(s *gaze.Sample)
}

// CalibrationHandler receives the events of one calibration run.
type CalibrationHandler interface {
	OnCalibrationStarted()
	OnCalibrationProgress(progress float64)
	OnCalibrationProcessing()
	OnCalibrationResult(r *CalibrationResult)
}

// Sensor is the device handle. It is owned by the caller and shared by the
// dispatch hub and the calibration sequencer.
type Sensor interface {
	// Activate connects to the device using the given protocol version.
	Activate(v Version) error
	// Deactivate disconnects. It is safe to call on an inactive sensor.
	Deactivate()
	IsActivated() bool
	IsCalibrating() bool
	IsCalibrated() bool
	// Version returns the active protocol version, or the zero Version.
	Version() Version
	ScreenResolution() gaze.Resolution
	// AddGazeListener subscribes l to the raw sample stream. Subscriptions
	// outlive Deactivate and resume delivery after the next Activate.
	AddGazeListener(l GazeListener)

	// CalibrationStart begins a run of the given number of points; events
	// are reported to h, possibly before CalibrationStart returns.
	CalibrationStart(points int, h CalibrationHandler) error
	CalibrationPointStart(x, y int)
	CalibrationPointEnd()
	CalibrationAbort()
}
