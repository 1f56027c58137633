// Package gaze provides the sample and frame types of the gaze pipeline
// together with the validity check and the frame geometry.
package gaze

import "time"

// State is the tracking-state bitmask reported with every sample.
type State int

const (
	// TrackingGaze is set while the sensor resolves a gaze point.
	TrackingGaze State = 1 << iota
	// TrackingEyes is set while the sensor sees at least one eye.
	TrackingEyes
	// TrackingPresence is set while a user is present in front of the sensor.
	TrackingPresence
	// TrackingFail is set when the sensor failed to track.
	TrackingFail
	// TrackingLost is set when tracking was lost.
	TrackingLost
)

// Has reports whether any of the bits in flag are set.
func (s State) Has(flag State) bool {
	return s&flag != 0
}

// Eye holds the per-eye part of a sample.
type Eye struct {
	PupilCenter Point   `json:"pupil_center"` // normalized [0,1]
	PupilSize   float64 `json:"pupil_size"`
	Raw         Point   `json:"raw"`
	Smoothed    Point   `json:"smoothed"`
}

// Sample is a single reading from the sensor. Left and Right must be
// non-nil; a sample without them is malformed.
type Sample struct {
	State     State     `json:"state"`
	Fixated   bool      `json:"fixated"`
	Timestamp time.Time `json:"timestamp"`
	Raw       Point     `json:"raw"`
	Smoothed  Point     `json:"smoothed"`
	Left      *Eye      `json:"left"`
	Right     *Eye      `json:"right"`
}

// NewSample returns a zero-valued, well-formed sample.
func NewSample() *Sample {
	return &Sample{Left: &Eye{}, Right: &Eye{}}
}

// Clone returns a deep copy of s. Clone of nil is nil.
func (s *Sample) Clone() *Sample {
	if s == nil {
		return nil
	}
	c := *s
	if s.Left != nil {
		l := *s.Left
		c.Left = &l
	}
	if s.Right != nil {
		r := *s.Right
		c.Right = &r
	}
	return &c
}
