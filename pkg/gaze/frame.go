package gaze

import "math"

// Resolution is the screen size in pixels.
type Resolution struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Frame is the application-facing view of a smoothed sample.
// It is a plain value and safe to share once produced.
type Frame struct {
	GazePoint Point   `json:"gaze"`       // pixels
	EyeCenter Point   `json:"eye_center"` // pixels
	IPD       float64 `json:"ipd"`
	Roll      float64 `json:"roll"` // degrees, [-90, 90]
}

// Zero returns the frame used before any data is available.
func Zero() Frame {
	return Frame{}
}

// IsZero reports whether f is the zero frame.
func (f Frame) IsZero() bool {
	return f == Frame{}
}

// FromSample derives a frame from a (smoothed) sample. A nil sample yields
// the zero frame.
func FromSample(s *Sample, res Resolution) Frame {
	if s == nil {
		return Zero()
	}
	MustBeWellFormed(s)
	return Frame{
		GazePoint: s.Smoothed,
		EyeCenter: EyesCenter(s, res),
		IPD:       IPD(s),
		Roll:      HeadRoll(s),
	}
}

// EyesCenter returns the midpoint between both pupils projected onto a
// screen of the given resolution.
func EyesCenter(s *Sample, res Resolution) Point {
	c := s.Left.PupilCenter.Midpoint(s.Right.PupilCenter)
	return Point{X: c.X * float64(res.Width), Y: c.Y * float64(res.Height)}
}

// IPD returns the distance between the two pupil centers.
func IPD(s *Sample) float64 {
	return s.Left.PupilCenter.Distance(s.Right.PupilCenter)
}

// HeadRoll returns the head roll in degrees based on the line between the
// pupils. Angles beyond ±90° are implausible and reported as 0.
func HeadRoll(s *Sample) float64 {
	d := s.Left.PupilCenter.Sub(s.Right.PupilCenter)
	deg := math.Atan2(d.Y, d.X) * 180 / math.Pi
	roll := math.Mod(deg+360, 360) - 180
	if math.Abs(roll) > 90 {
		return 0
	}
	return roll
}
