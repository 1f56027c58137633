package gaze

// ValidState reports whether the bitmask marks the eyes or the gaze as tracked.
func ValidState(s State) bool {
	return s.Has(TrackingEyes | TrackingGaze)
}

// Valid reports whether the sample carries usable tracking data.
// It panics if the sample is nil or is missing an eye; such a sample
// points at an integration bug, not at bad tracking.
func Valid(s *Sample) bool {
	MustBeWellFormed(s)
	return ValidState(s.State)
}

// MustBeWellFormed panics unless s and both of its eyes are non-nil.
func MustBeWellFormed(s *Sample) {
	switch {
	case s == nil:
		panic("gaze: nil sample")
	case s.Left == nil:
		panic("gaze: malformed sample: missing left eye")
	case s.Right == nil:
		panic("gaze: malformed sample: missing right eye")
	}
}
