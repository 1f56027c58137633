package laundry

import "gazelaundry/pkg/gaze"

// emptyFrom returns a zeroed sample that keeps the state, fixation and
// timestamp of from.
func emptyFrom(from *gaze.Sample) *gaze.Sample {
	s := gaze.NewSample()
	s.State = from.State
	s.Fixated = from.Fixated
	s.Timestamp = from.Timestamp
	return s
}

// addTo adds other's coordinates into target in place.
func addTo(target, other *gaze.Sample) {
	target.Raw = target.Raw.Add(other.Raw)
	target.Smoothed = target.Smoothed.Add(other.Smoothed)
	addEye(target.Left, other.Left)
	addEye(target.Right, other.Right)
}

func addEye(target, other *gaze.Eye) {
	target.PupilCenter = target.PupilCenter.Add(other.PupilCenter)
	target.PupilSize += other.PupilSize
	target.Raw = target.Raw.Add(other.Raw)
	target.Smoothed = target.Smoothed.Add(other.Smoothed)
}

// divide scales s's coordinates by 1/k in place.
func divide(s *gaze.Sample, k float64) {
	s.Raw = s.Raw.Div(k)
	s.Smoothed = s.Smoothed.Div(k)
	divideEye(s.Left, k)
	divideEye(s.Right, k)
}

func divideEye(e *gaze.Eye, k float64) {
	e.PupilCenter = e.PupilCenter.Div(k)
	e.PupilSize /= k
	e.Raw = e.Raw.Div(k)
	e.Smoothed = e.Smoothed.Div(k)
}
