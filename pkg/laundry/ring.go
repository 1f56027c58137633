// Package laundry smooths the gaze stream: it keeps the last few valid
// samples in a ring and reports their mean, never letting an invalid sample
// into the window.
package laundry

import (
	"sync"

	"gazelaundry/pkg/gaze"
)

// DefaultWindow is the number of samples averaged when no size is given.
const DefaultWindow = 3

// Ring is a fixed-size window of valid samples.
type Ring struct {
	mu       sync.Mutex
	slots    []*gaze.Sample
	head     int
	occupied int
	smoothed *gaze.Sample
}

// New creates a ring holding up to n samples. n < 1 selects DefaultWindow.
func New(n int) *Ring {
	if n < 1 {
		n = DefaultWindow
	}
	return &Ring{
		slots:    make([]*gaze.Sample, n),
		head:     n - 1,
		smoothed: gaze.NewSample(),
	}
}

// Launder stores a copy of a valid sample and returns the mean over the
// occupied slots. Invalid samples are dropped and nil is returned; the
// ring is left untouched. Malformed samples panic (see gaze.Valid).
func (r *Ring) Launder(s *gaze.Sample) *gaze.Sample {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !gaze.Valid(s) {
		return nil
	}

	r.head = (r.head + 1) % len(r.slots)
	r.slots[r.head] = s.Clone()
	if r.occupied < len(r.slots) {
		r.occupied++
	}

	mean := emptyFrom(s)
	n := 0
	for _, slot := range r.slots {
		if slot == nil {
			continue
		}
		addTo(mean, slot)
		n++
	}
	divide(mean, float64(n))
	r.smoothed = mean

	return mean.Clone()
}

// Last returns a copy of the most recently accepted raw sample, or a zero
// sample if nothing has been accepted yet.
func (r *Ring) Last() *gaze.Sample {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.slots[r.head] == nil {
		return gaze.NewSample()
	}
	return r.slots[r.head].Clone()
}

// LastSmoothed returns a copy of the current mean, or a zero sample if
// nothing has been accepted yet.
func (r *Ring) LastSmoothed() *gaze.Sample {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.smoothed.Clone()
}

// Len returns the number of occupied slots.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.occupied
}

// Cap returns the window size.
func (r *Ring) Cap() int {
	return len(r.slots)
}
