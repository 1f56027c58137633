// Package stats keeps lock-free counters for the sample and event streams.
package stats

import (
	"sync"
	"sync/atomic"
)

// Stream names used across the service.
const (
	StreamGaze        = "gaze"
	StreamQuality     = "quality"
	StreamCalibration = "calibration"
	StreamMQTT        = "mqtt"
	StreamWebSocket   = "websocket"
)

// Tracker tracks counters per stream.
type Tracker struct {
	mu      sync.RWMutex
	streams map[string]*StreamStats
}

// StreamStats holds counters for one stream.
// Fields are accessed atomically.
type StreamStats struct {
	Received int64
	Accepted int64
	Dropped  int64
	Failures int64
}

// New creates a new Tracker.
func New() *Tracker {
	return &Tracker{
		streams: make(map[string]*StreamStats),
	}
}

// getStats returns the stats object for a stream, creating it if needed.
func (t *Tracker) getStats(stream string) *StreamStats {
	t.mu.RLock()
	s, ok := t.streams[stream]
	t.mu.RUnlock()
	if ok {
		return s
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok = t.streams[stream]; ok {
		return s
	}
	s = &StreamStats{}
	t.streams[stream] = s
	return s
}

// TrackReceived counts an item entering the stream.
func (t *Tracker) TrackReceived(stream string) {
	atomic.AddInt64(&t.getStats(stream).Received, 1)
}

// TrackAccepted counts an item that was processed and passed on.
func (t *Tracker) TrackAccepted(stream string) {
	atomic.AddInt64(&t.getStats(stream).Accepted, 1)
}

// TrackDropped counts an item that was discarded.
func (t *Tracker) TrackDropped(stream string) {
	atomic.AddInt64(&t.getStats(stream).Dropped, 1)
}

// TrackFailure counts a consumer failure.
func (t *Tracker) TrackFailure(stream string) {
	atomic.AddInt64(&t.getStats(stream).Failures, 1)
}

// Snapshot returns a copy of the current counters.
func (t *Tracker) Snapshot() map[string]StreamStats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	result := make(map[string]StreamStats, len(t.streams))
	for k, v := range t.streams {
		result[k] = StreamStats{
			Received: atomic.LoadInt64(&v.Received),
			Accepted: atomic.LoadInt64(&v.Accepted),
			Dropped:  atomic.LoadInt64(&v.Dropped),
			Failures: atomic.LoadInt64(&v.Failures),
		}
	}
	return result
}

// Reset zeroes every counter but keeps the known streams.
func (t *Tracker) Reset() {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, v := range t.streams {
		atomic.StoreInt64(&v.Received, 0)
		atomic.StoreInt64(&v.Accepted, 0)
		atomic.StoreInt64(&v.Dropped, 0)
		atomic.StoreInt64(&v.Failures, 0)
	}
}
