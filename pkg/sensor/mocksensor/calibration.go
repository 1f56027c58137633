package mocksensor

import (
	"log/slog"

	"gazelaundry/pkg/gaze"
	"gazelaundry/pkg/sensor"
)

// CalibrationStart begins a run; the started event follows asynchronously.
func (s *Sensor) CalibrationStart(points int, h sensor.CalibrationHandler) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.activated {
		return sensor.ErrNotActivated
	}
	if s.calibrating {
		return sensor.ErrCalibrating
	}
	s.calibrating = true
	s.handler = h
	s.total = points
	s.ended = 0
	s.sampled = nil
	s.queue(event{kind: "started"})
	return nil
}

func (s *Sensor) CalibrationPointStart(x, y int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = gaze.Point{X: float64(x), Y: float64(y)}
}

// CalibrationPointEnd completes the current point. After the last point of
// the run the result is queued. A failed result keeps the run open for the
// points flagged for retry.
func (s *Sensor) CalibrationPointEnd() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.calibrating {
		return
	}
	s.sampled = append(s.sampled, s.current)
	s.ended++
	progress := 1.0
	if s.total > 0 {
		progress = float64(s.ended) / float64(s.total)
	}
	s.queue(event{kind: "progress", progress: progress})
	if s.ended < s.total {
		return
	}

	s.queue(event{kind: "processing"})
	result := s.buildResult(s.sampled)
	s.queue(event{kind: "result", result: result})

	if result.Success {
		s.calibrated = true
		s.resetRun()
		return
	}

	retry := 0
	for _, p := range result.Points {
		if p.State.NeedsRetry() {
			retry++
		}
	}
	if retry == 0 {
		s.resetRun()
		return
	}
	s.total = retry
	s.ended = 0
	s.sampled = nil
}

// CalibrationAbort cancels the current run.
func (s *Sensor) CalibrationAbort() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.calibrating {
		slog.Debug("Mock sensor calibration aborted", "sampled", len(s.sampled), "total", s.total)
	}
	s.resetRun()
}

func (s *Sensor) buildResult(sampled []gaze.Point) *sensor.CalibrationResult {
	if s.cfg.ResultFunc != nil {
		if r := s.cfg.ResultFunc(append([]gaze.Point(nil), sampled...)); r != nil {
			return r
		}
	}
	r := &sensor.CalibrationResult{
		Success:            true,
		AverageErrorDegree: s.cfg.AverageError,
	}
	for _, p := range sampled {
		r.Points = append(r.Points, sensor.CalibrationPoint{
			State:       sensor.PointOK,
			Coordinates: p,
			MeanError:   s.cfg.AverageError,
		})
	}
	return r
}

// queue hands an event to the loop. Callers hold s.mu; the buffer is large
// enough for one run, so the send only blocks if the loop stopped.
func (s *Sensor) queue(ev event) {
	ev.handler = s.handler
	select {
	case s.events <- ev:
	case <-s.stopCh:
	}
}

func (s *Sensor) resetRun() {
	s.calibrating = false
	s.handler = nil
	s.total = 0
	s.ended = 0
	s.sampled = nil
}
