package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"gazelaundry/pkg/calibration"
	"gazelaundry/pkg/gaze"
	"gazelaundry/pkg/sensor"
	"gazelaundry/pkg/store"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 500
)

// CalibrationHandler exposes the sequencer and the stored history.
type CalibrationHandler struct {
	seq     *calibration.Sequencer
	history store.CalibrationStore
	grid    func() []gaze.Point
}

// NewCalibrationHandler creates the handler. grid yields the targets used
// when a start request names none.
func NewCalibrationHandler(seq *calibration.Sequencer, history store.CalibrationStore, grid func() []gaze.Point) *CalibrationHandler {
	return &CalibrationHandler{seq: seq, history: history, grid: grid}
}

type CalibrationStatus struct {
	Calibrating bool                 `json:"calibrating"`
	Calibrated  bool                 `json:"calibrated"`
	Remaining   int                  `json:"remaining"`
	Last        *calibration.Outcome `json:"last,omitempty"`
}

type StartRequest struct {
	Points []gaze.Point `json:"points"`
}

func (h *CalibrationHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	resp := CalibrationStatus{
		Calibrating: h.seq.IsCalibrating(),
		Calibrated:  h.seq.IsCalibrated(),
		Remaining:   h.seq.Remaining(),
	}
	if o, ok := h.seq.LastOutcome(); ok {
		resp.Last = &o
	} else if h.history != nil {
		// Fall back to the previous process' last run
		last, err := h.history.LatestCalibration(r.Context())
		if err != nil {
			slog.Warn("Failed to load latest calibration", "error", err)
		}
		resp.Last = last
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *CalibrationHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	points := req.Points
	if len(points) == 0 {
		points = h.grid()
	}

	err := h.seq.Start(points...)
	switch {
	case err == nil:
	case errors.Is(err, calibration.ErrCalibrating), errors.Is(err, sensor.ErrCalibrating), errors.Is(err, calibration.ErrStopped):
		http.Error(w, "calibration already running", http.StatusConflict)
		return
	case errors.Is(err, calibration.ErrNoPoints):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case errors.Is(err, sensor.ErrNotActivated):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	default:
		slog.Error("Failed to start calibration", "error", err)
		http.Error(w, "failed to start calibration", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{"points": len(points)})
}

func (h *CalibrationHandler) HandleStop(w http.ResponseWriter, r *http.Request) {
	h.seq.Stop()
	writeJSON(w, http.StatusOK, map[string]bool{"calibrating": false})
}

func (h *CalibrationHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeJSON(w, http.StatusOK, []calibration.Outcome{})
		return
	}

	limit := defaultHistoryLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	runs, err := h.history.ListCalibrations(r.Context(), limit)
	if err != nil {
		slog.Error("Failed to list calibrations", "error", err)
		http.Error(w, "failed to load history", http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []calibration.Outcome{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}
