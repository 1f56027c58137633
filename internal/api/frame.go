package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"gazelaundry/pkg/eyetracker"
	"gazelaundry/pkg/gaze"
	"gazelaundry/pkg/version"
)

// FrameResponse is the API response structure for the current frame.
type FrameResponse struct {
	gaze.Frame
	Tracking bool `json:"tracking"`
}

// FrameHandler serves the tracker's latest state.
type FrameHandler struct {
	et *eyetracker.EyeTracker
}

func NewFrameHandler(et *eyetracker.EyeTracker) *FrameHandler {
	return &FrameHandler{et: et}
}

func (h *FrameHandler) HandleFrame(w http.ResponseWriter, r *http.Request) {
	resp := FrameResponse{
		Frame:    h.et.GazeFrame(),
		Tracking: h.et.IsTracking(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("Failed to encode frame response", "error", err)
	}
}

// HandleVersion reports the service version and the negotiated sensor API.
func (h *FrameHandler) HandleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]string{
		"version":    version.Version,
		"sensor_api": h.et.Hub().VersionString(),
	}); err != nil {
		slog.Error("Failed to write version response", "error", err)
	}
}
