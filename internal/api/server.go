package api

import (
	"log/slog"
	"net/http"
	"time"
)

// NewServer creates and configures the HTTP server.
// It accepts handlers for all API endpoints and a shutdownFunc for graceful shutdown.
func NewServer(addr string, frames *FrameHandler, stats *StatsHandler, cal *CalibrationHandler, stream *StreamHub, calSocket *CalibrationSocket, metrics http.Handler, shutdown func()) *http.Server {
	mux := http.NewServeMux()

	// 1. Health & Info
	mux.HandleFunc("GET /health", handleHealth)
	mux.HandleFunc("GET /api/version", frames.HandleVersion)
	mux.Handle("GET /api/stats", stats)
	mux.HandleFunc("GET /api/log/latest", handleLatestLog)
	if metrics != nil {
		mux.Handle("GET /metrics", metrics)
	}

	// 2. Gaze
	mux.HandleFunc("GET /api/frame", frames.HandleFrame)
	if stream != nil {
		mux.Handle("GET /ws/frames", stream)
	}

	// 3. Calibration
	mux.HandleFunc("GET /api/calibration", cal.HandleStatus)
	mux.HandleFunc("POST /api/calibration/start", cal.HandleStart)
	mux.HandleFunc("POST /api/calibration/stop", cal.HandleStop)
	mux.HandleFunc("GET /api/calibration/history", cal.HandleHistory)
	if calSocket != nil {
		mux.Handle("GET /ws/calibration", calSocket)
	}

	// 4. Shutdown Endpoint
	mux.HandleFunc("POST /api/shutdown", func(w http.ResponseWriter, r *http.Request) {
		slog.Info("Graceful shutdown initiated via API")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("Shutting down...")); err != nil {
			slog.Error("Failed to write shutdown response", "error", err)
		}
		// Let the response flush first
		go func() {
			time.Sleep(100 * time.Millisecond)
			shutdown()
		}()
	})

	// No WriteTimeout: the /ws routes are long-lived.
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		slog.Error("Failed to write health response", "error", err)
	}
}
