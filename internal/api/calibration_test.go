package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gazelaundry/pkg/calibration"
	"gazelaundry/pkg/db"
	"gazelaundry/pkg/eyetracker"
	"gazelaundry/pkg/gaze"
	"gazelaundry/pkg/sensor/mocksensor"
	"gazelaundry/pkg/store"
)

func newHistory(t *testing.T) *store.SQLiteStore {
	t.Helper()
	d, err := db.Init(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return store.NewSQLiteStore(d)
}

func fixedGrid(points ...gaze.Point) func() []gaze.Point {
	return func() []gaze.Point { return points }
}

// newCalibrationHandler returns a handler whose sessions sample each target
// for an hour, so a started session stays running until stopped.
func newCalibrationHandler(t *testing.T, grid func() []gaze.Point) (*CalibrationHandler, *calibration.Sequencer) {
	t.Helper()
	et, _ := newTracker(t, eyetracker.WithCalibration(calibration.WithSampleDuration(time.Hour)))
	return NewCalibrationHandler(et.Calibration(), newHistory(t), grid), et.Calibration()
}

func post(h http.HandlerFunc, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h(w, httptest.NewRequest("POST", path, strings.NewReader(body)))
	return w
}

func TestCalibrationHandler_HandleStart(t *testing.T) {
	grid := fixedGrid(gaze.Point{X: 400, Y: 300}, gaze.Point{X: 80, Y: 60}, gaze.Point{X: 720, Y: 540}, gaze.Point{X: 80, Y: 540})

	tests := []struct {
		name       string
		grid       func() []gaze.Point
		body       string
		wantStatus int
		wantPoints int
	}{
		{
			name:       "ExplicitPoints",
			grid:       grid,
			body:       `{"points":[{"x":10,"y":20},{"x":30,"y":40}]}`,
			wantStatus: http.StatusAccepted,
			wantPoints: 2,
		},
		{
			name:       "EmptyBodyUsesGrid",
			grid:       grid,
			body:       "",
			wantStatus: http.StatusAccepted,
			wantPoints: 4,
		},
		{
			name:       "EmptyPointsUsesGrid",
			grid:       grid,
			body:       `{"points":[]}`,
			wantStatus: http.StatusAccepted,
			wantPoints: 4,
		},
		{
			name:       "InvalidBody",
			grid:       grid,
			body:       `{"points":`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "NoPoints",
			grid:       fixedGrid(),
			body:       "",
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, seq := newCalibrationHandler(t, tt.grid)
			w := post(h.HandleStart, "/api/calibration/start", tt.body)

			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			if tt.wantStatus != http.StatusAccepted {
				assert.False(t, seq.IsCalibrating())
				return
			}

			var resp map[string]int
			require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
			assert.Equal(t, tt.wantPoints, resp["points"])
			assert.True(t, seq.IsCalibrating())
		})
	}
}

func TestCalibrationHandler_StartWhileRunning(t *testing.T) {
	h, seq := newCalibrationHandler(t, fixedGrid(gaze.Point{X: 1, Y: 1}))

	require.Equal(t, http.StatusAccepted, post(h.HandleStart, "/api/calibration/start", "").Code)
	w := post(h.HandleStart, "/api/calibration/start", "")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = post(h.HandleStop, "/api/calibration/stop", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.False(t, seq.IsCalibrating())
	seq.Wait()

	// Idle again, a new session may start
	assert.Equal(t, http.StatusAccepted, post(h.HandleStart, "/api/calibration/start", "").Code)
}

func TestCalibrationHandler_StartInactiveSensor(t *testing.T) {
	ms := mocksensor.New(mocksensor.Config{SampleInterval: time.Hour})
	t.Cleanup(func() { _ = ms.Close() })
	seq := calibration.New(ms, func(p gaze.Point, done func()) { done() })
	h := NewCalibrationHandler(seq, nil, fixedGrid(gaze.Point{X: 1, Y: 1}))

	w := post(h.HandleStart, "/api/calibration/start", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestCalibrationHandler_HandleStatus(t *testing.T) {
	t.Run("FallsBackToHistory", func(t *testing.T) {
		h, _ := newCalibrationHandler(t, fixedGrid())
		prev := calibration.Outcome{
			RunID:      uuid.New(),
			StartedAt:  time.Now().Add(-time.Minute).UTC().Truncate(time.Second),
			FinishedAt: time.Now().UTC().Truncate(time.Second),
			Points:     9,
			Completed:  true,
			Success:    true,
			Quality:    calibration.Quality{Rating: 4, Label: "good"},
		}
		require.NoError(t, h.history.SaveCalibration(context.Background(), &prev))

		w := httptest.NewRecorder()
		h.HandleStatus(w, httptest.NewRequest("GET", "/api/calibration", http.NoBody))
		require.Equal(t, http.StatusOK, w.Code)

		var got CalibrationStatus
		require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
		assert.False(t, got.Calibrating)
		require.NotNil(t, got.Last)
		assert.Equal(t, prev.RunID, got.Last.RunID)
		assert.Equal(t, "good", got.Last.Label)
	})

	t.Run("Running", func(t *testing.T) {
		h, _ := newCalibrationHandler(t, fixedGrid(gaze.Point{X: 1, Y: 1}, gaze.Point{X: 2, Y: 2}))
		require.Equal(t, http.StatusAccepted, post(h.HandleStart, "/api/calibration/start", "").Code)

		w := httptest.NewRecorder()
		h.HandleStatus(w, httptest.NewRequest("GET", "/api/calibration", http.NoBody))

		var got CalibrationStatus
		require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
		assert.True(t, got.Calibrating)
		assert.LessOrEqual(t, got.Remaining, 2)
	})
}

func TestCalibrationHandler_HandleHistory(t *testing.T) {
	h, _ := newCalibrationHandler(t, fixedGrid())
	now := time.Now().UTC().Truncate(time.Second)
	for i, label := range []string{"poor", "good", "perfect"} {
		o := calibration.Outcome{
			RunID:      uuid.New(),
			StartedAt:  now.Add(time.Duration(i) * time.Minute),
			FinishedAt: now.Add(time.Duration(i)*time.Minute + 10*time.Second),
			Points:     9,
			Completed:  true,
			Quality:    calibration.Quality{Label: label},
		}
		require.NoError(t, h.history.SaveCalibration(context.Background(), &o))
	}

	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantLabels []string
	}{
		{"Default", "", http.StatusOK, []string{"perfect", "good", "poor"}},
		{"Limit", "?limit=1", http.StatusOK, []string{"perfect"}},
		{"LimitAboveMax", "?limit=10000", http.StatusOK, []string{"perfect", "good", "poor"}},
		{"NotANumber", "?limit=abc", http.StatusBadRequest, nil},
		{"Zero", "?limit=0", http.StatusBadRequest, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			h.HandleHistory(w, httptest.NewRequest("GET", "/api/calibration/history"+tt.query, http.NoBody))
			require.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus != http.StatusOK {
				return
			}

			var runs []calibration.Outcome
			require.NoError(t, json.NewDecoder(w.Body).Decode(&runs))
			labels := make([]string, len(runs))
			for i, r := range runs {
				labels[i] = r.Label
			}
			assert.Equal(t, tt.wantLabels, labels)
		})
	}
}

func TestCalibrationHandler_HistoryWithoutStore(t *testing.T) {
	h := NewCalibrationHandler(nil, nil, fixedGrid())
	w := httptest.NewRecorder()
	h.HandleHistory(w, httptest.NewRequest("GET", "/api/calibration/history", http.NoBody))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())
}
