package api

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"gazelaundry/pkg/calibration"
	"gazelaundry/pkg/gaze"
)

// CalibrationMessage is sent by the browser.
type CalibrationMessage struct {
	Action string `json:"action"` // shown
	ID     int    `json:"id"`
}

// PointMessage asks the browser to display a target.
type PointMessage struct {
	Type string  `json:"type"` // point
	ID   int     `json:"id"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
}

// StateMessage announces the start or end of a session.
type StateMessage struct {
	Type        string               `json:"type"` // state
	Calibrating bool                 `json:"calibrating"`
	Last        *calibration.Outcome `json:"last,omitempty"`
}

// CalibrationSocket renders calibration targets on one browser client.
// The most recent connection wins. Without a client every target is
// confirmed immediately.
type CalibrationSocket struct {
	mu      sync.Mutex
	conn    *websocket.Conn
	nextID  int
	pending map[int]func()

	writeMu sync.Mutex
}

func NewCalibrationSocket() *CalibrationSocket {
	return &CalibrationSocket{pending: make(map[int]func())}
}

// Show implements calibration.ShowFunc.
func (s *CalibrationSocket) Show(p gaze.Point, done func()) {
	s.mu.Lock()
	conn := s.conn
	if conn == nil {
		s.mu.Unlock()
		done()
		return
	}
	s.nextID++
	id := s.nextID
	s.pending[id] = done
	s.mu.Unlock()

	if err := s.write(conn, PointMessage{Type: "point", ID: id, X: p.X, Y: p.Y}); err != nil {
		slog.Warn("Failed to send calibration target", "error", err)
		s.detach(conn)
	}
}

// SendState notifies the client about a session change.
func (s *CalibrationSocket) SendState(calibrating bool, last *calibration.Outcome) {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return
	}
	if err := s.write(conn, StateMessage{Type: "state", Calibrating: calibrating, Last: last}); err != nil {
		slog.Warn("Failed to send calibration state", "error", err)
		s.detach(conn)
	}
}

// Connected reports whether a client is attached.
func (s *CalibrationSocket) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

func (s *CalibrationSocket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("Calibration socket upgrade failed", "error", err)
		return
	}

	s.mu.Lock()
	old := s.conn
	s.conn = conn
	open := s.pending
	s.pending = make(map[int]func())
	s.mu.Unlock()
	if old != nil {
		slog.Info("Calibration client replaced")
		old.Close()
	}
	for _, done := range open {
		done()
	}
	slog.Info("Calibration client connected", "remote", r.RemoteAddr)

	defer s.detach(conn)
	for {
		var msg CalibrationMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		switch msg.Action {
		case "shown":
			s.confirm(msg.ID)
		default:
			slog.Debug("Unknown calibration action", "action", msg.Action)
		}
	}
}

func (s *CalibrationSocket) confirm(id int) {
	s.mu.Lock()
	done, ok := s.pending[id]
	delete(s.pending, id)
	s.mu.Unlock()
	if ok {
		done()
	}
}

// detach forgets conn if it is still the active client and confirms the
// targets it left open, so a closed browser tab cannot stall a session.
func (s *CalibrationSocket) detach(conn *websocket.Conn) {
	s.mu.Lock()
	if s.conn != conn {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.conn = nil
	open := s.pending
	s.pending = make(map[int]func())
	s.mu.Unlock()

	conn.Close()
	for _, done := range open {
		done()
	}
	slog.Info("Calibration client disconnected", "open_targets", len(open))
}

func (s *CalibrationSocket) write(conn *websocket.Conn, v any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return conn.WriteJSON(v)
}
