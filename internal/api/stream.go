package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"gazelaundry/pkg/stats"
)

const (
	socketBufferSize = 1024
	broadcastBuffer  = 64
)

var upgrader = &websocket.Upgrader{
	ReadBufferSize:  socketBufferSize,
	WriteBufferSize: socketBufferSize,
	CheckOrigin: func(r *http.Request) bool {
		return true // local tool, the UI may be served from a dev server
	},
}

type streamClient struct {
	id   uuid.UUID
	conn *websocket.Conn
	send chan []byte
}

// StreamHub fans JSON messages out to websocket clients. A client whose
// buffer is full is disconnected rather than slowing down the others.
type StreamHub struct {
	bufferSize int
	stats      *stats.Tracker

	register   chan *streamClient
	unregister chan *streamClient
	broadcast  chan []byte
	done       chan struct{}

	clients map[*streamClient]struct{} // owned by Run
	count   atomic.Int64
}

// NewStreamHub creates a hub with bufferSize messages per client.
func NewStreamHub(bufferSize int, tr *stats.Tracker) *StreamHub {
	if bufferSize < 1 {
		bufferSize = 1
	}
	return &StreamHub{
		bufferSize: bufferSize,
		stats:      tr,
		register:   make(chan *streamClient),
		unregister: make(chan *streamClient),
		broadcast:  make(chan []byte, broadcastBuffer),
		done:       make(chan struct{}),
		clients:    make(map[*streamClient]struct{}),
	}
}

// Run serves the hub until ctx is cancelled, then disconnects all clients.
func (h *StreamHub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				h.drop(c)
			}
			return
		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.count.Add(1)
			slog.Debug("Stream client joined", "client", c.id, "clients", len(h.clients))
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				h.drop(c)
				slog.Debug("Stream client left", "client", c.id, "clients", len(h.clients))
			}
		case msg := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- msg:
					h.track((*stats.Tracker).TrackAccepted)
				default:
					slog.Warn("Dropping slow stream client", "client", c.id)
					h.track((*stats.Tracker).TrackDropped)
					h.drop(c)
				}
			}
		}
	}
}

func (h *StreamHub) drop(c *streamClient) {
	delete(h.clients, c)
	h.count.Add(-1)
	close(c.send)
}

// Clients returns the number of connected clients.
func (h *StreamHub) Clients() int {
	return int(h.count.Load())
}

// Broadcast queues v for every client. It never blocks; when the hub is
// backed up the message is dropped.
func (h *StreamHub) Broadcast(v any) {
	if h.Clients() == 0 {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("Failed to encode stream message", "error", err)
		return
	}
	h.track((*stats.Tracker).TrackReceived)
	select {
	case h.broadcast <- data:
	default:
		h.track((*stats.Tracker).TrackDropped)
	}
}

func (h *StreamHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("Stream upgrade failed", "error", err)
		return
	}
	c := &streamClient{
		id:   uuid.New(),
		conn: conn,
		send: make(chan []byte, h.bufferSize),
	}

	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go c.write()
	c.read()

	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// write drains the send buffer until the hub closes it.
func (c *streamClient) write() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// read discards client input and returns once the connection is gone.
func (c *streamClient) read() {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *StreamHub) track(fn func(*stats.Tracker, string)) {
	if h.stats != nil {
		fn(h.stats, stats.StreamWebSocket)
	}
}
