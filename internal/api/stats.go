package api

import (
	"encoding/json"
	"net/http"
	"runtime"
	"sync"
	"time"

	"gazelaundry/pkg/stats"
)

type StatsHandler struct {
	tracker *stats.Tracker
	started time.Time
	clients func() int

	mu     sync.Mutex
	maxMem uint64
}

// NewStatsHandler creates the stats endpoint. clients reports the number of
// connected stream clients and may be nil.
func NewStatsHandler(t *stats.Tracker, clients func() int) *StatsHandler {
	if clients == nil {
		clients = func() int { return 0 }
	}
	return &StatsHandler{
		tracker: t,
		started: time.Now(),
		clients: clients,
	}
}

type StreamStatsDTO struct {
	Received int64 `json:"received"`
	Accepted int64 `json:"accepted"`
	Dropped  int64 `json:"dropped"`
	Failures int64 `json:"failures"`
	DropRate int64 `json:"drop_rate"` // percent of received
}

type DiagnosticsDTO struct {
	UptimeSec     int64  `json:"uptime_sec"`
	MemoryMB      uint64 `json:"memory_mb"`
	MemoryMaxMB   uint64 `json:"memory_max_mb"`
	Goroutines    int    `json:"goroutines"`
	StreamClients int    `json:"stream_clients"`
}

type StatsResponse struct {
	Diagnostics DiagnosticsDTO            `json:"diagnostics"`
	Streams     map[string]StreamStatsDTO `json:"streams"`
}

func (h *StatsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	snapshot := h.tracker.Snapshot()

	resp := StatsResponse{
		Diagnostics: h.gatherDiagnostics(),
		Streams:     make(map[string]StreamStatsDTO, len(snapshot)),
	}
	for name, s := range snapshot {
		dropRate := int64(0)
		if s.Received > 0 {
			dropRate = (s.Dropped * 100) / s.Received
		}
		resp.Streams[name] = StreamStatsDTO{
			Received: s.Received,
			Accepted: s.Accepted,
			Dropped:  s.Dropped,
			Failures: s.Failures,
			DropRate: dropRate,
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (h *StatsHandler) gatherDiagnostics() DiagnosticsDTO {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	h.mu.Lock()
	if m.Alloc > h.maxMem {
		h.maxMem = m.Alloc
	}
	maxMem := h.maxMem
	h.mu.Unlock()

	return DiagnosticsDTO{
		UptimeSec:     int64(time.Since(h.started).Seconds()),
		MemoryMB:      bToMb(m.Alloc),
		MemoryMaxMB:   bToMb(maxMem),
		Goroutines:    runtime.NumGoroutine(),
		StreamClients: h.clients(),
	}
}

func bToMb(b uint64) uint64 {
	return b / 1024 / 1024
}
