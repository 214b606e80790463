// Package monitor fans dispatched light batches out to websocket clients.
//
// Monitoring is gated by an explicit process-wide switch: call Enable during
// startup and Disable during teardown. While disabled, Publish is a no-op,
// so attaching a Monitor to a system costs nothing in production.
package monitor

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/coreman2200/funtimes-lumenbus/internal/light"
)

var enabled atomic.Bool

// Enable turns batch monitoring on process-wide.
func Enable() { enabled.Store(true) }

// Disable turns batch monitoring off process-wide.
func Disable() { enabled.Store(false) }

// Enabled reports the current state of the switch.
func Enabled() bool { return enabled.Load() }

type entry struct {
	Number     int64   `json:"number"`
	Brightness float64 `json:"brightness"`
	FadeMs     int64   `json:"fade_ms"`
}

type frame struct {
	T       int64   `json:"t"`
	Seq     uint64  `json:"seq"`
	Entries []entry `json:"entries"`
}

// Monitor keeps the connected clients and a running batch counter.
type Monitor struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]bool
	seq     uint64
	start   time.Time
}

func New() *Monitor {
	return &Monitor{
		clients: map[*websocket.Conn]bool{},
		start:   time.Now(),
	}
}

// Publish is the System.OnBatch hook: encode the batch and broadcast it.
func (m *Monitor) Publish(batch []light.Update) {
	if !Enabled() {
		return
	}
	entries := make([]entry, len(batch))
	for i, u := range batch {
		entries[i] = entry{Number: u.Light.Number(), Brightness: u.Brightness, FadeMs: u.FadeMs}
	}
	m.mu.Lock()
	m.seq++
	f := frame{T: time.Now().UnixNano(), Seq: m.seq, Entries: entries}
	m.mu.Unlock()

	b, _ := json.Marshal(f)
	m.mu.RLock()
	defer m.mu.RUnlock()
	for c := range m.clients {
		c.SetWriteDeadline(time.Now().Add(200 * time.Millisecond))
		if err := c.WriteMessage(websocket.TextMessage, b); err != nil {
			log.Debug().Err(err).Msg("write batch frame")
		}
	}
}

// HandleBatchesWS upgrades the connection and streams batch frames until the
// client goes away.
func (m *Monitor) HandleBatchesWS(w http.ResponseWriter, r *http.Request) {
	up := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	m.mu.Lock()
	m.clients[conn] = true
	m.mu.Unlock()

	go func() {
		defer func() {
			m.mu.Lock()
			delete(m.clients, conn)
			m.mu.Unlock()
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// HandleHealth reports counters for bring-up and smoke tests.
func (m *Monitor) HandleHealth(w http.ResponseWriter, r *http.Request) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	resp := map[string]any{
		"uptime_s": time.Since(m.start).Seconds(),
		"batches":  m.seq,
		"clients":  len(m.clients),
		"enabled":  Enabled(),
	}
	_ = json.NewEncoder(w).Encode(resp)
}
