package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"Go2FlowLabel/internal/logger"
	"Go2FlowLabel/internal/model"

	"github.com/gorilla/websocket"
)

const (
	clientBuffer = 256
	writeTimeout = 10 * time.Second
	pingInterval = 30 * time.Second
)

// RecordView is the JSON form of a record on the live feed.
type RecordView struct {
	Topology   string    `json:"topology"`
	Timestamp  time.Time `json:"timestamp"`
	FlowID     string    `json:"flow_id"`
	PacketRate float64   `json:"packet_rate"`
	ByteRate   float64   `json:"byte_rate"`
	Packets    uint64    `json:"packet_count"`
	Bytes      uint64    `json:"byte_count"`
	Label      uint8     `json:"label"`
	Rule       int       `json:"rule"`
	Terminal   bool      `json:"terminal"`
}

func recordView(r *model.LabeledRecord) RecordView {
	return RecordView{
		Topology:   r.Topology,
		Timestamp:  r.Snapshot.Timestamp,
		FlowID:     r.Identity.Key(),
		PacketRate: r.Features.PacketRate,
		ByteRate:   r.Features.ByteRate,
		Packets:    r.Snapshot.PacketCount,
		Bytes:      r.Snapshot.ByteCount,
		Label:      r.Label,
		Rule:       r.Rule,
		Terminal:   r.Terminal,
	}
}

// Feed pushes every emitted record to websocket clients. It implements stream.Tap;
// slow clients lose messages instead of stalling the collector.
type Feed struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[chan []byte]struct{}
	dropped uint64
}

// NewFeed creates a feed with no clients.
func NewFeed() *Feed {
	return &Feed{
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		clients:  make(map[chan []byte]struct{}),
	}
}

// Clients returns the number of connected clients.
func (f *Feed) Clients() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clients)
}

// Publish encodes the batch and queues it for every client.
func (f *Feed) Publish(records []model.LabeledRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.clients) == 0 {
		return
	}
	for i := range records {
		msg, err := json.Marshal(recordView(&records[i]))
		if err != nil {
			continue
		}
		for ch := range f.clients {
			select {
			case ch <- msg:
			default:
				f.dropped++
				if f.dropped%1000 == 1 {
					logger.APILog.Warnf("Live feed client too slow, dropped %d messages", f.dropped)
				}
			}
		}
	}
}

// ServeHTTP upgrades the connection and streams records until the client leaves.
func (f *Feed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.APILog.Warnf("Websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ch := make(chan []byte, clientBuffer)
	f.mu.Lock()
	f.clients[ch] = struct{}{}
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		delete(f.clients, ch)
		f.mu.Unlock()
	}()

	// The read loop only notices the client going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case msg := <-ch:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-gone:
			return
		}
	}
}
