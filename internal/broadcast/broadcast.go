// Package broadcast implements the WebSocket activity feed: every
// completed HTTP request is published as a JSON event to any subscriber
// connected to the feed.
package broadcast

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/maxmcd/do-s3/internal/metrics"
)

// Event is one published activity record.
type Event struct {
	Method     string    `json:"method"`
	Path       string    `json:"path"`
	Status     int       `json:"status"`
	DurationMs int64     `json:"duration_ms"`
	Timestamp  time.Time `json:"timestamp"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Requests arrive from arbitrary S3 clients, not browsers enforcing
	// same-origin policy, so origin checking is not meaningful here.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Broadcaster maintains the set of connected activity-feed subscribers and
// fans every published Event out to all of them, best-effort.
type Broadcaster struct {
	mu   sync.Mutex
	subs map[*websocket.Conn]struct{}
}

// New builds an empty Broadcaster.
func New() *Broadcaster {
	return &Broadcaster{subs: make(map[*websocket.Conn]struct{})}
}

// ServeHTTP upgrades the connection and holds it open as a subscriber
// until the client disconnects or a write fails.
func (b *Broadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("broadcast: upgrade failed", "error", err)
		return
	}

	b.mu.Lock()
	b.subs[conn] = struct{}{}
	metrics.BroadcastSubscribers.Set(float64(len(b.subs)))
	b.mu.Unlock()

	defer b.remove(conn)

	// Drain and discard anything the client sends; the feed is one-way.
	// The read loop's only job is to detect disconnection.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (b *Broadcaster) remove(conn *websocket.Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[conn]; ok {
		delete(b.subs, conn)
		conn.Close()
		metrics.BroadcastSubscribers.Set(float64(len(b.subs)))
	}
}

// Publish sends event to every connected subscriber. A subscriber whose
// write fails is dropped. Publishing never blocks the caller on a slow or
// dead subscriber beyond a short per-write deadline, and never returns an
// error: broadcast failures must not fail the originating request.
func (b *Broadcaster) Publish(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	b.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(b.subs))
	for c := range b.subs {
		conns = append(conns, c)
	}
	b.mu.Unlock()

	if len(conns) == 0 {
		return
	}

	var failed []*websocket.Conn
	for _, c := range conns {
		c.SetWriteDeadline(time.Now().Add(2 * time.Second))
		if err := c.WriteMessage(websocket.TextMessage, data); err != nil {
			failed = append(failed, c)
			continue
		}
		metrics.BroadcastEventsTotal.Inc()
	}

	for _, c := range failed {
		b.remove(c)
	}
}

// IsUpgradeRequest reports whether r is a WebSocket upgrade request: it
// carries both "Connection: Upgrade" and "Upgrade: websocket" headers.
func IsUpgradeRequest(r *http.Request) bool {
	return websocket.IsWebSocketUpgrade(r)
}
