package server

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// safeConn wraps a WebSocket connection with a write mutex so the hub and
// the read loop never interleave writes.
type safeConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	closed  bool
}

func newSafeConn(conn *websocket.Conn) *safeConn {
	return &safeConn{conn: conn}
}

// WriteJSON writes v to the connection. Writes to a closed connection are
// silently dropped.
func (sc *safeConn) WriteJSON(v any) error {
	sc.writeMu.Lock()
	defer sc.writeMu.Unlock()
	if sc.closed {
		return nil
	}
	return sc.conn.WriteJSON(v)
}

func (sc *safeConn) Close() error {
	sc.writeMu.Lock()
	sc.closed = true
	sc.writeMu.Unlock()
	return sc.conn.Close()
}

// Hub fans events out to every connected shell.
type Hub struct {
	mu    sync.Mutex
	conns map[*safeConn]struct{}
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{conns: make(map[*safeConn]struct{})}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The daemon binds locally; the shell may be served from another port.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Add upgrades the request, registers the connection, and blocks reading
// until the peer disconnects. Client frames are discarded.
func (h *Hub) Add(w http.ResponseWriter, r *http.Request) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	sc := newSafeConn(conn)

	h.mu.Lock()
	h.conns[sc] = struct{}{}
	h.mu.Unlock()
	slog.Debug("shell connected", "remote", r.RemoteAddr)

	defer func() {
		h.mu.Lock()
		delete(h.conns, sc)
		h.mu.Unlock()
		sc.Close()
		slog.Debug("shell disconnected", "remote", r.RemoteAddr)
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return nil
		}
	}
}

// Broadcast sends v to every connected shell, dropping connections whose
// writes fail.
func (h *Hub) Broadcast(v any) {
	h.mu.Lock()
	conns := make([]*safeConn, 0, len(h.conns))
	for sc := range h.conns {
		conns = append(conns, sc)
	}
	h.mu.Unlock()

	for _, sc := range conns {
		if err := sc.WriteJSON(v); err != nil {
			slog.Warn("websocket write failed", "error", err)
			h.mu.Lock()
			delete(h.conns, sc)
			h.mu.Unlock()
			sc.Close()
		}
	}
}

// Count returns the number of connected shells.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}
