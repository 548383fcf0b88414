package api

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 50 * time.Second
)

// Hub tracks one websocket connection per user for call-event pushes. A
// reconnect replaces the previous connection; delivery is best effort, the
// polling path is the source of truth.
type Hub struct {
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[uuid.UUID]*hubConn
}

type hubConn struct {
	ws *websocket.Conn
	mu sync.Mutex // serializes writes; gorilla allows one writer at a time
}

func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Browsers send the app origin; the bearer token is the real gate.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		conns: make(map[uuid.UUID]*hubConn),
	}
}

// Serve upgrades the request and keeps the connection registered until the
// peer goes away.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, userID uuid.UUID) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade for user %s: %v", userID, err)
		return
	}

	conn := &hubConn{ws: ws}

	h.mu.Lock()
	if prev, ok := h.conns[userID]; ok {
		prev.ws.Close()
	}
	h.conns[userID] = conn
	h.mu.Unlock()

	go h.writePings(conn)
	h.readLoop(userID, conn)
}

// Send pushes an event to the user's connection, if any. Returns whether a
// connection received it.
func (h *Hub) Send(userID uuid.UUID, event CallEvent) bool {
	h.mu.Lock()
	conn, ok := h.conns[userID]
	h.mu.Unlock()
	if !ok {
		return false
	}

	conn.mu.Lock()
	defer conn.mu.Unlock()
	conn.ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.ws.WriteJSON(event); err != nil {
		log.Printf("websocket send to user %s: %v", userID, err)
		return false
	}
	return true
}

// Close shuts down every registered connection.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for userID, conn := range h.conns {
		conn.ws.Close()
		delete(h.conns, userID)
	}
}

// readLoop drains incoming frames so pings and close frames are processed.
// Clients never send application data on this socket.
func (h *Hub) readLoop(userID uuid.UUID, conn *hubConn) {
	defer func() {
		h.mu.Lock()
		if h.conns[userID] == conn {
			delete(h.conns, userID)
		}
		h.mu.Unlock()
		conn.ws.Close()
	}()

	conn.ws.SetReadLimit(512)
	conn.ws.SetReadDeadline(time.Now().Add(pongWait))
	conn.ws.SetPongHandler(func(string) error {
		conn.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := conn.ws.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePings(conn *hubConn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for range ticker.C {
		conn.mu.Lock()
		conn.ws.SetWriteDeadline(time.Now().Add(writeWait))
		err := conn.ws.WriteMessage(websocket.PingMessage, nil)
		conn.mu.Unlock()
		if err != nil {
			return
		}
	}
}
