package mock

import (
	"sync"

	"github.com/gorilla/websocket"
)

// panelConn is one connected panel. All writes go through send so responses
// and events stay ordered.
type panelConn struct {
	conn *websocket.Conn

	mu        sync.Mutex
	send      chan []byte
	closed    bool
	closeCode int
}

func newPanelConn(conn *websocket.Conn) *panelConn {
	c := &panelConn{
		conn:      conn,
		send:      make(chan []byte, 256),
		closeCode: websocket.CloseGoingAway,
	}
	go c.writePump()
	return c
}

func (c *panelConn) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
	c.mu.Lock()
	code := c.closeCode
	c.mu.Unlock()
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, ""))
}

// enqueue reports false when the client is gone or too slow.
func (c *panelConn) enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *panelConn) close(code int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.closeCode = code
	close(c.send)
}

// hub tracks connected clients and fans events out to them.
type hub struct {
	mu      sync.RWMutex
	clients map[*panelConn]bool
}

func newHub() *hub {
	return &hub{clients: make(map[*panelConn]bool)}
}

func (h *hub) add(conn *websocket.Conn) *panelConn {
	c := newPanelConn(conn)
	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()
	return c
}

func (h *hub) remove(c *panelConn, code int) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
	}
	h.mu.Unlock()
	c.close(code)
}

func (h *hub) snapshot() []*panelConn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	clients := make([]*panelConn, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	return clients
}

// broadcast sends data to every client, dropping clients
// that cannot keep up.
func (h *hub) broadcast(data []byte) {
	for _, c := range h.snapshot() {
		if !c.enqueue(data) {
			h.remove(c, websocket.CloseGoingAway)
		}
	}
}

func (h *hub) count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
