package server

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/net/websocket"
)

const clientSendBuffer = 16

// Hub fans snapshot messages out to websocket clients.
type Hub struct {
	logger  *slog.Logger
	mu      sync.Mutex
	clients map[string]*wsClient
}

type wsClient struct {
	id     string
	conn   *websocket.Conn
	send   chan []byte
	closed bool
}

func newHub(logger *slog.Logger) *Hub {
	return &Hub{logger: logger, clients: make(map[string]*wsClient)}
}

// Len reports the number of connected clients.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) handler(welcome func(clientID string) [][]byte) http.Handler {
	return websocket.Handler(func(conn *websocket.Conn) {
		h.serve(conn, welcome)
	})
}

func (h *Hub) serve(conn *websocket.Conn, welcome func(string) [][]byte) {
	c := &wsClient{id: uuid.NewString(), conn: conn, send: make(chan []byte, clientSendBuffer)}
	h.mu.Lock()
	for _, msg := range welcome(c.id) {
		c.send <- msg
	}
	h.clients[c.id] = c
	total := len(h.clients)
	h.mu.Unlock()
	h.logger.Info("client connected", "client_id", c.id, "clients", total)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range c.send {
			if err := websocket.Message.Send(conn, string(msg)); err != nil {
				h.logger.Debug("client write failed", "client_id", c.id, "err", err)
				_ = conn.Close()
				return
			}
		}
	}()

	// Clients only need to read; anything they send apart from ping is ignored.
	for {
		var in string
		if err := websocket.Message.Receive(conn, &in); err != nil {
			break
		}
		if strings.EqualFold(strings.TrimSpace(in), "ping") {
			h.trySend(c, []byte(`{"type":"pong"}`))
		}
	}
	h.remove(c)
	<-done
	_ = conn.Close()
	h.logger.Info("client disconnected", "client_id", c.id, "clients", h.Len())
}

// broadcast queues msg for every client. Clients whose buffer is full are
// dropped.
func (h *Hub) broadcast(msg []byte) {
	h.mu.Lock()
	var slow []*wsClient
	for _, c := range h.clients {
		select {
		case c.send <- msg:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.Unlock()
	for _, c := range slow {
		h.logger.Warn("dropping slow client", "client_id", c.id)
		h.remove(c)
		_ = c.conn.Close()
	}
}

func (h *Hub) trySend(c *wsClient, msg []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

func (h *Hub) remove(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	delete(h.clients, c.id)
	close(c.send)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	clients := make([]*wsClient, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()
	for _, c := range clients {
		_ = c.conn.Close()
	}
}
