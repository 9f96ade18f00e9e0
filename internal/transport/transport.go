// Package transport provides the default network-facing implementation of
// the outbound calls the Host API Surface needs (broadcast, targeted send,
// disconnect), grounded on the teacher's internal/websocket.Hub: a
// register/unregister/broadcast channel triad guarded by a single
// goroutine, generalized here from a connected-dashboard-clients hub to a
// connected-game-clients hub (spec.md §4.6's Transport boundary).
package transport

import (
	"sync"

	"github.com/gorilla/websocket"

	"github.com/beamnet/drivesim-server/internal/logger"
)

// Client is one connected player's outbound socket.
type Client struct {
	PlayerID int
	conn     *websocket.Conn
	send     chan []byte
}

// Hub owns the set of connected clients and serializes broadcast/send
// against register/unregister, mirroring the teacher's Hub loop shape.
type Hub struct {
	mu      sync.RWMutex
	clients map[int]*Client

	register   chan *Client
	unregister chan *Client
}

// NewHub creates an empty Hub and starts its event loop.
func NewHub() *Hub {
	h := &Hub{
		clients:    make(map[int]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c.PlayerID] = c
			h.mu.Unlock()
		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c.PlayerID]; ok {
				delete(h.clients, c.PlayerID)
				close(c.send)
			}
			h.mu.Unlock()
		}
	}
}

// Register adds a newly accepted connection under playerID and starts its
// write pump.
func (h *Hub) Register(playerID int, conn *websocket.Conn) *Client {
	c := &Client{PlayerID: playerID, conn: conn, send: make(chan []byte, 64)}
	h.register <- c
	go c.writePump()
	return c
}

// Unregister closes and removes playerID's connection.
func (h *Hub) Unregister(playerID int) {
	h.mu.RLock()
	c, ok := h.clients[playerID]
	h.mu.RUnlock()
	if ok {
		h.unregister <- c
	}
}

func (c *Client) writePump() {
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
	c.conn.Close()
}

// Broadcast implements hostapi.Transport: send message to every connected
// client.
func (h *Hub) Broadcast(message string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		select {
		case c.send <- []byte(message):
		default:
			logger.Transport().Warn().Int("player_id", c.PlayerID).Msg("send buffer full, dropping broadcast")
		}
	}
}

// SendTo implements hostapi.Transport: send message to one connected
// client, silently dropped if that player isn't connected (a disconnect
// race is not an error the caller needs to see).
func (h *Hub) SendTo(playerID int, message string) {
	h.mu.RLock()
	c, ok := h.clients[playerID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	select {
	case c.send <- []byte(message):
	default:
		logger.Transport().Warn().Int("player_id", playerID).Msg("send buffer full, dropping message")
	}
}

// Disconnect closes playerID's connection, used by DropPlayer. Before
// closing, it unicasts the kick banner ("C:Server:You have been Kicked
// from the server! Reason : <reason>"), appending the reason clause only
// when one was supplied, matching the original's kick-banner text
// verbatim — distinct from SendChatMessage's "C:Server: <message>" chat
// framing.
func (h *Hub) Disconnect(playerID int, reason string) {
	h.mu.RLock()
	c, ok := h.clients[playerID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	banner := "C:Server:You have been Kicked from the server!"
	if reason != "" {
		banner += " Reason : " + reason
	}
	select {
	case c.send <- []byte(banner):
	default:
	}
	h.Unregister(playerID)
}
