/*
Package api
File: hub.go
Description:
    The WebSocket Hub pushes session updates to connected browsers.

    Every committed session snapshot is published to the Hub; the Hub
    forwards it to the clients watching that session. Publishing never
    blocks the simulation: when the Hub is backed up the update is dropped
    and the client catches up on the next one.

    Architecture:
    - Hub: owns the client registry, run as a goroutine.
    - Client: one browser connection watching one session.
    - ServeWs: upgrades the HTTP request and registers the client.
*/

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/everforgeworks/quarantine-life/internal/game"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// Message is the JSON envelope for everything sent over the socket.
type Message struct {
	Type    string `json:"type"`    // e.g. "session_update"
	Payload any    `json:"payload"` // A game.Snapshot for session updates
	Sender  string `json:"sender"`
}

type outbound struct {
	sessionID string
	data      []byte
}

// Client is a single browser tab watching one session.
type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	sessionID string
	send      chan []byte
}

// Hub maintains the set of active clients and fans out session updates.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan outbound
	register   chan *Client
	unregister chan *Client
	done       chan struct{} // closed when Run returns
	logger     *log.Logger
}

func NewHub(logger *log.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan outbound, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

func encodeUpdate(snap game.Snapshot) ([]byte, error) {
	return json.Marshal(Message{Type: "session_update", Payload: snap, Sender: "system"})
}

// Publish implements game.Publisher.
func (h *Hub) Publish(snap game.Snapshot) {
	data, err := encodeUpdate(snap)
	if err != nil {
		h.logger.Error("encode session update", "session", snap.ID, "err", err)
		return
	}
	select {
	case h.broadcast <- outbound{sessionID: snap.ID, data: data}:
	default:
		h.logger.Debug("hub busy, update dropped", "session", snap.ID)
	}
}

// Run is the hub event loop: `go hub.Run(ctx)`.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			return

		case c := <-h.register:
			h.clients[c] = true
			h.logger.Debug("ws client registered", "session", c.sessionID)

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}

		case msg := <-h.broadcast:
			for c := range h.clients {
				if c.sessionID != msg.sessionID {
					continue
				}
				select {
				case c.send <- msg.data:
				default:
					// Slow consumer; drop it rather than stall everyone.
					close(c.send)
					delete(h.clients, c)
				}
			}
		}
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ServeWs upgrades the connection and subscribes it to one session. The
// current snapshot is sent immediately so the client never starts blank.
func ServeWs(hub *Hub, initial game.Snapshot, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.logger.Warn("ws upgrade failed", "err", err)
		return
	}

	client := &Client{hub: hub, conn: conn, sessionID: initial.ID, send: make(chan []byte, 32)}
	if data, err := encodeUpdate(initial); err == nil {
		client.send <- data
	}
	select {
	case hub.register <- client:
	case <-hub.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// readPump only exists to process control frames and notice disconnects.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("ws read", "session", c.sessionID, "err", err)
			}
			return
		}
	}
}

// writePump drains c.send to the socket and keeps the connection alive.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
