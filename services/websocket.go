package services

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/solarboard/solarboard/database"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 64 * 1024
)

// Client represents a connected WebSocket client
type Client struct {
	Hub   *Hub
	Conn  *websocket.Conn
	Send  chan []byte
	Email string // User identifier
	// Handles are the identifiers other users may @mention this user by.
	Handles []string

	// board is the board the client follows; owned by the hub goroutine.
	board string
}

// WebSocketMessage is the standard message format for WebSocket communication
type WebSocketMessage struct {
	Type string `json:"type"`
	Data any    `json:"data"`
	User string `json:"user,omitempty"`
}

type subscribeRequest struct {
	BoardID string `json:"boardId"`
}

type subscription struct {
	client  *Client
	boardID string
}

type envelope struct {
	payload []byte
	exclude string
	// boardID restricts delivery to followers of a board.
	boardID string
	// recipient restricts delivery to clients with that handle.
	recipient string
	// target restricts delivery to a single client.
	target *Client
}

// ReadPump pumps messages from the WebSocket connection to the hub
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Warn("websocket read failed", "user", c.Email, "err", err)
			}
			break
		}

		var in struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(message, &in); err != nil {
			slog.Debug("invalid websocket message", "user", c.Email, "err", err)
			continue
		}

		switch in.Type {
		case "ping":
			pong, err := json.Marshal(WebSocketMessage{
				Type: "pong",
				Data: map[string]string{"timestamp": time.Now().Format(time.RFC3339)},
			})
			if err == nil {
				c.Hub.send(envelope{payload: pong, target: c})
			}
		case "subscribe":
			var req subscribeRequest
			if err := json.Unmarshal(in.Data, &req); err != nil || req.BoardID == "" {
				slog.Debug("invalid subscribe request", "user", c.Email)
				continue
			}
			c.Hub.Subscribe(c, req.BoardID)
		default:
			// Edits go through the REST API; anything else is ignored.
			slog.Debug("ignored websocket message", "user", c.Email, "type", in.Type)
		}
	}
}

// WritePump pumps messages from the hub to the WebSocket connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Add queued messages to the current WebSocket message
			n := len(c.Send)
			for i := 0; i < n; i++ {
				w.Write([]byte("\n"))
				w.Write(<-c.Send)
			}

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Hub maintains the set of active clients and routes board events and
// notifications to them.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan envelope
	register   chan *Client
	unregister chan *Client
	subscribe  chan subscription
	done       chan struct{}
	stopOnce   sync.Once
}

// NewHub creates a new hub instance
func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan envelope, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		subscribe:  make(chan subscription),
		clients:    make(map[*Client]bool),
		done:       make(chan struct{}),
	}
}

// Register adds a client to the hub
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		close(client.Send)
	}
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Subscribe makes client follow boardID, replacing any earlier board.
func (h *Hub) Subscribe(client *Client, boardID string) {
	select {
	case h.subscribe <- subscription{client: client, boardID: boardID}:
	case <-h.done:
	}
}

// Broadcast routes message to connected clients except excludeEmail.
// Board events go to the followers of their board; notifications go to
// the clients of their recipient.
func (h *Hub) Broadcast(message WebSocketMessage, excludeEmail string) {
	message.User = excludeEmail
	payload, err := json.Marshal(message)
	if err != nil {
		slog.Error("failed to marshal websocket message", "type", message.Type, "err", err)
		return
	}
	env := envelope{payload: payload, exclude: excludeEmail}
	switch d := message.Data.(type) {
	case BoardEvent:
		env.boardID = d.BoardID
	case database.Notification:
		env.recipient = d.Recipient
	}
	h.send(env)
}

func (h *Hub) send(env envelope) {
	select {
	case h.broadcast <- env:
	case <-h.done:
	}
}

// Stop terminates Run and disconnects every client. It is safe to call
// more than once.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			for client := range h.clients {
				close(client.Send)
				delete(h.clients, client)
			}
			return
		case client := <-h.register:
			h.clients[client] = true
			slog.Info("websocket client connected", "user", client.Email)
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Send)
				slog.Info("websocket client disconnected", "user", client.Email)
			}
		case sub := <-h.subscribe:
			if _, ok := h.clients[sub.client]; ok {
				sub.client.board = sub.boardID
			}
		case env := <-h.broadcast:
			for client := range h.clients {
				if !env.deliversTo(client) {
					continue
				}
				select {
				case client.Send <- env.payload:
				default:
					slog.Warn("websocket send buffer full, dropping client", "user", client.Email)
					close(client.Send)
					delete(h.clients, client)
				}
			}
		}
	}
}

func (e envelope) deliversTo(c *Client) bool {
	if e.target != nil {
		return c == e.target
	}
	if e.exclude != "" && c.Email == e.exclude {
		return false
	}
	if e.boardID != "" && c.board != e.boardID {
		return false
	}
	if e.recipient != "" {
		for _, h := range c.Handles {
			if h == e.recipient {
				return true
			}
		}
		return false
	}
	return true
}
