package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/solarboard/solarboard/database"
	"github.com/solarboard/solarboard/services"
)

// WebSocketHandler upgrades authenticated connections and registers them
// with the hub.
type WebSocketHandler struct {
	hub      *services.Hub
	users    UserStore
	upgrader websocket.Upgrader
}

// NewWebSocketHandler accepts upgrades from any origin when
// allowedOrigins is empty or contains "*".
func NewWebSocketHandler(hub *services.Hub, users UserStore, allowedOrigins []string) *WebSocketHandler {
	allowAll := len(allowedOrigins) == 0
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o == "*" {
			allowAll = true
		}
		allowed[o] = true
	}
	return &WebSocketHandler{
		hub:   hub,
		users: users,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return allowAll || origin == "" || allowed[origin]
			},
		},
	}
}

// HandleWebSocket upgrades the HTTP connection to a WebSocket connection
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	claims, err := claimsFrom(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	var name string
	if u, err := h.users.GetUser(r.Context(), claims.Email); err == nil {
		name = u.Name
	} else if !errors.Is(err, database.ErrUserNotFound) {
		writeError(w, r, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("failed to upgrade websocket", "user", claims.Email, "err", err)
		return
	}

	client := &services.Client{
		Hub:     h.hub,
		Conn:    conn,
		Send:    make(chan []byte, 256),
		Email:   claims.Email,
		Handles: services.Handles(claims.Email, name),
	}
	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()
}
