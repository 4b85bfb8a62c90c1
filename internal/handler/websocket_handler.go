package handler

import (
	"net/http"

	"github.com/google/uuid"
	gorillaws "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/snapsplit/sync-core/internal/websocket"
)

var upgrader = gorillaws.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin is already enforced by the CORS middleware in front of this
	// handler; the upgrader itself accepts any origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WebSocketHandler upgrades a connection and subscribes it to one bill's
// room. A share code alone is enough to connect: this is the anonymous
// collaborator's only way to receive live updates, so it does not require
// owner authentication. An owner token, if present, is validated so the
// connection can later be correlated back to a user if needed.
type WebSocketHandler struct {
	hub       *websocket.Hub
	validator *websocket.Auth0JWTValidator
}

// NewWebSocketHandler creates a WebSocketHandler.
func NewWebSocketHandler(hub *websocket.Hub, validator *websocket.Auth0JWTValidator) *WebSocketHandler {
	return &WebSocketHandler{hub: hub, validator: validator}
}

// Subscribe handles GET /bills/{id}/ws.
func (h *WebSocketHandler) Subscribe(c echo.Context) error {
	billID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return NewValidationError(c, "invalid bill id", nil)
	}

	if token := c.QueryParam("token"); token != "" && h.validator != nil {
		if _, err := h.validator.ValidateToken(token); err != nil {
			return NewUnauthorizedError(c, "invalid token")
		}
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return NewInternalError(c, "failed to upgrade connection")
	}

	client := websocket.NewClient(conn, billID, h.hub)
	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()

	return nil
}
