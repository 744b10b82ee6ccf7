// internal/handlers/websocket/websocket_handler.go
package websocket

import (
	"net/http"

	"sessiongate-service/internal/middleware"
	"sessiongate-service/internal/pkg/response"
	ws "sessiongate-service/internal/websocket"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin is enforced by the CORS layer; the upgrade itself carries a
	// verified bearer token.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type WebSocketHandler struct {
	hub    *ws.Hub
	logger *zap.Logger
}

func NewWebSocketHandler(hub *ws.Hub, logger *zap.Logger) *WebSocketHandler {
	return &WebSocketHandler{hub: hub, logger: logger}
}

// Handle upgrades the connection and subscribes it to events for the
// session named in the `session` query parameter (requires auth).
func (h *WebSocketHandler) Handle(c *gin.Context) {
	userID := middleware.MustGetUserID(c)

	sessionToken := c.Query("session")
	if sessionToken == "" {
		response.Error(c, http.StatusBadRequest, "missing session parameter", nil)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := ws.NewClient(h.hub, conn, userID, sessionToken)
	h.hub.Register <- client

	go client.WritePump()
	go client.ReadPump()
}
