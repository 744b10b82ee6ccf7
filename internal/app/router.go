// internal/app/router.go
package app

import (
	deviceHandler "sessiongate-service/internal/handlers/device"
	sessionHandler "sessiongate-service/internal/handlers/session"
	wsHandler "sessiongate-service/internal/handlers/websocket"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Handlers struct {
	SessionHandler *sessionHandler.SessionHandler
	DeviceHandler  *deviceHandler.DeviceHandler
	WSHandler      *wsHandler.WebSocketHandler
	Auth           gin.HandlerFunc
}

func SetupRouter(r *gin.Engine, logger *zap.Logger, h *Handlers) {
	api := r.Group("/api/v1")

	// ==================== Health Check ====================
	api.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok", "version": "1.0.0"})
	})

	// ==================== WebSocket ====================
	r.GET("/ws", h.Auth, h.WSHandler.Handle)

	// ==================== Sessions ====================
	sessions := api.Group("/sessions")
	{
		// The poll and the shutdown beacon authenticate by token
		// possession alone: the beacon fires while the page unloads and
		// cannot attach headers.
		sessions.GET("/:token", h.SessionHandler.Status)
		sessions.POST("/:token/close", h.SessionHandler.Close)

		sessionsAuth := sessions.Group("")
		sessionsAuth.Use(h.Auth)
		{
			sessionsAuth.POST("", h.SessionHandler.Create)
			sessionsAuth.GET("", h.SessionHandler.List)
			sessionsAuth.DELETE("/:token", h.SessionHandler.End)
			sessionsAuth.POST("/logout-others", h.SessionHandler.EndOthers)
		}
	}

	// ==================== Devices ====================
	devices := api.Group("/devices")
	devices.Use(h.Auth)
	{
		devices.GET("", h.DeviceHandler.List)
	}
}
