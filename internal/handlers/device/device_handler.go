// internal/handlers/device/device_handler.go
package device

import (
	"net/http"

	"sessiongate-service/internal/middleware"
	"sessiongate-service/internal/pkg/response"
	deviceUsecase "sessiongate-service/internal/service/device"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type DeviceHandler struct {
	registry *deviceUsecase.Registry
	logger   *zap.Logger
}

func NewDeviceHandler(registry *deviceUsecase.Registry, logger *zap.Logger) *DeviceHandler {
	return &DeviceHandler{registry: registry, logger: logger}
}

// List returns the caller's device history, most recently seen first
// (requires auth).
func (h *DeviceHandler) List(c *gin.Context) {
	userID := middleware.MustGetUserID(c)

	devices, err := h.registry.ListDevices(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("device list failed",
			zap.Int64("user_id", userID),
			zap.Error(err),
		)
		response.Error(c, http.StatusInternalServerError, "device list failed", err)
		return
	}

	response.Success(c, http.StatusOK, "devices", devices)
}
