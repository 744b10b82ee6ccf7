// internal/handlers/session/session_handler.go
package session

import (
	"errors"
	"net/http"

	"sessiongate-service/internal/domain/session"
	"sessiongate-service/internal/middleware"
	xerrors "sessiongate-service/internal/pkg/errors"
	ratelimit "sessiongate-service/internal/pkg/session"
	"sessiongate-service/internal/pkg/response"
	sessionUsecase "sessiongate-service/internal/service/session"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type SessionHandler struct {
	sessionService *sessionUsecase.Service
	rateLimiter    *ratelimit.RateLimiter
	logger         *zap.Logger
}

func NewSessionHandler(sessionService *sessionUsecase.Service, rateLimiter *ratelimit.RateLimiter, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{
		sessionService: sessionService,
		rateLimiter:    rateLimiter,
		logger:         logger,
	}
}

// Create establishes a session for the authenticated user (requires auth).
// For enforced accounts this ends every other session of the account.
func (h *SessionHandler) Create(c *gin.Context) {
	userID := middleware.MustGetUserID(c)
	roles := middleware.GetRoles(c)

	var req session.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	// The header is more trustworthy than anything the page script sends.
	if ua := c.GetHeader("User-Agent"); ua != "" {
		req.Signals.UserAgent = ua
	}

	allowed, err := h.rateLimiter.CheckSessionCreate(c.Request.Context(), c.ClientIP(), userID)
	if err != nil {
		// Redis being down must not block logins.
		h.logger.Warn("rate limit check failed", zap.Error(err))
	} else if !allowed {
		response.Error(c, http.StatusTooManyRequests, "too many login attempts", xerrors.ErrRateLimited)
		return
	}

	result, err := h.sessionService.Login(c.Request.Context(), userID, roles, req.Signals)
	if err != nil {
		h.logger.Error("session create failed",
			zap.Int64("user_id", userID),
			zap.Error(err),
		)
		response.Error(c, http.StatusServiceUnavailable, "session create failed", err)
		return
	}

	response.Success(c, http.StatusCreated, "session established", result)
}

// Status answers the liveness poll (public: possession of the opaque
// token is the credential).
func (h *SessionHandler) Status(c *gin.Context) {
	token := c.Param("token")

	status, err := h.sessionService.Status(c.Request.Context(), token)
	if errors.Is(err, xerrors.ErrNotFound) {
		response.NotFound(c, "unknown session")
		return
	}
	if err != nil {
		h.logger.Error("status read failed", zap.Error(err))
		response.Error(c, http.StatusInternalServerError, "status read failed", err)
		return
	}

	response.Success(c, http.StatusOK, "session status", status)
}

// End terminates a session as an explicit logout (requires auth).
func (h *SessionHandler) End(c *gin.Context) {
	token := c.Param("token")

	err := h.sessionService.End(c.Request.Context(), token, session.EndReasonLogout)
	if errors.Is(err, xerrors.ErrNotFound) {
		response.NotFound(c, "unknown session")
		return
	}
	if err != nil {
		h.logger.Error("logout failed", zap.Error(err))
		response.Error(c, http.StatusInternalServerError, "logout failed", err)
		return
	}

	response.Success(c, http.StatusOK, "session ended", nil)
}

// Close receives the shutdown beacon. It always answers 202: the sender
// is a page in the middle of unloading and nobody reads the reply.
func (h *SessionHandler) Close(c *gin.Context) {
	token := c.Param("token")

	// The beacon authenticates by token possession alone, so it may only
	// record the one reason it exists for. Anything else needs the
	// authenticated endpoints.
	if err := h.sessionService.End(c.Request.Context(), token, session.EndReasonClosed); err != nil && !errors.Is(err, xerrors.ErrNotFound) {
		h.logger.Warn("close report failed", zap.Error(err))
	}

	c.Status(http.StatusAccepted)
}

// EndOthers logs the caller out everywhere except the session named in
// the `keep` query parameter (requires auth).
func (h *SessionHandler) EndOthers(c *gin.Context) {
	userID := middleware.MustGetUserID(c)
	keep := c.Query("keep")
	if keep == "" {
		response.Error(c, http.StatusBadRequest, "missing keep parameter", nil)
		return
	}

	ended, err := h.sessionService.EndOthers(c.Request.Context(), userID, keep)
	if err != nil {
		h.logger.Error("logout others failed",
			zap.Int64("user_id", userID),
			zap.Error(err),
		)
		response.Error(c, http.StatusInternalServerError, "logout others failed", err)
		return
	}

	response.Success(c, http.StatusOK, "other sessions ended", gin.H{"ended": ended})
}

// List returns the caller's active sessions (requires auth).
func (h *SessionHandler) List(c *gin.Context) {
	userID := middleware.MustGetUserID(c)

	sessions, err := h.sessionService.ActiveSessions(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("session list failed",
			zap.Int64("user_id", userID),
			zap.Error(err),
		)
		response.Error(c, http.StatusInternalServerError, "session list failed", err)
		return
	}

	response.Success(c, http.StatusOK, "active sessions", sessions)
}
