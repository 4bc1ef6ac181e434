package email

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Handler serves the mailer's health endpoint
type Handler struct {
	ping   func(ctx context.Context) error
	logger *slog.Logger
}

// NewHandler creates a handler. ping checks the idempotency store backend.
func NewHandler(ping func(ctx context.Context) error, logger *slog.Logger) *Handler {
	return &Handler{
		ping:   ping,
		logger: logger,
	}
}

// HealthCheck handles GET /health
func (h *Handler) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	redisStatus := "connected"
	if err := h.ping(ctx); err != nil {
		redisStatus = "disconnected"
		h.logger.Error("Redis health check failed", "error", err)
	}

	status := "healthy"
	httpStatus := http.StatusOK
	if redisStatus != "connected" {
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, gin.H{
		"status":    status,
		"service":   "mailer",
		"redis":     redisStatus,
		"timestamp": time.Now().UTC(),
	})
}
