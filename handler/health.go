package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/harshraj78/legal-check-ai/pkg/logger"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// QueueDepther reports how many tasks are waiting for a worker.
type QueueDepther interface {
	QueueDepth() int
}

type HealthHandler struct {
	db    Pinger
	queue QueueDepther
}

func NewHealthHandler(db Pinger, queue QueueDepther) *HealthHandler {
	return &HealthHandler{db: db, queue: queue}
}

// Health checks database connectivity.
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	body := gin.H{
		"status":    "healthy",
		"database":  "ok",
		"timestamp": time.Now().Format(time.RFC3339),
	}
	if h.queue != nil {
		body["queue_depth"] = h.queue.QueueDepth()
	}

	if err := h.db.Ping(ctx); err != nil {
		logger.Warn(c.Request.Context(), "health check failed", "error", err)
		body["status"] = "unhealthy"
		body["database"] = err.Error()
		c.JSON(http.StatusServiceUnavailable, body)
		return
	}
	c.JSON(http.StatusOK, body)
}
