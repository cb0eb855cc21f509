package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/perfdesk/perfdesk/internal/api/middleware"
	"github.com/perfdesk/perfdesk/internal/domain"
	"github.com/perfdesk/perfdesk/internal/repository"
)

// HealthHandler reports poller liveness from the stored heartbeat.
type HealthHandler struct {
	heartbeats *repository.HeartbeatRepository
	// staleAfter is how old the heartbeat may be before the trigger layer is
	// considered dead (poll interval times the stale multiple).
	staleAfter time.Duration
}

// NewHealthHandler creates a health handler.
func NewHealthHandler(heartbeats *repository.HeartbeatRepository, staleAfter time.Duration) *HealthHandler {
	return &HealthHandler{heartbeats: heartbeats, staleAfter: staleAfter}
}

// Health handles GET /health. A missing heartbeat (poller never ran) and a
// stale heartbeat both report unhealthy; the HTTP status stays 200 so
// monitors read the flag, not the code.
func (h *HealthHandler) Health(c *gin.Context) {
	hb, err := h.heartbeats.Get(c.Request.Context(), domain.HeartbeatKeyPoller)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusOK, gin.H{
				"healthy": false,
				"reason":  "no heartbeat recorded",
			})
			return
		}
		middleware.GetLogger(c).WithError(err).Error("failed to read heartbeat")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read heartbeat"})
		return
	}

	age := hb.Age(time.Now())
	c.JSON(http.StatusOK, gin.H{
		"healthy":                 age <= h.staleAfter,
		"last_heartbeat":          hb.BeatenAt,
		"seconds_since_heartbeat": int(age.Seconds()),
	})
}
