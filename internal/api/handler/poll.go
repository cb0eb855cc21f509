package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/perfdesk/perfdesk/internal/api/middleware"
	"github.com/perfdesk/perfdesk/internal/jobs"
)

// PollHandler serves the batch-poll trigger endpoint. Authentication happens
// in the PollSecret middleware; by the time this handler runs the caller is
// trusted.
type PollHandler struct {
	poller *jobs.Poller
}

// NewPollHandler creates a poll handler.
func NewPollHandler(poller *jobs.Poller) *PollHandler {
	return &PollHandler{poller: poller}
}

// Poll handles POST /internal/jobs/poll: one full poll cycle, synchronous,
// returning the cycle's dispatch stats.
func (h *PollHandler) Poll(c *gin.Context) {
	stats, err := h.poller.RunOnce(c.Request.Context())
	if err != nil {
		middleware.GetLogger(c).WithError(err).Error("poll cycle failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "poll cycle failed"})
		return
	}
	c.JSON(http.StatusOK, stats)
}
