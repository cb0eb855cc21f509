// Package api wires the gin router for the job engine's external interfaces.
package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/perfdesk/perfdesk/internal/api/handler"
	"github.com/perfdesk/perfdesk/internal/api/middleware"
	"github.com/perfdesk/perfdesk/internal/jobs"
	"github.com/perfdesk/perfdesk/internal/logger"
	"github.com/perfdesk/perfdesk/internal/repository"
)

// RouterConfig carries the router's non-service knobs.
type RouterConfig struct {
	Mode       string
	CORS       middleware.CORSConfig
	PollSecret string
	// StaleAfter is the heartbeat age past which /health reports unhealthy.
	StaleAfter time.Duration
}

// SetupRouter configures the gin router with all routes.
func SetupRouter(
	cfg RouterConfig,
	jobSvc *jobs.Service,
	poller *jobs.Poller,
	jobRepo *repository.JobRepository,
	heartbeats *repository.HeartbeatRepository,
	log *logger.Logger,
) *gin.Engine {
	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Logger(log))
	r.Use(middleware.CORS(cfg.CORS))

	healthHandler := handler.NewHealthHandler(heartbeats, cfg.StaleAfter)
	jobHandler := handler.NewJobHandler(jobSvc, jobRepo)
	pollHandler := handler.NewPollHandler(poller)

	r.GET("/health", healthHandler.Health)

	v1 := r.Group("/api/v1")
	{
		v1.POST("/jobs", jobHandler.Create)
		v1.GET("/jobs", jobHandler.List)
		v1.DELETE("/jobs/failed", jobHandler.ClearFailed)
		v1.GET("/jobs/:id", jobHandler.Get)
		v1.POST("/jobs/:id/dispatch", jobHandler.Dispatch)
		v1.POST("/jobs/:id/cancel", jobHandler.Cancel)
		v1.DELETE("/jobs/:id", jobHandler.Delete)
	}

	internal := r.Group("/internal")
	internal.Use(middleware.PollSecret(cfg.PollSecret))
	{
		internal.POST("/jobs/poll", pollHandler.Poll)
	}

	return r
}
