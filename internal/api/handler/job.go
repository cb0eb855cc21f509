package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/perfdesk/perfdesk/internal/api/middleware"
	"github.com/perfdesk/perfdesk/internal/domain"
	"github.com/perfdesk/perfdesk/internal/jobs"
	"github.com/perfdesk/perfdesk/internal/repository"
)

// JobHandler serves the job CRUD and trigger endpoints.
type JobHandler struct {
	svc  *jobs.Service
	repo *repository.JobRepository
}

// NewJobHandler creates a job handler.
func NewJobHandler(svc *jobs.Service, repo *repository.JobRepository) *JobHandler {
	return &JobHandler{svc: svc, repo: repo}
}

type createJobRequest struct {
	Type   domain.JobType `json:"type" binding:"required"`
	Config map[string]any `json:"config"`
}

// jobView is the API shape of a job record with the serialized columns
// parsed out.
type jobView struct {
	*domain.Job
	Logs   []domain.JobLogEntry `json:"logs"`
	Config map[string]any       `json:"config,omitempty"`
	Result map[string]any       `json:"result,omitempty"`
}

func viewOf(job *domain.Job) jobView {
	return jobView{
		Job:    job,
		Logs:   job.ParsedLogs(),
		Config: job.ParsedConfig(),
		Result: job.ParsedResult(),
	}
}

// Create handles POST /api/v1/jobs. For dedup-guarded types an equivalent
// active job is returned with 200 instead of creating a duplicate; a new job
// returns 201.
func (h *JobHandler) Create(c *gin.Context) {
	var req createJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	job, created, err := h.svc.Create(c.Request.Context(), req.Type, req.Config)
	if err != nil {
		if errors.Is(err, jobs.ErrUnknownJobType) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		middleware.GetLogger(c).WithError(err).Error("failed to create job")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create job"})
		return
	}

	status := http.StatusCreated
	if !created {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{"job": viewOf(job), "created": created})
}

// List handles GET /api/v1/jobs with optional type, status, and limit filters.
func (h *JobHandler) List(c *gin.Context) {
	filter := repository.ListFilter{
		Type:   domain.JobType(c.Query("type")),
		Status: domain.JobStatus(c.Query("status")),
		Limit:  50,
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		filter.Limit = limit
	}

	list, err := h.repo.List(c.Request.Context(), filter)
	if err != nil {
		middleware.GetLogger(c).WithError(err).Error("failed to list jobs")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list jobs"})
		return
	}

	views := make([]jobView, len(list))
	for i := range list {
		views[i] = viewOf(&list[i])
	}
	c.JSON(http.StatusOK, gin.H{"jobs": views, "count": len(views)})
}

// Get handles GET /api/v1/jobs/:id.
func (h *JobHandler) Get(c *gin.Context) {
	job, err := h.repo.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, repository.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}
		middleware.GetLogger(c).WithError(err).Error("failed to get job")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get job"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"job": viewOf(job)})
}

// Dispatch handles POST /api/v1/jobs/:id/dispatch, the manual by-id trigger.
func (h *JobHandler) Dispatch(c *gin.Context) {
	outcome, err := h.svc.Dispatch(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, repository.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}
		middleware.GetLogger(c).WithError(err).Error("failed to dispatch job")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to dispatch job"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"outcome": outcome})
}

// Cancel handles POST /api/v1/jobs/:id/cancel. Cancelling an already-terminal
// job is a no-op success.
func (h *JobHandler) Cancel(c *gin.Context) {
	err := h.repo.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, repository.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}
		middleware.GetLogger(c).WithError(err).Error("failed to cancel job")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to cancel job"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"cancelled": true})
}

// Delete handles DELETE /api/v1/jobs/:id. Completed jobs are kept as audit
// records and return 409.
func (h *JobHandler) Delete(c *gin.Context) {
	err := h.repo.Delete(c.Request.Context(), c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrJobNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		case errors.Is(err, repository.ErrInvalidTransition):
			c.JSON(http.StatusConflict, gin.H{"error": "completed jobs cannot be deleted"})
		default:
			middleware.GetLogger(c).WithError(err).Error("failed to delete job")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete job"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// ClearFailed handles DELETE /api/v1/jobs/failed, the bulk cleanup of failed
// and cancelled jobs.
func (h *JobHandler) ClearFailed(c *gin.Context) {
	deleted, err := h.repo.ClearFinished(c.Request.Context())
	if err != nil {
		middleware.GetLogger(c).WithError(err).Error("failed to clear jobs")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to clear jobs"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}
