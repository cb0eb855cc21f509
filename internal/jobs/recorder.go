// Package jobs implements the asynchronous job engine: the dispatcher that
// resolves job types to handlers, the per-job log/progress recorder, and the
// trigger layer that drives dispatch.
package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/perfdesk/perfdesk/internal/domain"
	"github.com/perfdesk/perfdesk/internal/logger"
	"github.com/perfdesk/perfdesk/internal/repository"
)

// Log levels for job log entries.
const (
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// Recorder is a handler's write channel back to its job record: append-only
// logs, the 0-100 progress gauge, and the short status message. Every method
// swallows store errors after reporting them to the process logger — a
// logging failure must never crash the handler.
type Recorder struct {
	jobs   *repository.JobRepository
	jobID  string
	logger *logger.Logger
}

// NewRecorder binds a recorder to one job.
func NewRecorder(jobs *repository.JobRepository, jobID string, log *logger.Logger) *Recorder {
	return &Recorder{
		jobs:   jobs,
		jobID:  jobID,
		logger: log.WithField(logger.FieldJobID, jobID),
	}
}

// JobID returns the bound job id.
func (r *Recorder) JobID() string {
	return r.jobID
}

// Log appends one entry to the job's log.
func (r *Recorder) Log(ctx context.Context, level, message string) {
	if err := r.jobs.AppendLog(ctx, r.jobID, level, message); err != nil &&
		!errors.Is(err, repository.ErrInvalidTransition) {
		r.logger.WithError(err).Warn("failed to append job log")
	}
}

// Infof appends a formatted info-level entry.
func (r *Recorder) Infof(ctx context.Context, format string, args ...any) {
	r.Log(ctx, LevelInfo, fmt.Sprintf(format, args...))
}

// Warnf appends a formatted warn-level entry.
func (r *Recorder) Warnf(ctx context.Context, format string, args ...any) {
	r.Log(ctx, LevelWarn, fmt.Sprintf(format, args...))
}

// Errorf appends a formatted error-level entry.
func (r *Recorder) Errorf(ctx context.Context, format string, args ...any) {
	r.Log(ctx, LevelError, fmt.Sprintf(format, args...))
}

// SetProgress updates the progress gauge. The store rejects backwards
// movement, so progress is non-decreasing while the job runs.
func (r *Recorder) SetProgress(ctx context.Context, percent int) {
	if err := r.jobs.SetProgress(ctx, r.jobID, percent); err != nil &&
		!errors.Is(err, repository.ErrInvalidTransition) {
		r.logger.WithError(err).Warn("failed to update job progress")
	}
}

// SetMessage updates the short current-step description, last-write-wins.
func (r *Recorder) SetMessage(ctx context.Context, message string) {
	if err := r.jobs.SetStatusMessage(ctx, r.jobID, message); err != nil &&
		!errors.Is(err, repository.ErrInvalidTransition) {
		r.logger.WithError(err).Warn("failed to update job status message")
	}
}

// Cancelled reports whether an operator has cancelled the job. Handlers with
// long item loops should check this between items; cancellation is
// cooperative, never preemptive.
func (r *Recorder) Cancelled(ctx context.Context) bool {
	job, err := r.jobs.GetByID(ctx, r.jobID)
	if err != nil {
		return false
	}
	return job.Status == domain.JobStatusCancelled
}
