package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/perfdesk/perfdesk/internal/domain"
	"gorm.io/gorm"
)

// JobRepository is the sole authority over the job state machine. Every
// transition is a store write; no in-memory state is load-bearing, so a
// freshly restarted process recovers by re-reading pending jobs.
type JobRepository struct {
	db *gorm.DB
}

// NewJobRepository creates a new JobRepository.
func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

// Create inserts a new job in state pending with progress 0 and empty logs.
// The config payload is serialized as-is and never inspected by the engine.
func (r *JobRepository) Create(ctx context.Context, jobType domain.JobType, cfg any) (*domain.Job, error) {
	configJSON, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job config: %w", err)
	}

	job := &domain.Job{
		ID:        uuid.New().String(),
		Type:      jobType,
		Status:    domain.JobStatusPending,
		Progress:  0,
		Logs:      "[]",
		Config:    string(configJSON),
		CreatedAt: time.Now(),
	}
	if err := r.db.WithContext(ctx).Create(job).Error; err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}
	return job, nil
}

// GetByID retrieves a job by its ID.
func (r *JobRepository) GetByID(ctx context.Context, id string) (*domain.Job, error) {
	var job domain.Job
	if err := r.db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	return &job, nil
}

// ListFilter narrows List results. Zero values mean "no filter".
type ListFilter struct {
	Type   domain.JobType
	Status domain.JobStatus
	Limit  int
}

// List returns jobs ordered by creation time descending.
func (r *JobRepository) List(ctx context.Context, filter ListFilter) ([]domain.Job, error) {
	q := r.db.WithContext(ctx).Model(&domain.Job{}).Order("created_at DESC")
	if filter.Type != "" {
		q = q.Where("type = ?", filter.Type)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	var jobs []domain.Job
	if err := q.Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

// ListPending returns all pending jobs, oldest first, for the batch poller.
func (r *JobRepository) ListPending(ctx context.Context) ([]domain.Job, error) {
	var jobs []domain.Job
	err := r.db.WithContext(ctx).
		Where("status = ?", domain.JobStatusPending).
		Order("created_at ASC").
		Find(&jobs).Error
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

// FindActive returns pending and running jobs of the given type, used by the
// creation boundary to deduplicate live work.
func (r *JobRepository) FindActive(ctx context.Context, jobType domain.JobType) ([]domain.Job, error) {
	var jobs []domain.Job
	err := r.db.WithContext(ctx).
		Where("type = ? AND status IN ?", jobType,
			[]domain.JobStatus{domain.JobStatusPending, domain.JobStatusRunning}).
		Order("created_at ASC").
		Find(&jobs).Error
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

// TransitionToRunning claims a pending job with a single-row compare-and-set.
// This is the engine's mutual-exclusion primitive: of two concurrent claims
// exactly one update matches, the other observes ErrInvalidTransition.
func (r *JobRepository) TransitionToRunning(ctx context.Context, id string) error {
	now := time.Now()
	res := r.db.WithContext(ctx).Model(&domain.Job{}).
		Where("id = ? AND status = ?", id, domain.JobStatusPending).
		Updates(map[string]any{
			"status":     domain.JobStatusRunning,
			"started_at": now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return ErrInvalidTransition
	}
	return nil
}

// AppendLog appends one entry to the job's log. Legal only while running;
// any other state returns ErrInvalidTransition, which callers are expected
// to swallow rather than fail the handler over a logging problem.
func (r *JobRepository) AppendLog(ctx context.Context, id, level, message string) error {
	job, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if job.Status != domain.JobStatusRunning {
		return ErrInvalidTransition
	}

	entries := job.ParsedLogs()
	entries = append(entries, domain.JobLogEntry{
		Timestamp: time.Now(),
		Level:     level,
		Message:   message,
	})
	raw, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to marshal job logs: %w", err)
	}

	// Guard on status again so a concurrent cancel cannot resurrect writes.
	return r.db.WithContext(ctx).Model(&domain.Job{}).
		Where("id = ? AND status = ?", id, domain.JobStatusRunning).
		Update("logs", string(raw)).Error
}

// SetProgress updates the 0-100 gauge. Legal only while running; the store
// additionally rejects backwards movement so progress is non-decreasing.
func (r *JobRepository) SetProgress(ctx context.Context, id string, percent int) error {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	res := r.db.WithContext(ctx).Model(&domain.Job{}).
		Where("id = ? AND status = ? AND progress <= ?", id, domain.JobStatusRunning, percent).
		Update("progress", percent)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return ErrInvalidTransition
	}
	return nil
}

// SetStatusMessage updates the short current-step description, last-write-wins.
func (r *JobRepository) SetStatusMessage(ctx context.Context, id, message string) error {
	res := r.db.WithContext(ctx).Model(&domain.Job{}).
		Where("id = ? AND status = ?", id, domain.JobStatusRunning).
		Update("status_message", message)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return ErrInvalidTransition
	}
	return nil
}

// Complete moves a pending or running job to completed and writes the result
// payload. Calling it on an already-terminal job is a no-op, so a crashed
// process retrying its last write never corrupts state.
func (r *JobRepository) Complete(ctx context.Context, id string, result any) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal job result: %w", err)
	}
	return r.terminalWrite(ctx, id, map[string]any{
		"status":       domain.JobStatusCompleted,
		"result":       string(resultJSON),
		"completed_at": time.Now(),
	})
}

// Fail moves a pending or running job to failed and records the error string.
// Idempotent on terminal jobs.
func (r *JobRepository) Fail(ctx context.Context, id, errMsg string) error {
	return r.terminalWrite(ctx, id, map[string]any{
		"status":       domain.JobStatusFailed,
		"error":        errMsg,
		"completed_at": time.Now(),
	})
}

// Cancel moves a pending or running job to cancelled. A running handler is
// not interrupted; it observes the flag at its next cooperative checkpoint.
// Idempotent on terminal jobs.
func (r *JobRepository) Cancel(ctx context.Context, id string) error {
	return r.terminalWrite(ctx, id, map[string]any{
		"status":       domain.JobStatusCancelled,
		"completed_at": time.Now(),
	})
}

// terminalWrite performs a guarded terminal transition. A second terminal
// write on the same job is a silent no-op; a write against a missing job
// returns ErrJobNotFound.
func (r *JobRepository) terminalWrite(ctx context.Context, id string, updates map[string]any) error {
	res := r.db.WithContext(ctx).Model(&domain.Job{}).
		Where("id = ? AND status IN ?", id,
			[]domain.JobStatus{domain.JobStatusPending, domain.JobStatusRunning}).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		job, err := r.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if job.Status.Terminal() {
			return nil
		}
		return ErrInvalidTransition
	}
	return nil
}

// Delete removes a job record. Failed and cancelled jobs delete directly;
// pending and running jobs are cancelled first; completed jobs are kept and
// the call returns ErrInvalidTransition.
func (r *JobRepository) Delete(ctx context.Context, id string) error {
	job, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}

	switch job.Status {
	case domain.JobStatusPending, domain.JobStatusRunning:
		if err := r.Cancel(ctx, id); err != nil {
			return err
		}
	case domain.JobStatusFailed, domain.JobStatusCancelled:
		// deletable as-is
	default:
		return ErrInvalidTransition
	}

	return r.db.WithContext(ctx).
		Where("status IN ?", []domain.JobStatus{domain.JobStatusFailed, domain.JobStatusCancelled}).
		Delete(&domain.Job{}, "id = ?", id).Error
}

// ClearFinished bulk-deletes all failed and cancelled jobs and returns the
// number of rows removed.
func (r *JobRepository) ClearFinished(ctx context.Context) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("status IN ?", []domain.JobStatus{domain.JobStatusFailed, domain.JobStatusCancelled}).
		Delete(&domain.Job{})
	return res.RowsAffected, res.Error
}
