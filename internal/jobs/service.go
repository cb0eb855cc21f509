package jobs

import (
	"context"
	"fmt"

	"github.com/perfdesk/perfdesk/internal/domain"
	"github.com/perfdesk/perfdesk/internal/logger"
	"github.com/perfdesk/perfdesk/internal/repository"
)

// ErrUnknownJobType rejects job creation for types outside the closed set.
var ErrUnknownJobType = fmt.Errorf("unknown job type")

// dedupTypes lists the job types where a second concurrent run of the same
// work is wasteful or harmful. Creating one of these while an equivalent job
// is pending or running returns the existing job instead of a new one.
var dedupTypes = map[domain.JobType]bool{
	domain.JobTypeGitHubSync:      true,
	domain.JobTypeJiraSync:        true,
	domain.JobTypeAgentSync:       true,
	domain.JobTypeGoalRecompute:   true,
	domain.JobTypePeriodicInsight: true,
}

// Service is the job engine's front door: it creates jobs with the dedup
// guard and optionally fires an immediate best-effort dispatch so callers do
// not have to wait for the next poll tick.
type Service struct {
	jobs       *repository.JobRepository
	dispatcher *Dispatcher
	logger     *logger.Logger

	// immediate enables best-effort dispatch right after creation.
	immediate bool
}

// NewService creates the trigger-layer service.
func NewService(jobs *repository.JobRepository, dispatcher *Dispatcher, immediate bool, log *logger.Logger) *Service {
	return &Service{
		jobs:       jobs,
		dispatcher: dispatcher,
		logger:     log.WithField(logger.FieldComponent, "jobsvc"),
		immediate:  immediate,
	}
}

// Create persists a new pending job. For dedup-guarded types it first looks
// for an active (pending or running) job with the same dedup key and returns
// that job with created=false instead of queueing a duplicate.
//
// When immediate dispatch is on, the new job is handed to the dispatcher in a
// background goroutine. That dispatch is best-effort: if it is not picked up
// (process restart, races), the next poll tick runs the job — exactly once
// either way, thanks to the pending-only claim.
func (s *Service) Create(ctx context.Context, jobType domain.JobType, cfg map[string]any) (job *domain.Job, created bool, err error) {
	if !domain.ValidJobType(jobType) {
		return nil, false, fmt.Errorf("%w: %s", ErrUnknownJobType, jobType)
	}

	if dedupTypes[jobType] {
		existing, err := s.findActiveDuplicate(ctx, jobType, cfg)
		if err != nil {
			return nil, false, err
		}
		if existing != nil {
			s.logger.WithFields(logger.Fields{
				logger.FieldJobID:   existing.ID,
				logger.FieldJobType: string(jobType),
			}).Info("returning active duplicate instead of creating job")
			return existing, false, nil
		}
	}

	job, err = s.jobs.Create(ctx, jobType, cfg)
	if err != nil {
		return nil, false, err
	}
	s.logger.WithFields(logger.Fields{
		logger.FieldJobID:   job.ID,
		logger.FieldJobType: string(jobType),
	}).Info("job created")

	if s.immediate {
		go func(id string) {
			// Detached from the request context; the job must outlive it.
			if _, err := s.dispatcher.DispatchByID(context.Background(), id); err != nil {
				s.logger.WithError(err).WithField(logger.FieldJobID, id).
					Warn("immediate dispatch failed, poller will pick the job up")
			}
		}(job.ID)
	}
	return job, true, nil
}

// Dispatch re-triggers a specific job by id, for manual retries from the API.
func (s *Service) Dispatch(ctx context.Context, id string) (Outcome, error) {
	return s.dispatcher.DispatchByID(ctx, id)
}

// findActiveDuplicate returns a pending or running job of the same type whose
// dedup key matches, or nil.
func (s *Service) findActiveDuplicate(ctx context.Context, jobType domain.JobType, cfg map[string]any) (*domain.Job, error) {
	active, err := s.jobs.FindActive(ctx, jobType)
	if err != nil {
		return nil, err
	}
	key := dedupKey(jobType, cfg)
	for i := range active {
		if dedupKey(jobType, active[i].ParsedConfig()) == key {
			return &active[i], nil
		}
	}
	return nil, nil
}

// dedupKey computes the equivalence key for dedup-guarded types. Sync jobs
// dedup per type (one sync of a kind at a time); periodic insights dedup per
// (type, period) so different periods may run concurrently.
func dedupKey(jobType domain.JobType, cfg map[string]any) string {
	if jobType == domain.JobTypePeriodicInsight {
		period, _ := cfg["period"].(string)
		return string(jobType) + ":" + period
	}
	return string(jobType)
}
