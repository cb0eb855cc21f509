package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/perfdesk/perfdesk/internal/domain"
	"github.com/perfdesk/perfdesk/internal/logger"
	"github.com/perfdesk/perfdesk/internal/repository"
)

// Handler performs a job's actual work. It receives the job's opaque config
// via the job record and reports progress through the bound recorder. A nil
// error with a result payload completes the job; a non-nil error fails it.
type Handler interface {
	Run(ctx context.Context, job *domain.Job, rec *Recorder) (result any, err error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, job *domain.Job, rec *Recorder) (any, error)

// Run executes the function.
func (f HandlerFunc) Run(ctx context.Context, job *domain.Job, rec *Recorder) (any, error) {
	return f(ctx, job, rec)
}

// Outcome classifies a dispatch attempt for trigger-layer accounting.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	// OutcomeSkipped means another dispatcher already claimed the job, or it
	// was no longer pending.
	OutcomeSkipped Outcome = "skipped"
)

// Dispatcher resolves a job's type to its registered handler and converts
// handler outcomes into terminal job states. Handler errors and panics are
// absorbed into the job record; they never propagate to the caller.
type Dispatcher struct {
	jobs     *repository.JobRepository
	handlers map[domain.JobType]Handler
	logger   *logger.Logger
}

// NewDispatcher creates a dispatcher with an empty handler registry.
func NewDispatcher(jobs *repository.JobRepository, log *logger.Logger) *Dispatcher {
	return &Dispatcher{
		jobs:     jobs,
		handlers: make(map[domain.JobType]Handler),
		logger:   log,
	}
}

// Register binds a handler to a job type.
func (d *Dispatcher) Register(jobType domain.JobType, handler Handler) {
	if jobType == "" || handler == nil {
		return
	}
	d.handlers[jobType] = handler
}

// Dispatch runs one job to a terminal state. The pending->running
// compare-and-set in the store is the concurrency guard: when two dispatchers
// race on the same job, the loser returns OutcomeSkipped without invoking the
// handler.
func (d *Dispatcher) Dispatch(ctx context.Context, job *domain.Job) (Outcome, error) {
	log := d.logger.WithFields(logger.Fields{
		logger.FieldJobID:   job.ID,
		logger.FieldJobType: string(job.Type),
	})

	handler, ok := d.handlers[job.Type]
	if !ok {
		log.Error("no handler registered for job type")
		if err := d.jobs.Fail(ctx, job.ID, fmt.Sprintf("unknown job type: %s", job.Type)); err != nil {
			return OutcomeFailed, err
		}
		return OutcomeFailed, nil
	}

	if err := d.jobs.TransitionToRunning(ctx, job.ID); err != nil {
		if errors.Is(err, repository.ErrInvalidTransition) {
			log.Debug("job already claimed, skipping")
			return OutcomeSkipped, nil
		}
		return OutcomeSkipped, err
	}

	log.Info("job started")
	rec := NewRecorder(d.jobs, job.ID, d.logger)

	result, err := d.run(ctx, handler, job, rec)
	if err != nil {
		log.WithError(err).Error("job failed")
		if ferr := d.jobs.Fail(ctx, job.ID, err.Error()); ferr != nil {
			return OutcomeFailed, ferr
		}
		return OutcomeFailed, nil
	}

	if cerr := d.jobs.Complete(ctx, job.ID, result); cerr != nil {
		return OutcomeFailed, cerr
	}
	log.Info("job completed")
	return OutcomeCompleted, nil
}

// DispatchByID re-dispatches a specific job, used for operator-triggered
// retries. The same pending-only claim guard applies.
func (d *Dispatcher) DispatchByID(ctx context.Context, id string) (Outcome, error) {
	job, err := d.jobs.GetByID(ctx, id)
	if err != nil {
		return OutcomeSkipped, err
	}
	return d.Dispatch(ctx, job)
}

// run invokes the handler with panic containment: a single poorly-behaved
// job must not take down the worker process.
func (d *Dispatcher) run(ctx context.Context, handler Handler, job *domain.Job, rec *Recorder) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler.Run(ctx, job, rec)
}
