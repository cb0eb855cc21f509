package jobs

import (
	"context"
	"sync"

	"github.com/perfdesk/perfdesk/internal/domain"
	"github.com/perfdesk/perfdesk/internal/logger"
	"github.com/perfdesk/perfdesk/internal/repository"
)

// PollStats summarizes one batch-poll cycle.
type PollStats struct {
	Processed  int `json:"processed"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
	Skipped    int `json:"skipped"`
}

// Poller is the batch-poll trigger: fetch all pending jobs and dispatch them
// with a small bounded worker pool. It keeps no state between cycles, so it
// is safe to run from a freshly restarted process — recovery is simply
// re-reading pending jobs. The heartbeat is written every cycle regardless of
// how many jobs were found.
type Poller struct {
	jobs       *repository.JobRepository
	heartbeats *repository.HeartbeatRepository
	dispatcher *Dispatcher
	workers    int
	logger     *logger.Logger
}

// NewPoller creates a poller. workers <= 0 defaults to 1 (sequential
// dispatch); the store's compare-and-set claim makes larger pools safe
// without any external lock.
func NewPoller(jobs *repository.JobRepository, heartbeats *repository.HeartbeatRepository, dispatcher *Dispatcher, workers int, log *logger.Logger) *Poller {
	if workers <= 0 {
		workers = 1
	}
	return &Poller{
		jobs:       jobs,
		heartbeats: heartbeats,
		dispatcher: dispatcher,
		workers:    workers,
		logger:     log,
	}
}

// RunOnce executes one poll cycle and returns its stats.
func (p *Poller) RunOnce(ctx context.Context) (*PollStats, error) {
	if err := p.heartbeats.Touch(ctx, domain.HeartbeatKeyPoller); err != nil {
		p.logger.WithError(err).Warn("failed to write poller heartbeat")
	}

	pending, err := p.jobs.ListPending(ctx)
	if err != nil {
		return nil, err
	}

	stats := &PollStats{}
	if len(pending) == 0 {
		return stats, nil
	}

	jobChan := make(chan domain.Job, len(pending))
	for _, job := range pending {
		jobChan <- job
	}
	close(jobChan)

	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobChan {
				outcome, err := p.dispatcher.Dispatch(ctx, &job)
				if err != nil {
					p.logger.WithError(err).
						WithField(logger.FieldJobID, job.ID).
						Error("dispatch error")
				}
				mu.Lock()
				stats.Processed++
				switch outcome {
				case OutcomeCompleted:
					stats.Successful++
				case OutcomeFailed:
					stats.Failed++
				case OutcomeSkipped:
					stats.Skipped++
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	p.logger.WithFields(logger.Fields{
		"processed":  stats.Processed,
		"successful": stats.Successful,
		"failed":     stats.Failed,
		"skipped":    stats.Skipped,
	}).Info("poll cycle finished")

	return stats, nil
}
