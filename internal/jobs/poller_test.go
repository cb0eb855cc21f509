package jobs

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/perfdesk/perfdesk/internal/domain"
	"github.com/perfdesk/perfdesk/internal/repository"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestStores(t *testing.T) (*repository.JobRepository, *repository.HeartbeatRepository) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "perfdesk.db")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := repository.Migrate(db); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return repository.NewJobRepository(db), repository.NewHeartbeatRepository(db)
}

func TestPollerWritesHeartbeatOnEmptyCycle(t *testing.T) {
	jobRepo, hbRepo := newTestStores(t)
	d := NewDispatcher(jobRepo, testLogger())
	p := NewPoller(jobRepo, hbRepo, d, 2, testLogger())
	ctx := context.Background()

	stats, err := p.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if stats.Processed != 0 {
		t.Errorf("processed = %d, want 0", stats.Processed)
	}

	hb, err := hbRepo.Get(ctx, domain.HeartbeatKeyPoller)
	if err != nil {
		t.Fatalf("heartbeat not written: %v", err)
	}
	if hb.Age(time.Now()) > time.Minute {
		t.Errorf("heartbeat unexpectedly old: %s", hb.BeatenAt)
	}
}

func TestPollerDispatchesAllPending(t *testing.T) {
	jobRepo, hbRepo := newTestStores(t)
	d := NewDispatcher(jobRepo, testLogger())
	ctx := context.Background()

	d.Register(domain.JobTypeGoalRecompute, HandlerFunc(func(ctx context.Context, job *domain.Job, rec *Recorder) (any, error) {
		return nil, nil
	}))
	d.Register(domain.JobTypeJiraSync, HandlerFunc(func(ctx context.Context, job *domain.Job, rec *Recorder) (any, error) {
		return nil, context.DeadlineExceeded
	}))

	_, _ = jobRepo.Create(ctx, domain.JobTypeGoalRecompute, nil) // will complete
	_, _ = jobRepo.Create(ctx, domain.JobTypeJiraSync, nil)      // will fail
	_, _ = jobRepo.Create(ctx, domain.JobTypeGitHubSync, nil)    // unregistered, fails

	p := NewPoller(jobRepo, hbRepo, d, 3, testLogger())
	stats, err := p.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if stats.Processed != 3 {
		t.Errorf("processed = %d, want 3", stats.Processed)
	}
	if stats.Successful != 1 {
		t.Errorf("successful = %d, want 1", stats.Successful)
	}
	if stats.Failed != 2 {
		t.Errorf("failed = %d, want 2", stats.Failed)
	}

	// A second cycle finds nothing pending.
	again, _ := p.RunOnce(ctx)
	if again.Processed != 0 {
		t.Errorf("second cycle processed = %d, want 0", again.Processed)
	}
}

func TestPollerSkipsClaimedJobs(t *testing.T) {
	jobRepo, _ := newTestStores(t)
	d := NewDispatcher(jobRepo, testLogger())
	ctx := context.Background()

	d.Register(domain.JobTypeGoalRecompute, HandlerFunc(func(ctx context.Context, job *domain.Job, rec *Recorder) (any, error) {
		return nil, nil
	}))

	job, _ := jobRepo.Create(ctx, domain.JobTypeGoalRecompute, nil)

	// Another process claims the job between ListPending and Dispatch.
	pending, _ := jobRepo.ListPending(ctx)
	if len(pending) != 1 {
		t.Fatalf("pending = %d, want 1", len(pending))
	}
	if err := jobRepo.TransitionToRunning(ctx, job.ID); err != nil {
		t.Fatalf("external claim failed: %v", err)
	}

	outcome, err := d.Dispatch(ctx, &pending[0])
	if err != nil {
		t.Fatalf("Dispatch returned error: %v", err)
	}
	if outcome != OutcomeSkipped {
		t.Errorf("outcome = %s, want skipped", outcome)
	}
}
