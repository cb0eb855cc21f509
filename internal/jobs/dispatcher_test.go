package jobs

import (
	"context"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/perfdesk/perfdesk/internal/domain"
	"github.com/perfdesk/perfdesk/internal/logger"
	"github.com/perfdesk/perfdesk/internal/repository"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestRepo(t *testing.T) *repository.JobRepository {
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
	return repository.NewJobRepository(db)
}

func testLogger() *logger.Logger {
	return logger.New(&logger.Config{Level: "error", Output: io.Discard})
}

func TestDispatchUnknownType(t *testing.T) {
	repo := newTestRepo(t)
	d := NewDispatcher(repo, testLogger())
	ctx := context.Background()

	job, _ := repo.Create(ctx, domain.JobTypeGitHubSync, nil)
	outcome, err := d.Dispatch(ctx, job)
	if err != nil {
		t.Fatalf("Dispatch returned error: %v", err)
	}
	if outcome != OutcomeFailed {
		t.Errorf("outcome = %s, want failed", outcome)
	}

	got, _ := repo.GetByID(ctx, job.ID)
	if got.Status != domain.JobStatusFailed {
		t.Errorf("status = %s, want failed", got.Status)
	}
	if !strings.Contains(got.Error, "unknown job type") {
		t.Errorf("error = %q, want unknown job type mention", got.Error)
	}
}

func TestDispatchSuccess(t *testing.T) {
	repo := newTestRepo(t)
	d := NewDispatcher(repo, testLogger())
	ctx := context.Background()

	d.Register(domain.JobTypeGoalRecompute, HandlerFunc(func(ctx context.Context, job *domain.Job, rec *Recorder) (any, error) {
		rec.Infof(ctx, "working")
		rec.SetProgress(ctx, 100)
		return map[string]any{"goals_updated": 1}, nil
	}))

	job, _ := repo.Create(ctx, domain.JobTypeGoalRecompute, nil)
	outcome, err := d.Dispatch(ctx, job)
	if err != nil {
		t.Fatalf("Dispatch returned error: %v", err)
	}
	if outcome != OutcomeCompleted {
		t.Errorf("outcome = %s, want completed", outcome)
	}

	got, _ := repo.GetByID(ctx, job.ID)
	if got.Status != domain.JobStatusCompleted {
		t.Fatalf("status = %s, want completed", got.Status)
	}
	if got.Progress != 100 {
		t.Errorf("progress = %d, want 100", got.Progress)
	}
	if got.ParsedResult()["goals_updated"] != float64(1) {
		t.Errorf("result = %v", got.ParsedResult())
	}
	if len(got.ParsedLogs()) != 1 {
		t.Errorf("got %d log entries, want 1", len(got.ParsedLogs()))
	}
}

func TestDispatchHandlerError(t *testing.T) {
	repo := newTestRepo(t)
	d := NewDispatcher(repo, testLogger())
	ctx := context.Background()

	d.Register(domain.JobTypeJiraSync, HandlerFunc(func(ctx context.Context, job *domain.Job, rec *Recorder) (any, error) {
		return nil, context.DeadlineExceeded
	}))

	job, _ := repo.Create(ctx, domain.JobTypeJiraSync, nil)
	outcome, err := d.Dispatch(ctx, job)
	if err != nil {
		t.Fatalf("Dispatch returned error: %v", err)
	}
	if outcome != OutcomeFailed {
		t.Errorf("outcome = %s, want failed", outcome)
	}
	got, _ := repo.GetByID(ctx, job.ID)
	if got.Status != domain.JobStatusFailed || got.Error == "" {
		t.Errorf("status=%s error=%q, want failed with message", got.Status, got.Error)
	}
}

func TestDispatchContainsPanic(t *testing.T) {
	repo := newTestRepo(t)
	d := NewDispatcher(repo, testLogger())
	ctx := context.Background()

	d.Register(domain.JobTypeReport, HandlerFunc(func(ctx context.Context, job *domain.Job, rec *Recorder) (any, error) {
		panic("template exploded")
	}))

	job, _ := repo.Create(ctx, domain.JobTypeReport, nil)
	outcome, err := d.Dispatch(ctx, job)
	if err != nil {
		t.Fatalf("Dispatch returned error: %v", err)
	}
	if outcome != OutcomeFailed {
		t.Errorf("outcome = %s, want failed", outcome)
	}
	got, _ := repo.GetByID(ctx, job.ID)
	if !strings.Contains(got.Error, "handler panic") || !strings.Contains(got.Error, "template exploded") {
		t.Errorf("error = %q, want contained panic message", got.Error)
	}
}

func TestDispatchSkipsLostClaim(t *testing.T) {
	repo := newTestRepo(t)
	d := NewDispatcher(repo, testLogger())
	ctx := context.Background()

	ran := 0
	d.Register(domain.JobTypeGoalRecompute, HandlerFunc(func(ctx context.Context, job *domain.Job, rec *Recorder) (any, error) {
		ran++
		return nil, nil
	}))

	job, _ := repo.Create(ctx, domain.JobTypeGoalRecompute, nil)
	if outcome, _ := d.Dispatch(ctx, job); outcome != OutcomeCompleted {
		t.Fatalf("first dispatch outcome = %s", outcome)
	}

	// The job is terminal now; a second dispatch must skip silently.
	outcome, err := d.Dispatch(ctx, job)
	if err != nil {
		t.Fatalf("second dispatch returned error: %v", err)
	}
	if outcome != OutcomeSkipped {
		t.Errorf("second dispatch outcome = %s, want skipped", outcome)
	}
	if ran != 1 {
		t.Errorf("handler ran %d times, want 1", ran)
	}
}

func TestDispatchSkipsCancelled(t *testing.T) {
	repo := newTestRepo(t)
	d := NewDispatcher(repo, testLogger())
	ctx := context.Background()

	d.Register(domain.JobTypeJiraSync, HandlerFunc(func(ctx context.Context, job *domain.Job, rec *Recorder) (any, error) {
		t.Error("handler must not run for a cancelled job")
		return nil, nil
	}))

	job, _ := repo.Create(ctx, domain.JobTypeJiraSync, nil)
	_ = repo.Cancel(ctx, job.ID)

	outcome, err := d.Dispatch(ctx, job)
	if err != nil {
		t.Fatalf("Dispatch returned error: %v", err)
	}
	if outcome != OutcomeSkipped {
		t.Errorf("outcome = %s, want skipped", outcome)
	}
}

func TestDispatchByIDNotFound(t *testing.T) {
	repo := newTestRepo(t)
	d := NewDispatcher(repo, testLogger())

	if _, err := d.DispatchByID(context.Background(), "no-such-job"); err == nil {
		t.Error("DispatchByID of missing job returned nil error")
	}
}
