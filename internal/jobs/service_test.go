package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/perfdesk/perfdesk/internal/domain"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	repo := newTestRepo(t)
	d := NewDispatcher(repo, testLogger())
	return NewService(repo, d, false, testLogger())
}

func TestCreateRejectsUnknownType(t *testing.T) {
	svc := newTestService(t)
	if _, _, err := svc.Create(context.Background(), "mystery_type", nil); !errors.Is(err, ErrUnknownJobType) {
		t.Errorf("error = %v, want ErrUnknownJobType", err)
	}
}

func TestCreateDeduplicatesSyncJobs(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	cfg := map[string]any{"scope": []any{"acme/api"}}

	first, created, err := svc.Create(ctx, domain.JobTypeGitHubSync, cfg)
	if err != nil {
		t.Fatalf("first create failed: %v", err)
	}
	if !created {
		t.Fatal("first create reported created=false")
	}

	second, created, err := svc.Create(ctx, domain.JobTypeGitHubSync, cfg)
	if err != nil {
		t.Fatalf("second create failed: %v", err)
	}
	if created {
		t.Error("duplicate create reported created=true")
	}
	if second.ID != first.ID {
		t.Errorf("duplicate create returned job %s, want existing %s", second.ID, first.ID)
	}

	// A different sync type is not a duplicate.
	_, created, err = svc.Create(ctx, domain.JobTypeJiraSync, cfg)
	if err != nil || !created {
		t.Errorf("jira create: created=%v err=%v, want new job", created, err)
	}
}

func TestCreateAllowsNewJobAfterTerminal(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	first, _, err := svc.Create(ctx, domain.JobTypeAgentSync, nil)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	_ = svc.jobs.TransitionToRunning(ctx, first.ID)
	_ = svc.jobs.Complete(ctx, first.ID, nil)

	second, created, err := svc.Create(ctx, domain.JobTypeAgentSync, nil)
	if err != nil {
		t.Fatalf("create after terminal failed: %v", err)
	}
	if !created || second.ID == first.ID {
		t.Errorf("created=%v id=%s, want fresh job after terminal", created, second.ID)
	}
}

func TestCreateDeduplicatesInsightsByPeriod(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	q1, created, err := svc.Create(ctx, domain.JobTypePeriodicInsight, map[string]any{"period": "2026-Q1"})
	if err != nil || !created {
		t.Fatalf("q1 create: created=%v err=%v", created, err)
	}

	// Same period dedups, a different period does not.
	dup, created, err := svc.Create(ctx, domain.JobTypePeriodicInsight, map[string]any{"period": "2026-Q1"})
	if err != nil {
		t.Fatalf("duplicate create failed: %v", err)
	}
	if created || dup.ID != q1.ID {
		t.Errorf("same-period create: created=%v id=%s, want existing %s", created, dup.ID, q1.ID)
	}

	_, created, err = svc.Create(ctx, domain.JobTypePeriodicInsight, map[string]any{"period": "2026-Q2"})
	if err != nil || !created {
		t.Errorf("q2 create: created=%v err=%v, want new job", created, err)
	}
}

func TestCreateNeverDeduplicatesReports(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	first, _, err := svc.Create(ctx, domain.JobTypeReport, map[string]any{"period": "2026-Q1"})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	second, created, err := svc.Create(ctx, domain.JobTypeReport, map[string]any{"period": "2026-Q1"})
	if err != nil {
		t.Fatalf("second create failed: %v", err)
	}
	if !created || second.ID == first.ID {
		t.Errorf("report jobs must not dedup: created=%v", created)
	}
}
