package service

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/perfdesk/perfdesk/internal/domain"
	"github.com/perfdesk/perfdesk/internal/jobs"
	"github.com/perfdesk/perfdesk/internal/logger"
	"github.com/perfdesk/perfdesk/internal/repository"
	"github.com/perfdesk/perfdesk/internal/source"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type syncFixture struct {
	db       *gorm.DB
	jobs     *repository.JobRepository
	remotes  *repository.RemoteRepository
	evidence *repository.EvidenceRepository
	svc      *SyncService
}

func newSyncFixture(t *testing.T, matches []MatchCandidate) *syncFixture {
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

	log := logger.New(&logger.Config{Level: "error", Output: io.Discard})
	remotes := repository.NewRemoteRepository(db)
	evidence := repository.NewEvidenceRepository(db)
	svc := NewSyncService(remotes, evidence, fakeAnalyzer{}, fakeMatcher{matches: matches}, log)

	return &syncFixture{
		db:       db,
		jobs:     repository.NewJobRepository(db),
		remotes:  remotes,
		evidence: evidence,
		svc:      svc,
	}
}

// newRunningRecorder creates a claimed job and a recorder bound to it.
func (f *syncFixture) newRunningRecorder(t *testing.T) (*domain.Job, *jobs.Recorder) {
	t.Helper()
	ctx := context.Background()
	job, err := f.jobs.Create(ctx, domain.JobTypeGitHubSync, nil)
	if err != nil {
		t.Fatalf("failed to create job: %v", err)
	}
	if err := f.jobs.TransitionToRunning(ctx, job.ID); err != nil {
		t.Fatalf("failed to claim job: %v", err)
	}
	return job, jobs.NewRecorder(f.jobs, job.ID, logger.New(&logger.Config{Level: "error", Output: io.Discard}))
}

type fakeSource struct {
	kind        domain.RemoteKind
	refs        []source.ItemRef
	items       map[string]*source.RemoteItem
	failEnrich  map[string]bool
	discoverErr error
}

func (f *fakeSource) Kind() domain.RemoteKind { return f.kind }

func (f *fakeSource) Discover(ctx context.Context, scope source.Scope) ([]source.ItemRef, error) {
	if f.discoverErr != nil {
		return nil, f.discoverErr
	}
	return f.refs, nil
}

func (f *fakeSource) Enrich(ctx context.Context, ref source.ItemRef) (*source.RemoteItem, error) {
	if f.failEnrich[ref.Key()] {
		return nil, errors.New("upstream returned 500")
	}
	item, ok := f.items[ref.Key()]
	if !ok {
		return nil, errors.New("no such item")
	}
	return item, nil
}

type fakeAnalyzer struct{}

func (fakeAnalyzer) Analyze(ctx context.Context, item *source.RemoteItem) (*Analysis, error) {
	return &Analysis{Summary: "did " + item.Title, Category: "feature", ScopeEstimate: "small"}, nil
}

type fakeMatcher struct {
	matches []MatchCandidate
}

func (f fakeMatcher) Match(ctx context.Context, analysis *Analysis, itemText string) ([]MatchCandidate, error) {
	return f.matches, nil
}

func prRef(number int) source.ItemRef {
	return source.ItemRef{Kind: domain.RemoteKindPullRequest, Owner: "acme", Repo: "api", Number: number}
}

func prItem(number int, title, body string) *source.RemoteItem {
	now := time.Now().Add(-time.Hour)
	return &source.RemoteItem{
		Ref:       prRef(number),
		Title:     title,
		Body:      body,
		Author:    "casey",
		State:     "merged",
		URL:       "https://github.com/acme/api/pull/1",
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func threeItemSource(failKey string) *fakeSource {
	src := &fakeSource{
		kind: domain.RemoteKindPullRequest,
		refs: []source.ItemRef{prRef(1), prRef(2), prRef(3)},
		items: map[string]*source.RemoteItem{
			"acme/api#1": prItem(1, "Add rate limiter", "Implements PLAT-7"),
			"acme/api#2": prItem(2, "Fix flaky retry", ""),
			"acme/api#3": prItem(3, "Refactor config loading", ""),
		},
		failEnrich: map[string]bool{},
	}
	if failKey != "" {
		src.failEnrich[failKey] = true
	}
	return src
}

func TestSyncToleratesItemFailure(t *testing.T) {
	f := newSyncFixture(t, nil)
	job, rec := f.newRunningRecorder(t)
	ctx := context.Background()

	stats, err := f.svc.Run(ctx, threeItemSource("acme/api#2"), source.Scope{Targets: []string{"acme/api"}}, rec)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if stats.Discovered != 3 || stats.Processed != 3 {
		t.Errorf("discovered=%d processed=%d, want 3/3", stats.Discovered, stats.Processed)
	}
	if stats.Succeeded != 2 {
		t.Errorf("succeeded = %d, want 2", stats.Succeeded)
	}
	if stats.Failed != 1 {
		t.Errorf("failed = %d, want 1", stats.Failed)
	}

	got, _ := f.jobs.GetByID(ctx, job.ID)
	if got.Progress != 100 {
		t.Errorf("progress = %d, want 100", got.Progress)
	}
	errorLines := 0
	for _, entry := range got.ParsedLogs() {
		if entry.Level == "error" {
			errorLines++
		}
	}
	if errorLines != 1 {
		t.Errorf("got %d error log lines, want exactly 1", errorLines)
	}

	var prCount int64
	f.db.Model(&domain.PullRequest{}).Count(&prCount)
	if prCount != 2 {
		t.Errorf("persisted %d pull requests, want 2", prCount)
	}
	var evCount int64
	f.db.Model(&domain.Evidence{}).Count(&evCount)
	if evCount != 2 {
		t.Errorf("persisted %d evidence rows, want 2", evCount)
	}
}

func TestSyncIsIdempotent(t *testing.T) {
	f := newSyncFixture(t, nil)
	ctx := context.Background()
	scope := source.Scope{Targets: []string{"acme/api"}}

	_, rec := f.newRunningRecorder(t)
	if _, err := f.svc.Run(ctx, threeItemSource(""), scope, rec); err != nil {
		t.Fatalf("first run failed: %v", err)
	}

	_, rec2 := f.newRunningRecorder(t)
	stats, err := f.svc.Run(ctx, threeItemSource(""), scope, rec2)
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if stats.Succeeded != 3 {
		t.Errorf("second run succeeded = %d, want 3", stats.Succeeded)
	}

	var prCount, evCount, linkCount int64
	f.db.Model(&domain.PullRequest{}).Count(&prCount)
	f.db.Model(&domain.Evidence{}).Count(&evCount)
	f.db.Model(&domain.CrossLink{}).Count(&linkCount)
	if prCount != 3 {
		t.Errorf("pull request rows = %d, want 3 after re-sync", prCount)
	}
	if evCount != 3 {
		t.Errorf("evidence rows = %d, want 3 after re-sync", evCount)
	}
	if linkCount != 1 {
		t.Errorf("cross link rows = %d, want 1 after re-sync", linkCount)
	}
}

func TestSyncCrossLinksTicketMentions(t *testing.T) {
	f := newSyncFixture(t, nil)
	_, rec := f.newRunningRecorder(t)
	ctx := context.Background()

	if _, err := f.svc.Run(ctx, threeItemSource(""), source.Scope{Targets: []string{"acme/api"}}, rec); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	var link domain.CrossLink
	if err := f.db.First(&link).Error; err != nil {
		t.Fatalf("no cross link persisted: %v", err)
	}
	if link.PRKey != "acme/api#1" || link.TicketKey != "PLAT-7" {
		t.Errorf("cross link = %s <-> %s, want acme/api#1 <-> PLAT-7", link.PRKey, link.TicketKey)
	}
}

func TestSyncPersistsCriterionMatches(t *testing.T) {
	f := newSyncFixture(t, []MatchCandidate{
		{CriterionID: "crit-1", Name: "technical depth", Confidence: 0.9, Rationale: "strong overlap"},
	})
	_, rec := f.newRunningRecorder(t)
	ctx := context.Background()

	if _, err := f.svc.Run(ctx, threeItemSource(""), source.Scope{Targets: []string{"acme/api"}}, rec); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	count, err := f.evidence.CountMatchesByCriterion(ctx, "crit-1")
	if err != nil {
		t.Fatalf("CountMatchesByCriterion failed: %v", err)
	}
	if count != 3 {
		t.Errorf("criterion matched %d evidence rows, want 3", count)
	}
}

func TestSyncFailsOnDiscoverError(t *testing.T) {
	f := newSyncFixture(t, nil)
	_, rec := f.newRunningRecorder(t)

	src := &fakeSource{kind: domain.RemoteKindPullRequest, discoverErr: errors.New("token expired")}
	if _, err := f.svc.Run(context.Background(), src, source.Scope{Targets: []string{"acme/api"}}, rec); err == nil {
		t.Fatal("Run succeeded despite discover failure")
	}
}

func TestSyncStopsAtCancellation(t *testing.T) {
	f := newSyncFixture(t, nil)
	job, rec := f.newRunningRecorder(t)
	ctx := context.Background()

	if err := f.jobs.Cancel(ctx, job.ID); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}

	stats, err := f.svc.Run(ctx, threeItemSource(""), source.Scope{Targets: []string{"acme/api"}}, rec)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if stats.Processed != 0 {
		t.Errorf("processed = %d, want 0 after pre-run cancellation", stats.Processed)
	}
	if stats.Skipped != 3 {
		t.Errorf("skipped = %d, want 3", stats.Skipped)
	}
}

func TestParseScope(t *testing.T) {
	cases := []struct {
		name    string
		cfg     map[string]any
		targets int
		wantErr bool
	}{
		{"repos and since", map[string]any{"scope": []any{"acme/api", "acme/web"}, "since": "2026-01-01"}, 2, false},
		{"rfc3339 since", map[string]any{"scope": []any{"acme/api"}, "since": "2026-01-01T00:00:00Z"}, 1, false},
		{"empty scope", map[string]any{"scope": []any{}}, 0, true},
		{"missing scope", map[string]any{}, 0, true},
		{"bad since", map[string]any{"scope": []any{"acme/api"}, "since": "last tuesday"}, 0, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			scope, err := ParseScope(tc.cfg)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseScope failed: %v", err)
			}
			if len(scope.Targets) != tc.targets {
				t.Errorf("targets = %d, want %d", len(scope.Targets), tc.targets)
			}
		})
	}
}
