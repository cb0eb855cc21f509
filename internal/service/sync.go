package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/perfdesk/perfdesk/internal/domain"
	"github.com/perfdesk/perfdesk/internal/jobs"
	"github.com/perfdesk/perfdesk/internal/logger"
	"github.com/perfdesk/perfdesk/internal/repository"
	"github.com/perfdesk/perfdesk/internal/source"
)

// SyncStats summarizes one sync run. It is the result payload of sync jobs.
type SyncStats struct {
	Discovered int `json:"discovered"`
	Processed  int `json:"processed"`
	Succeeded  int `json:"succeeded"`
	Failed     int `json:"failed"`
	Skipped    int `json:"skipped"`
}

// SyncService runs the idempotent sync pipeline: discovery, dedup-check,
// enrichment, extraction, analysis, criteria matching, persistence, and
// cross-linking. Each phase is a discrete capability with an explicit
// contract; the orchestrator here sequences them deterministically. Re-running
// the pipeline over the same natural keys updates records in place and never
// duplicates them.
type SyncService struct {
	remotes  *repository.RemoteRepository
	evidence *repository.EvidenceRepository
	analyzer Analyzer
	matcher  Matcher
	logger   *logger.Logger

	// logSteps records every capability invocation in the job log. The
	// agent-driven sync flow enables it so operators can replay the plan.
	logSteps bool
}

// NewSyncService creates a sync pipeline orchestrator.
func NewSyncService(remotes *repository.RemoteRepository, evidence *repository.EvidenceRepository, analyzer Analyzer, matcher Matcher, log *logger.Logger) *SyncService {
	return &SyncService{
		remotes:  remotes,
		evidence: evidence,
		analyzer: analyzer,
		matcher:  matcher,
		logger:   log.WithField(logger.FieldComponent, "sync"),
	}
}

// WithStepLogging returns a copy of the service that records each capability
// invocation in the job log.
func (s *SyncService) WithStepLogging() *SyncService {
	clone := *s
	clone.logSteps = true
	return &clone
}

// itemState threads one item's data through the capability sequence. Each
// capability reads the fields earlier phases produced and fills in its own.
type itemState struct {
	ref source.ItemRef

	// dedup_check
	existingPR     *domain.PullRequest
	existingTicket *domain.Ticket

	// enrich
	item *source.RemoteItem

	// extract
	linkedTicketKeys []string
	linkedPRKeys     []string

	// analyze
	analysis *Analysis

	// match_criteria
	matches []MatchCandidate

	// persist
	evidenceID string
}

// capability is one named, independently retryable pipeline step.
type capability struct {
	name string
	run  func(ctx context.Context, src source.Source, st *itemState) error
}

// plan returns the fixed per-item capability sequence. Dedup-check runs
// before enrich so existing records are updated in place rather than
// recreated.
func (s *SyncService) plan() []capability {
	return []capability{
		{"dedup_check", s.capDedupCheck},
		{"enrich", s.capEnrich},
		{"extract", s.capExtract},
		{"analyze", s.capAnalyze},
		{"match_criteria", s.capMatchCriteria},
		{"persist", s.capPersist},
		{"cross_link", s.capCrossLink},
	}
}

// Run executes the pipeline for everything Discover finds in scope. An item
// failure is logged and counted but never aborts the run; only a Discover
// failure fails the whole job. Progress is reported as processed/discovered.
func (s *SyncService) Run(ctx context.Context, src source.Source, scope source.Scope, rec *jobs.Recorder) (*SyncStats, error) {
	rec.SetMessage(ctx, "discovering items")
	refs, err := src.Discover(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("discover: %w", err)
	}

	stats := &SyncStats{Discovered: len(refs)}
	rec.Infof(ctx, "discovered %d items", len(refs))
	if len(refs) == 0 {
		rec.SetProgress(ctx, 100)
		return stats, nil
	}

	plan := s.plan()
	for i, ref := range refs {
		// Cancellation is cooperative; the item boundary is the checkpoint.
		if rec.Cancelled(ctx) {
			stats.Skipped = len(refs) - i
			rec.Warnf(ctx, "cancelled after %d of %d items", i, len(refs))
			break
		}

		rec.SetMessage(ctx, "syncing "+ref.Key())
		if err := s.syncItem(ctx, src, ref, plan, rec); err != nil {
			stats.Failed++
			rec.Errorf(ctx, "failed to sync %s: %v", ref.Key(), err)
			s.logger.WithError(err).WithField(logger.FieldSyncKey, ref.Key()).Warn("item sync failed")
		} else {
			stats.Succeeded++
		}
		stats.Processed++
		rec.SetProgress(ctx, stats.Processed*100/stats.Discovered)
	}

	rec.Infof(ctx, "sync finished: %d succeeded, %d failed, %d skipped",
		stats.Succeeded, stats.Failed, stats.Skipped)
	return stats, nil
}

func (s *SyncService) syncItem(ctx context.Context, src source.Source, ref source.ItemRef, plan []capability, rec *jobs.Recorder) error {
	st := &itemState{ref: ref}
	for _, step := range plan {
		if s.logSteps {
			rec.Infof(ctx, "capability %s: %s", step.name, ref.Key())
		}
		if err := step.run(ctx, src, st); err != nil {
			return fmt.Errorf("%s: %w", step.name, err)
		}
	}
	return nil
}

// capDedupCheck looks up the natural key so persist can update in place.
// Side-effect-free.
func (s *SyncService) capDedupCheck(ctx context.Context, _ source.Source, st *itemState) error {
	switch st.ref.Kind {
	case domain.RemoteKindTicket:
		existing, err := s.remotes.GetTicket(ctx, st.ref.Project, st.ref.Number)
		if err != nil && err != repository.ErrNotFound {
			return err
		}
		st.existingTicket = existing
	default:
		existing, err := s.remotes.GetPullRequest(ctx, st.ref.Owner, st.ref.Repo, st.ref.Number)
		if err != nil && err != repository.ErrNotFound {
			return err
		}
		st.existingPR = existing
	}
	return nil
}

// capEnrich fetches the full remote item. Side-effect-free, safe to re-run.
func (s *SyncService) capEnrich(ctx context.Context, src source.Source, st *itemState) error {
	item, err := src.Enrich(ctx, st.ref)
	if err != nil {
		return err
	}
	st.item = item
	return nil
}

// capExtract pulls structured references out of the item text.
func (s *SyncService) capExtract(_ context.Context, _ source.Source, st *itemState) error {
	text := st.item.Title + "\n" + st.item.Body
	if st.ref.Kind == domain.RemoteKindTicket {
		st.linkedPRKeys = source.ExtractPRKeys(text)
	} else {
		st.linkedTicketKeys = source.ExtractTicketKeys(text)
	}
	return nil
}

// capAnalyze asks the generative-text collaborator for a summary, category,
// and scope estimate.
func (s *SyncService) capAnalyze(ctx context.Context, _ source.Source, st *itemState) error {
	analysis, err := s.analyzer.Analyze(ctx, st.item)
	if err != nil {
		return err
	}
	st.analysis = analysis
	return nil
}

// capMatchCriteria ranks review criteria for the analyzed item.
func (s *SyncService) capMatchCriteria(ctx context.Context, _ source.Source, st *itemState) error {
	matches, err := s.matcher.Match(ctx, st.analysis, st.item.Body)
	if err != nil {
		return err
	}
	st.matches = matches
	return nil
}

// capPersist upserts the remote-item record, its evidence record, and the
// criterion matches, all keyed by the natural key. Re-running never
// duplicates.
func (s *SyncService) capPersist(ctx context.Context, _ source.Source, st *itemState) error {
	if err := s.persistRemote(ctx, st); err != nil {
		return err
	}

	occurredAt := st.item.UpdatedAt
	if st.item.MergedAt != nil {
		occurredAt = *st.item.MergedAt
	}
	ev := &domain.Evidence{
		SourceKind:    st.ref.Kind,
		SourceKey:     st.ref.Key(),
		Title:         st.item.Title,
		Summary:       st.analysis.Summary,
		Category:      st.analysis.Category,
		ScopeEstimate: st.analysis.ScopeEstimate,
		OccurredAt:    &occurredAt,
	}
	if existing, err := s.evidence.GetBySourceKey(ctx, st.ref.Key()); err == nil {
		ev.ID = existing.ID
		ev.CreatedAt = existing.CreatedAt
	} else if err != repository.ErrNotFound {
		return err
	}
	if err := s.evidence.Upsert(ctx, ev); err != nil {
		return err
	}
	st.evidenceID = ev.ID

	for _, m := range st.matches {
		match := &domain.CriterionMatch{
			EvidenceID:  ev.ID,
			CriterionID: m.CriterionID,
			Confidence:  m.Confidence,
			Rationale:   m.Rationale,
		}
		if err := s.evidence.UpsertMatch(ctx, match); err != nil {
			return err
		}
	}
	return nil
}

func (s *SyncService) persistRemote(ctx context.Context, st *itemState) error {
	item := st.item
	if st.ref.Kind == domain.RemoteKindTicket {
		t := &domain.Ticket{
			ProjectKey:      st.ref.Project,
			Number:          st.ref.Number,
			Title:           item.Title,
			Body:            item.Body,
			Author:          item.Author,
			Assignee:        item.Assignee,
			State:           item.State,
			IssueURL:        item.URL,
			Comments:        item.Comments,
			RemoteCreatedAt: item.CreatedAt,
			RemoteUpdatedAt: item.UpdatedAt,
		}
		if st.existingTicket != nil {
			t.ID = st.existingTicket.ID
			t.CreatedAt = st.existingTicket.CreatedAt
		}
		return s.remotes.UpsertTicket(ctx, t)
	}

	pr := &domain.PullRequest{
		Owner:           st.ref.Owner,
		Repo:            st.ref.Repo,
		Number:          st.ref.Number,
		Title:           item.Title,
		Body:            item.Body,
		Author:          item.Author,
		State:           item.State,
		URL:             item.URL,
		Comments:        item.Comments,
		Additions:       item.Additions,
		Deletions:       item.Deletions,
		MergedAt:        item.MergedAt,
		RemoteCreatedAt: item.CreatedAt,
		RemoteUpdatedAt: item.UpdatedAt,
	}
	if st.existingPR != nil {
		pr.ID = st.existingPR.ID
		pr.CreatedAt = st.existingPR.CreatedAt
	}
	return s.remotes.UpsertPullRequest(ctx, pr)
}

// capCrossLink records PR<->ticket relationships discovered in the item
// text. Upserts keyed by the pair, so re-linking is a no-op.
func (s *SyncService) capCrossLink(ctx context.Context, _ source.Source, st *itemState) error {
	key := st.ref.Key()
	for _, ticketKey := range st.linkedTicketKeys {
		if err := s.remotes.UpsertCrossLink(ctx, key, ticketKey); err != nil {
			return err
		}
	}
	for _, prKey := range st.linkedPRKeys {
		if err := s.remotes.UpsertCrossLink(ctx, prKey, key); err != nil {
			return err
		}
	}
	return nil
}

// ParseScope decodes a sync job's config payload into a discovery scope.
// Accepted shape: {"scope": ["owner/repo", ...], "since": "2024-01-01"}.
func ParseScope(cfg map[string]any) (source.Scope, error) {
	scope := source.Scope{}
	if raw, ok := cfg["scope"].([]any); ok {
		for _, v := range raw {
			if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
				scope.Targets = append(scope.Targets, s)
			}
		}
	}
	if len(scope.Targets) == 0 {
		return scope, fmt.Errorf("sync config requires a non-empty scope list")
	}
	if raw, ok := cfg["since"].(string); ok && raw != "" {
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			t, err = time.Parse(time.RFC3339, raw)
		}
		if err != nil {
			return scope, fmt.Errorf("invalid since date %q", raw)
		}
		scope.Since = t
	}
	return scope, nil
}
