package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/perfdesk/perfdesk/internal/domain"
	"github.com/perfdesk/perfdesk/internal/jobs"
	"github.com/perfdesk/perfdesk/internal/source"
)

// SyncHandler runs the sync pipeline for one source. It backs the
// github_sync and jira_sync job types.
type SyncHandler struct {
	sync *SyncService
	src  source.Source
}

// NewSyncHandler binds the pipeline to a source.
func NewSyncHandler(sync *SyncService, src source.Source) *SyncHandler {
	return &SyncHandler{sync: sync, src: src}
}

// Run implements jobs.Handler.
func (h *SyncHandler) Run(ctx context.Context, job *domain.Job, rec *jobs.Recorder) (any, error) {
	scope, err := ParseScope(job.ParsedConfig())
	if err != nil {
		return nil, err
	}
	stats, err := h.sync.Run(ctx, h.src, scope, rec)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// AgentSyncHandler drives the same capability plan across every registered
// source in one job, logging each capability invocation. The plan is
// deterministic: targets are routed to sources by shape ("owner/repo" is a
// pull-request source target, a bare project key is a ticket source target)
// and sources run in registration order.
type AgentSyncHandler struct {
	agent   *SyncService
	sources []source.Source
}

// NewAgentSyncHandler binds the step-logged pipeline to its sources.
func NewAgentSyncHandler(sync *SyncService, sources ...source.Source) *AgentSyncHandler {
	return &AgentSyncHandler{agent: sync.WithStepLogging(), sources: sources}
}

// Run implements jobs.Handler. Per-source stats are merged into one result;
// a source whose Discover fails fails the job, consistent with single-source
// sync.
func (h *AgentSyncHandler) Run(ctx context.Context, job *domain.Job, rec *jobs.Recorder) (any, error) {
	scope, err := ParseScope(job.ParsedConfig())
	if err != nil {
		return nil, err
	}

	total := &SyncStats{}
	for _, src := range h.sources {
		srcScope := source.Scope{
			Targets: targetsFor(src.Kind(), scope.Targets),
			Since:   scope.Since,
		}
		if len(srcScope.Targets) == 0 {
			continue
		}
		rec.Infof(ctx, "capability discover: %s source, %d targets", src.Kind(), len(srcScope.Targets))
		stats, err := h.agent.Run(ctx, src, srcScope, rec)
		if err != nil {
			return nil, fmt.Errorf("%s source: %w", src.Kind(), err)
		}
		total.Discovered += stats.Discovered
		total.Processed += stats.Processed
		total.Succeeded += stats.Succeeded
		total.Failed += stats.Failed
		total.Skipped += stats.Skipped
	}
	return total, nil
}

// targetsFor picks the scope targets a source can serve. "owner/repo" strings
// belong to the pull-request source, bare project keys to the ticket source.
func targetsFor(kind domain.RemoteKind, targets []string) []string {
	var out []string
	for _, t := range targets {
		isRepo := strings.Contains(t, "/")
		if (kind == domain.RemoteKindPullRequest) == isRepo {
			out = append(out, t)
		}
	}
	return out
}
