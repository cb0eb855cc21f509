package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/perfdesk/perfdesk/internal/domain"
	"github.com/perfdesk/perfdesk/internal/jobs"
	"github.com/perfdesk/perfdesk/internal/prompts"
	"github.com/perfdesk/perfdesk/internal/repository"
	"github.com/perfdesk/perfdesk/internal/storage"
)

// ReportHandler generates a narrative review report from the evidence in a
// period and uploads the markdown artifact to object storage. It backs the
// report_generation job type.
type ReportHandler struct {
	evidence *repository.EvidenceRepository
	llm      *LLMClient
	store    storage.ObjectStorage
}

// NewReportHandler wires the report generation dependencies.
func NewReportHandler(evidence *repository.EvidenceRepository, llm *LLMClient, store storage.ObjectStorage) *ReportHandler {
	return &ReportHandler{evidence: evidence, llm: llm, store: store}
}

// Run implements jobs.Handler.
func (h *ReportHandler) Run(ctx context.Context, job *domain.Job, rec *jobs.Recorder) (any, error) {
	label, from, to, err := parsePeriodRange(job.ParsedConfig())
	if err != nil {
		return nil, err
	}

	rec.SetMessage(ctx, "collecting evidence for "+label)
	items, err := h.evidence.ListByPeriod(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("list evidence: %w", err)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("no evidence in period %s", label)
	}
	rec.Infof(ctx, "collected %d evidence items", len(items))
	rec.SetProgress(ctx, 30)

	rec.SetMessage(ctx, "generating report")
	report, err := h.llm.Chat(ctx, prompts.ReportSystemPrompt, formatEvidenceForReport(label, items), 4096)
	if err != nil {
		return nil, fmt.Errorf("generate report: %w", err)
	}
	rec.SetProgress(ctx, 70)

	key := fmt.Sprintf("reports/%s/%s.md", sanitizeKeySegment(label), uuid.New().String())
	rec.SetMessage(ctx, "uploading report artifact")
	body := strings.NewReader(report)
	if err := h.store.Upload(ctx, key, body, int64(len(report)), "text/markdown"); err != nil {
		return nil, fmt.Errorf("upload report: %w", err)
	}
	rec.Infof(ctx, "uploaded report artifact %s", key)
	rec.SetProgress(ctx, 100)

	return map[string]any{
		"artifact_key":   key,
		"url":            h.store.GetURL(key),
		"evidence_count": len(items),
	}, nil
}

func formatEvidenceForReport(label string, items []domain.Evidence) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Review period: %s\nEvidence items (%d):\n\n", label, len(items))
	for i, ev := range items {
		fmt.Fprintf(&b, "%d. [%s] %s\n   %s\n", i+1, ev.Category, ev.Title, ev.Summary)
		if ev.OccurredAt != nil {
			fmt.Fprintf(&b, "   occurred: %s\n", ev.OccurredAt.Format(time.DateOnly))
		}
	}
	return b.String()
}

// sanitizeKeySegment keeps artifact keys to a safe character set.
func sanitizeKeySegment(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_' || r == '.':
			return r
		}
		return '-'
	}, s)
}
