package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/perfdesk/perfdesk/internal/domain"
	"github.com/perfdesk/perfdesk/internal/jobs"
	"github.com/perfdesk/perfdesk/internal/prompts"
	"github.com/perfdesk/perfdesk/internal/repository"
)

// InsightHandler aggregates a period's evidence and writes a generated
// insight row for it. One insight per period; regeneration updates in place.
// It backs the periodic_insight job type.
type InsightHandler struct {
	evidence *repository.EvidenceRepository
	llm      *LLMClient
}

// NewInsightHandler wires the periodic insight dependencies.
func NewInsightHandler(evidence *repository.EvidenceRepository, llm *LLMClient) *InsightHandler {
	return &InsightHandler{evidence: evidence, llm: llm}
}

// Run implements jobs.Handler.
func (h *InsightHandler) Run(ctx context.Context, job *domain.Job, rec *jobs.Recorder) (any, error) {
	label, from, to, err := parsePeriodRange(job.ParsedConfig())
	if err != nil {
		return nil, err
	}

	rec.SetMessage(ctx, "aggregating evidence for "+label)
	items, err := h.evidence.ListByPeriod(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("list evidence: %w", err)
	}
	rec.Infof(ctx, "aggregated %d evidence items", len(items))
	rec.SetProgress(ctx, 40)

	content := "No evidence was collected in this period."
	if len(items) > 0 {
		rec.SetMessage(ctx, "generating insight")
		content, err = h.llm.Chat(ctx, prompts.InsightSystemPrompt, formatPeriodStats(label, items), 1024)
		if err != nil {
			return nil, fmt.Errorf("generate insight: %w", err)
		}
	}
	rec.SetProgress(ctx, 80)

	ins := &domain.Insight{
		Period:        label,
		Content:       content,
		EvidenceCount: len(items),
		Model:         h.llm.Model(),
	}
	if err := h.evidence.UpsertInsight(ctx, ins); err != nil {
		return nil, fmt.Errorf("store insight: %w", err)
	}
	rec.SetProgress(ctx, 100)

	return map[string]any{
		"period":         label,
		"evidence_count": len(items),
	}, nil
}

func formatPeriodStats(label string, items []domain.Evidence) string {
	counts := map[string]int{}
	for _, ev := range items {
		counts[ev.Category]++
	}
	categories := make([]string, 0, len(counts))
	for c := range counts {
		categories = append(categories, c)
	}
	sort.Strings(categories)

	var b strings.Builder
	fmt.Fprintf(&b, "Period: %s\nTotal evidence items: %d\nBy category:\n", label, len(items))
	for _, c := range categories {
		fmt.Fprintf(&b, "- %s: %d\n", c, counts[c])
	}
	return b.String()
}
