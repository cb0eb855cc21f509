package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/perfdesk/perfdesk/internal/domain"
	"github.com/perfdesk/perfdesk/internal/jobs"
	"github.com/perfdesk/perfdesk/internal/prompts"
)

// ReviewAnalysisHandler extracts themes, strengths, and growth areas from
// free-form review text. It backs the review_analysis job type.
type ReviewAnalysisHandler struct {
	llm *LLMClient
}

// NewReviewAnalysisHandler wires the review-text analyzer.
func NewReviewAnalysisHandler(llm *LLMClient) *ReviewAnalysisHandler {
	return &ReviewAnalysisHandler{llm: llm}
}

// Run implements jobs.Handler.
func (h *ReviewAnalysisHandler) Run(ctx context.Context, job *domain.Job, rec *jobs.Recorder) (any, error) {
	text, _ := job.ParsedConfig()["text"].(string)
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("review_analysis config requires non-empty text")
	}

	rec.SetMessage(ctx, "analyzing review text")
	content, err := h.llm.Chat(ctx, prompts.ReviewAnalysisSystemPrompt, text, 2048)
	if err != nil {
		return nil, fmt.Errorf("analyze review: %w", err)
	}

	var result map[string]any
	if err := json.Unmarshal([]byte(stripCodeFence(content)), &result); err != nil {
		return nil, fmt.Errorf("parse analysis response: %w", err)
	}
	rec.SetProgress(ctx, 100)
	return result, nil
}
