package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/perfdesk/perfdesk/internal/prompts"
	"github.com/perfdesk/perfdesk/internal/source"
)

// Analysis is the structured result of analyzing one remote item.
type Analysis struct {
	Summary       string `json:"summary"`
	Category      string `json:"category"`
	ScopeEstimate string `json:"scope_estimate"`
}

// Analyzer produces an analysis for an enriched remote item. The call is
// side-effect-free and safe to re-run.
type Analyzer interface {
	Analyze(ctx context.Context, item *source.RemoteItem) (*Analysis, error)
}

// LLMAnalyzer implements Analyzer on the generative-text collaborator.
type LLMAnalyzer struct {
	llm *LLMClient
}

// NewLLMAnalyzer creates an analyzer bound to an LLM client.
func NewLLMAnalyzer(llm *LLMClient) *LLMAnalyzer {
	return &LLMAnalyzer{llm: llm}
}

// Analyze asks the model for a summary, category, and scope estimate.
func (a *LLMAnalyzer) Analyze(ctx context.Context, item *source.RemoteItem) (*Analysis, error) {
	user := formatItemForAnalysis(item)
	content, err := a.llm.Chat(ctx, prompts.AnalyzeSystemPrompt, user, 400)
	if err != nil {
		return nil, err
	}

	var analysis Analysis
	if err := json.Unmarshal([]byte(stripCodeFence(content)), &analysis); err != nil {
		return nil, fmt.Errorf("failed to parse analysis response: %w", err)
	}
	if analysis.Summary == "" {
		return nil, fmt.Errorf("analysis response missing summary")
	}
	if analysis.Category == "" {
		analysis.Category = "other"
	}
	return &analysis, nil
}

func formatItemForAnalysis(item *source.RemoteItem) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Key: %s\n", item.Ref.Key())
	fmt.Fprintf(&b, "Title: %s\n", item.Title)
	fmt.Fprintf(&b, "Author: %s\n", item.Author)
	fmt.Fprintf(&b, "State: %s\n", item.State)
	if len(item.Labels) > 0 {
		fmt.Fprintf(&b, "Labels: %s\n", strings.Join(item.Labels, ", "))
	}
	if item.Additions > 0 || item.Deletions > 0 {
		fmt.Fprintf(&b, "Diff size: +%d/-%d\n", item.Additions, item.Deletions)
	}
	if item.Body != "" {
		body := item.Body
		// The model only needs enough body to summarize; keep requests bounded.
		if len(body) > 4000 {
			body = body[:4000]
		}
		fmt.Fprintf(&b, "Body:\n%s\n", body)
	}
	return b.String()
}

// stripCodeFence removes a surrounding markdown code fence, which some models
// wrap around JSON despite instructions.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
