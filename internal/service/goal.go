package service

import (
	"context"
	"fmt"

	"github.com/perfdesk/perfdesk/internal/domain"
	"github.com/perfdesk/perfdesk/internal/jobs"
	"github.com/perfdesk/perfdesk/internal/repository"
)

// GoalRecomputeHandler recounts matched evidence for every goal's criterion
// and stores the new progress. It backs the goal_recompute job type.
type GoalRecomputeHandler struct {
	evidence *repository.EvidenceRepository
}

// NewGoalRecomputeHandler wires the goal recomputation dependencies.
func NewGoalRecomputeHandler(evidence *repository.EvidenceRepository) *GoalRecomputeHandler {
	return &GoalRecomputeHandler{evidence: evidence}
}

// Run implements jobs.Handler.
func (h *GoalRecomputeHandler) Run(ctx context.Context, job *domain.Job, rec *jobs.Recorder) (any, error) {
	goals, err := h.evidence.ListGoals(ctx)
	if err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}
	if len(goals) == 0 {
		rec.Infof(ctx, "no goals to recompute")
		return map[string]any{"goals_updated": 0}, nil
	}

	updated := 0
	for i, goal := range goals {
		count, err := h.evidence.CountMatchesByCriterion(ctx, goal.CriterionID)
		if err != nil {
			return nil, fmt.Errorf("count matches for goal %s: %w", goal.Name, err)
		}
		if int(count) != goal.CurrentCount {
			if err := h.evidence.UpdateGoalProgress(ctx, goal.ID, int(count)); err != nil {
				return nil, fmt.Errorf("update goal %s: %w", goal.Name, err)
			}
			rec.Infof(ctx, "goal %q: %d -> %d of %d", goal.Name, goal.CurrentCount, count, goal.TargetCount)
			updated++
		}
		rec.SetProgress(ctx, (i+1)*100/len(goals))
	}
	return map[string]any{"goals_updated": updated}, nil
}
