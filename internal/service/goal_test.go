package service

import (
	"context"
	"testing"

	"github.com/perfdesk/perfdesk/internal/domain"
)

func TestGoalRecompute(t *testing.T) {
	f := newSyncFixture(t, nil)
	ctx := context.Background()

	crit := &domain.Criterion{Name: "technical depth", Description: "deep technical work"}
	if err := f.evidence.UpsertCriterion(ctx, crit); err != nil {
		t.Fatalf("UpsertCriterion failed: %v", err)
	}
	goal := &domain.Goal{ID: "goal-1", Name: "show depth", CriterionID: crit.ID, TargetCount: 5}
	if err := f.db.Create(goal).Error; err != nil {
		t.Fatalf("failed to seed goal: %v", err)
	}

	for _, evID := range []string{"ev-1", "ev-2"} {
		ev := &domain.Evidence{ID: evID, SourceKey: "src-" + evID, Title: evID}
		if err := f.db.Create(ev).Error; err != nil {
			t.Fatalf("failed to seed evidence: %v", err)
		}
		if err := f.evidence.UpsertMatch(ctx, &domain.CriterionMatch{
			EvidenceID:  evID,
			CriterionID: crit.ID,
			Confidence:  0.8,
		}); err != nil {
			t.Fatalf("UpsertMatch failed: %v", err)
		}
	}

	job, rec := f.newRunningRecorder(t)
	handler := NewGoalRecomputeHandler(f.evidence)
	result, err := handler.Run(ctx, job, rec)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if updated := result.(map[string]any)["goals_updated"]; updated != 1 {
		t.Errorf("goals_updated = %v, want 1", updated)
	}

	var got domain.Goal
	if err := f.db.First(&got, "id = ?", "goal-1").Error; err != nil {
		t.Fatalf("failed to reload goal: %v", err)
	}
	if got.CurrentCount != 2 {
		t.Errorf("current_count = %d, want 2", got.CurrentCount)
	}

	// A second recompute with unchanged matches touches nothing.
	_, rec2 := f.newRunningRecorder(t)
	result, err = handler.Run(ctx, job, rec2)
	if err != nil {
		t.Fatalf("second Run failed: %v", err)
	}
	if updated := result.(map[string]any)["goals_updated"]; updated != 0 {
		t.Errorf("second run goals_updated = %v, want 0", updated)
	}
}
