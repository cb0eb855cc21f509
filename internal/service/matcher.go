package service

import (
	"context"
	"fmt"

	"github.com/perfdesk/perfdesk/internal/repository"
)

// MatchCandidate is one ranked criterion match for a piece of evidence.
type MatchCandidate struct {
	CriterionID string  `json:"criterion_id"`
	Name        string  `json:"name"`
	Confidence  float64 `json:"confidence"`
	Rationale   string  `json:"rationale"`
}

// Matcher ranks review criteria against an analyzed item. Side-effect-free.
type Matcher interface {
	Match(ctx context.Context, analysis *Analysis, itemText string) ([]MatchCandidate, error)
}

// VectorMatcher implements Matcher by embedding the analysis summary and
// searching the criteria vector index by cosine similarity.
type VectorMatcher struct {
	embedding *EmbeddingService
	index     *repository.CriteriaIndex
	topK      int
	// minScore drops matches below this similarity; weak matches are noise
	// in review reports.
	minScore float32
}

// NewVectorMatcher creates a matcher. topK <= 0 defaults to 3.
func NewVectorMatcher(embedding *EmbeddingService, index *repository.CriteriaIndex, topK int, minScore float32) *VectorMatcher {
	if topK <= 0 {
		topK = 3
	}
	return &VectorMatcher{
		embedding: embedding,
		index:     index,
		topK:      topK,
		minScore:  minScore,
	}
}

// Match embeds the summary+category and returns the closest criteria, ranked.
func (m *VectorMatcher) Match(ctx context.Context, analysis *Analysis, itemText string) ([]MatchCandidate, error) {
	query := analysis.Summary
	if analysis.Category != "" {
		query = analysis.Category + ": " + query
	}

	vector, err := m.embedding.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed match query: %w", err)
	}

	scored, err := m.index.Search(ctx, vector, m.topK)
	if err != nil {
		return nil, err
	}

	var candidates []MatchCandidate
	for _, sc := range scored {
		if sc.Score < m.minScore {
			continue
		}
		candidates = append(candidates, MatchCandidate{
			CriterionID: sc.CriterionID,
			Name:        sc.Name,
			Confidence:  float64(sc.Score),
			Rationale:   fmt.Sprintf("%s work aligned with %q (%s)", analysis.Category, sc.Name, sc.Description),
		})
	}
	return candidates, nil
}

// SeedCriteria mirrors the relational criteria rows into the vector index,
// embedding each description. Re-seeding updates points in place.
func SeedCriteria(ctx context.Context, evidence *repository.EvidenceRepository, embedding *EmbeddingService, index *repository.CriteriaIndex) error {
	criteria, err := evidence.ListCriteria(ctx)
	if err != nil {
		return fmt.Errorf("list criteria: %w", err)
	}
	if len(criteria) == 0 {
		return nil
	}

	texts := make([]string, len(criteria))
	for i, c := range criteria {
		texts[i] = c.Name + ": " + c.Description
	}
	vectors, err := embedding.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed criteria: %w", err)
	}

	for i, c := range criteria {
		payload := &repository.CriterionPayload{
			CriterionID: c.ID,
			Name:        c.Name,
			Description: c.Description,
			Weight:      c.Weight,
		}
		if err := index.Upsert(ctx, c.ID, vectors[i], payload); err != nil {
			return fmt.Errorf("index criterion %s: %w", c.Name, err)
		}
	}
	return nil
}
