package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/perfdesk/perfdesk/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// EvidenceRepository persists evidence records, criteria, criterion matches,
// and goals.
type EvidenceRepository struct {
	db *gorm.DB
}

// NewEvidenceRepository creates a new EvidenceRepository.
func NewEvidenceRepository(db *gorm.DB) *EvidenceRepository {
	return &EvidenceRepository{db: db}
}

// GetBySourceKey looks up evidence by the natural key of its remote item.
func (r *EvidenceRepository) GetBySourceKey(ctx context.Context, sourceKey string) (*domain.Evidence, error) {
	var ev domain.Evidence
	err := r.db.WithContext(ctx).First(&ev, "source_key = ?", sourceKey).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &ev, nil
}

// Upsert creates or updates an evidence record keyed by source_key.
func (r *EvidenceRepository) Upsert(ctx context.Context, ev *domain.Evidence) error {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	ev.UpdatedAt = time.Now()
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "source_key"}},
		UpdateAll: true,
	}).Create(ev).Error
}

// ListByPeriod returns evidence whose occurrence falls inside [from, to).
func (r *EvidenceRepository) ListByPeriod(ctx context.Context, from, to time.Time) ([]domain.Evidence, error) {
	var evs []domain.Evidence
	err := r.db.WithContext(ctx).
		Where("occurred_at >= ? AND occurred_at < ?", from, to).
		Order("occurred_at ASC").
		Find(&evs).Error
	if err != nil {
		return nil, err
	}
	return evs, nil
}

// UpsertMatch creates or updates a criterion match keyed by
// (evidence, criterion).
func (r *EvidenceRepository) UpsertMatch(ctx context.Context, m *domain.CriterionMatch) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	m.UpdatedAt = time.Now()
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "evidence_id"}, {Name: "criterion_id"}},
		UpdateAll: true,
	}).Create(m).Error
}

// CountMatchesByCriterion returns the number of matches for one criterion.
func (r *EvidenceRepository) CountMatchesByCriterion(ctx context.Context, criterionID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.CriterionMatch{}).
		Where("criterion_id = ?", criterionID).
		Count(&count).Error
	return count, err
}

// ListCriteria returns all review criteria.
func (r *EvidenceRepository) ListCriteria(ctx context.Context) ([]domain.Criterion, error) {
	var criteria []domain.Criterion
	if err := r.db.WithContext(ctx).Order("name ASC").Find(&criteria).Error; err != nil {
		return nil, err
	}
	return criteria, nil
}

// UpsertCriterion creates or updates a criterion keyed by name.
func (r *EvidenceRepository) UpsertCriterion(ctx context.Context, c *domain.Criterion) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	c.UpdatedAt = time.Now()
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		UpdateAll: true,
	}).Create(c).Error
}

// ListGoals returns all goals.
func (r *EvidenceRepository) ListGoals(ctx context.Context) ([]domain.Goal, error) {
	var goals []domain.Goal
	if err := r.db.WithContext(ctx).Find(&goals).Error; err != nil {
		return nil, err
	}
	return goals, nil
}

// UpdateGoalProgress sets a goal's recomputed current count.
func (r *EvidenceRepository) UpdateGoalProgress(ctx context.Context, goalID string, current int) error {
	return r.db.WithContext(ctx).Model(&domain.Goal{}).
		Where("id = ?", goalID).
		Updates(map[string]any{"current_count": current, "updated_at": time.Now()}).Error
}

// UpsertInsight creates or updates the insight row for a period.
func (r *EvidenceRepository) UpsertInsight(ctx context.Context, ins *domain.Insight) error {
	if ins.ID == "" {
		ins.ID = uuid.New().String()
	}
	ins.UpdatedAt = time.Now()
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "period"}},
		UpdateAll: true,
	}).Create(ins).Error
}
