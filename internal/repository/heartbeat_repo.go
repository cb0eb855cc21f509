package repository

import (
	"context"
	"errors"
	"time"

	"github.com/perfdesk/perfdesk/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// HeartbeatRepository persists the process-wide liveness cells. Each key has
// a single writer (the poller) and any number of readers (health checks), so
// the row-level atomic upsert is the only synchronization needed.
type HeartbeatRepository struct {
	db *gorm.DB
}

// NewHeartbeatRepository creates a new HeartbeatRepository.
func NewHeartbeatRepository(db *gorm.DB) *HeartbeatRepository {
	return &HeartbeatRepository{db: db}
}

// Touch writes the current timestamp for the given key.
func (r *HeartbeatRepository) Touch(ctx context.Context, key string) error {
	hb := &domain.Heartbeat{Key: key, BeatenAt: time.Now()}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		UpdateAll: true,
	}).Create(hb).Error
}

// Get reads the heartbeat for a key. Returns ErrNotFound if the poller has
// never run.
func (r *HeartbeatRepository) Get(ctx context.Context, key string) (*domain.Heartbeat, error) {
	var hb domain.Heartbeat
	if err := r.db.WithContext(ctx).First(&hb, "key = ?", key).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &hb, nil
}
