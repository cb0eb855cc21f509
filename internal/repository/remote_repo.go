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

// RemoteRepository persists synced remote items (pull requests, tickets) and
// their cross-links. All writes are upserts keyed by the item's natural key:
// re-running a sync never creates a duplicate.
type RemoteRepository struct {
	db *gorm.DB
}

// NewRemoteRepository creates a new RemoteRepository.
func NewRemoteRepository(db *gorm.DB) *RemoteRepository {
	return &RemoteRepository{db: db}
}

// GetPullRequest looks up a PR by its natural key. Returns ErrNotFound when
// absent; the sync pipeline's dedup-check step relies on that distinction.
func (r *RemoteRepository) GetPullRequest(ctx context.Context, owner, repo string, number int) (*domain.PullRequest, error) {
	var pr domain.PullRequest
	err := r.db.WithContext(ctx).
		First(&pr, "owner = ? AND repo = ? AND number = ?", owner, repo, number).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &pr, nil
}

// UpsertPullRequest creates or updates a PR keyed by owner+repo+number.
// A fresh row gets a new ID; callers that already hold the existing row's ID
// should set it on pr so the row is updated in place.
func (r *RemoteRepository) UpsertPullRequest(ctx context.Context, pr *domain.PullRequest) error {
	if pr.ID == "" {
		pr.ID = uuid.New().String()
	}
	pr.UpdatedAt = time.Now()
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "owner"}, {Name: "repo"}, {Name: "number"}},
		UpdateAll: true,
	}).Create(pr).Error
}

// GetTicket looks up a ticket by its natural key.
func (r *RemoteRepository) GetTicket(ctx context.Context, projectKey string, number int) (*domain.Ticket, error) {
	var t domain.Ticket
	err := r.db.WithContext(ctx).
		First(&t, "project_key = ? AND number = ?", projectKey, number).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

// UpsertTicket creates or updates a ticket keyed by projectKey+number.
func (r *RemoteRepository) UpsertTicket(ctx context.Context, t *domain.Ticket) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	t.UpdatedAt = time.Now()
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "project_key"}, {Name: "number"}},
		UpdateAll: true,
	}).Create(t).Error
}

// UpsertCrossLink records a PR<->ticket relationship, keyed by the pair.
// Re-linking the same pair is a no-op.
func (r *RemoteRepository) UpsertCrossLink(ctx context.Context, prKey, ticketKey string) error {
	link := &domain.CrossLink{
		ID:        uuid.New().String(),
		PRKey:     prKey,
		TicketKey: ticketKey,
		CreatedAt: time.Now(),
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "pr_key"}, {Name: "ticket_key"}},
		DoNothing: true,
	}).Create(link).Error
}

// ListCrossLinks returns all links touching the given natural key.
func (r *RemoteRepository) ListCrossLinks(ctx context.Context, key string) ([]domain.CrossLink, error) {
	var links []domain.CrossLink
	err := r.db.WithContext(ctx).
		Where("pr_key = ? OR ticket_key = ?", key, key).
		Find(&links).Error
	if err != nil {
		return nil, err
	}
	return links, nil
}
