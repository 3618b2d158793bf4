package repository

import (
	"context"
	"errors"

	"go-relayer/internal/models"

	"gorm.io/gorm"
)

// WebhookSubscriptionRepository defines the interface for WebhookSubscription data access
type WebhookSubscriptionRepository interface {
	Create(ctx context.Context, sub *models.WebhookSubscription) error
	GetByID(ctx context.Context, id string) (*models.WebhookSubscription, error)
	Update(ctx context.Context, sub *models.WebhookSubscription) error
	Delete(ctx context.Context, id string) error

	// ListAll returns the entire subscription table. The webhook cache reloads
	// through this on every miss or forced refresh; subscription sets are small
	// so a full fetch is acceptable.
	ListAll(ctx context.Context) ([]*models.WebhookSubscription, error)
}

// webhookSubscriptionRepository implements WebhookSubscriptionRepository
type webhookSubscriptionRepository struct {
	db *gorm.DB
}

// NewWebhookSubscriptionRepository creates a new WebhookSubscriptionRepository instance
func NewWebhookSubscriptionRepository(db *gorm.DB) WebhookSubscriptionRepository {
	return &webhookSubscriptionRepository{db: db}
}

func (r *webhookSubscriptionRepository) Create(ctx context.Context, sub *models.WebhookSubscription) error {
	return r.db.WithContext(ctx).Create(sub).Error
}

func (r *webhookSubscriptionRepository) GetByID(ctx context.Context, id string) (*models.WebhookSubscription, error) {
	var sub models.WebhookSubscription
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &sub, nil
}

func (r *webhookSubscriptionRepository) Update(ctx context.Context, sub *models.WebhookSubscription) error {
	return r.db.WithContext(ctx).Save(sub).Error
}

func (r *webhookSubscriptionRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Delete(&models.WebhookSubscription{}, "id = ?", id).Error
}

func (r *webhookSubscriptionRepository) ListAll(ctx context.Context) ([]*models.WebhookSubscription, error) {
	var subs []*models.WebhookSubscription
	if err := r.db.WithContext(ctx).Order("created_at ASC").Find(&subs).Error; err != nil {
		return nil, err
	}
	return subs, nil
}
