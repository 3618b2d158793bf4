package repository

import (
	"context"
	"errors"

	"go-relayer/internal/models"

	"gorm.io/gorm"
)

// ErrNotFound record does not exist
var ErrNotFound = errors.New("record not found")

// RelayerRepository defines the interface for Relayer data access
type RelayerRepository interface {
	Create(ctx context.Context, relayer *models.Relayer) error
	GetByID(ctx context.Context, id string) (*models.Relayer, error)
	Update(ctx context.Context, relayer *models.Relayer) error
	List(ctx context.Context) ([]*models.Relayer, error)
}

// relayerRepository implements RelayerRepository
type relayerRepository struct {
	db *gorm.DB
}

// NewRelayerRepository creates a new RelayerRepository instance
func NewRelayerRepository(db *gorm.DB) RelayerRepository {
	return &relayerRepository{db: db}
}

func (r *relayerRepository) Create(ctx context.Context, relayer *models.Relayer) error {
	return r.db.WithContext(ctx).Create(relayer).Error
}

func (r *relayerRepository) GetByID(ctx context.Context, id string) (*models.Relayer, error) {
	var relayer models.Relayer
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&relayer).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &relayer, nil
}

func (r *relayerRepository) Update(ctx context.Context, relayer *models.Relayer) error {
	return r.db.WithContext(ctx).Save(relayer).Error
}

func (r *relayerRepository) List(ctx context.Context) ([]*models.Relayer, error) {
	var relayers []*models.Relayer
	if err := r.db.WithContext(ctx).Order("created_at ASC").Find(&relayers).Error; err != nil {
		return nil, err
	}
	return relayers, nil
}
