package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go-relayer/internal/models"

	"github.com/lib/pq"
	"gorm.io/gorm"
)

// ErrStaleStatus a conditional status transition found the record in a
// different state than expected. The caller lost the race and must re-read.
var ErrStaleStatus = errors.New("stale status transition")

// QueuedTransactionRepository defines the interface for QueuedTransaction data access
type QueuedTransactionRepository interface {
	Create(ctx context.Context, tx *models.QueuedTransaction) error
	GetByID(ctx context.Context, id string) (*models.QueuedTransaction, error)

	// NextQueued returns the oldest queued record for a lane, including one
	// still inside its retry delay: the lane head must keep its place so a
	// younger record never consumes an earlier nonce. Returns ErrNotFound
	// when the lane is empty.
	NextQueued(ctx context.Context, wallet string, chainID uint64) (*models.QueuedTransaction, error)

	// FindByStatus returns all records in the given statuses
	FindByStatus(ctx context.Context, statuses ...models.QueuedTransactionStatus) ([]*models.QueuedTransaction, error)

	// FindSubmittedBefore returns submitted records whose broadcast is older
	// than the cutoff, for receipt polling
	FindSubmittedBefore(ctx context.Context, cutoff time.Time) ([]*models.QueuedTransaction, error)

	// FindByWallet paginated listing for the status API
	FindByWallet(ctx context.Context, wallet string, chainID uint64, page, pageSize int) ([]*models.QueuedTransaction, int64, error)

	// TransitionStatus applies a conditional status transition: the update
	// only lands if the record is currently in one of the expected statuses.
	// Extra columns ride along in updates. Returns ErrStaleStatus when the
	// record moved first, so workers never race terminal states.
	TransitionStatus(ctx context.Context, id string, from []models.QueuedTransactionStatus, to models.QueuedTransactionStatus, updates map[string]interface{}) error

	// RecordRetry increments the attempt counter and schedules the next try.
	// Conditional on the record still being queued, so a concurrent operator
	// cancel is never undone; returns ErrStaleStatus when the record moved.
	RecordRetry(ctx context.Context, id string, lastError string, nextRetryAt time.Time) error

	CountByStatus(ctx context.Context, chainID uint64, status models.QueuedTransactionStatus) (int64, error)
}

// queuedTransactionRepository implements QueuedTransactionRepository
type queuedTransactionRepository struct {
	db *gorm.DB
}

// NewQueuedTransactionRepository creates a new QueuedTransactionRepository instance
func NewQueuedTransactionRepository(db *gorm.DB) QueuedTransactionRepository {
	return &queuedTransactionRepository{db: db}
}

func (r *queuedTransactionRepository) Create(ctx context.Context, tx *models.QueuedTransaction) error {
	if err := r.db.WithContext(ctx).Create(tx).Error; err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			// Queue IDs are freshly minted UUIDs; a collision here means the
			// caller reused an identifier, not a payload duplicate.
			return fmt.Errorf("queue identifier already exists: %w", err)
		}
		return err
	}
	return nil
}

func (r *queuedTransactionRepository) GetByID(ctx context.Context, id string) (*models.QueuedTransaction, error) {
	var tx models.QueuedTransaction
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&tx).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &tx, nil
}

func (r *queuedTransactionRepository) NextQueued(ctx context.Context, wallet string, chainID uint64) (*models.QueuedTransaction, error) {
	var tx models.QueuedTransaction
	err := r.db.WithContext(ctx).
		Where("wallet_address = ? AND chain_id = ? AND status = ?", wallet, chainID, models.QueuedTransactionStatusQueued).
		Order("created_at ASC").
		First(&tx).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &tx, nil
}

func (r *queuedTransactionRepository) FindByStatus(ctx context.Context, statuses ...models.QueuedTransactionStatus) ([]*models.QueuedTransaction, error) {
	var txs []*models.QueuedTransaction
	if err := r.db.WithContext(ctx).
		Where("status IN ?", statuses).
		Order("created_at ASC").
		Find(&txs).Error; err != nil {
		return nil, err
	}
	return txs, nil
}

func (r *queuedTransactionRepository) FindSubmittedBefore(ctx context.Context, cutoff time.Time) ([]*models.QueuedTransaction, error) {
	var txs []*models.QueuedTransaction
	if err := r.db.WithContext(ctx).
		Where("status IN ? AND submitted_at < ?",
			[]models.QueuedTransactionStatus{models.QueuedTransactionStatusSubmitted, models.QueuedTransactionStatusMined},
			cutoff).
		Order("submitted_at ASC").
		Find(&txs).Error; err != nil {
		return nil, err
	}
	return txs, nil
}

func (r *queuedTransactionRepository) FindByWallet(ctx context.Context, wallet string, chainID uint64, page, pageSize int) ([]*models.QueuedTransaction, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.QueuedTransaction{}).Where("wallet_address = ?", wallet)
	if chainID != 0 {
		query = query.Where("chain_id = ?", chainID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	var txs []*models.QueuedTransaction
	if err := query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&txs).Error; err != nil {
		return nil, 0, err
	}
	return txs, total, nil
}

func (r *queuedTransactionRepository) TransitionStatus(ctx context.Context, id string, from []models.QueuedTransactionStatus, to models.QueuedTransactionStatus, updates map[string]interface{}) error {
	if updates == nil {
		updates = make(map[string]interface{})
	}
	updates["status"] = to
	updates["updated_at"] = time.Now()

	result := r.db.WithContext(ctx).
		Model(&models.QueuedTransaction{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrStaleStatus
	}
	return nil
}

func (r *queuedTransactionRepository) RecordRetry(ctx context.Context, id string, lastError string, nextRetryAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&models.QueuedTransaction{}).
		Where("id = ? AND status = ?", id, models.QueuedTransactionStatusQueued).
		Updates(map[string]interface{}{
			"retry_count":   gorm.Expr("retry_count + 1"),
			"last_error":    lastError,
			"next_retry_at": nextRetryAt,
			"updated_at":    time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrStaleStatus
	}
	return nil
}

func (r *queuedTransactionRepository) CountByStatus(ctx context.Context, chainID uint64, status models.QueuedTransactionStatus) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.QueuedTransaction{}).
		Where("chain_id = ? AND status = ?", chainID, status).
		Count(&count).Error
	return count, err
}
