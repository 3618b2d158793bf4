package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go-relayer/internal/metrics"
	"go-relayer/internal/models"
	"go-relayer/internal/repository"
	"go-relayer/internal/utils"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// SubmissionTrigger wakes the submission lane for a wallet+chain pair after
// an enqueue. Implemented by the submission worker.
type SubmissionTrigger interface {
	Wake(wallet string, chainID uint64)
}

// TransactionQueueService accepts prepared transaction intents and durably
// records them under freshly minted identifiers. Enqueue never blocks on
// network submission; the submission worker drains the records later.
//
// The queue performs no deduplication by payload content: two structurally
// identical intents produce two independent records. A content fingerprint
// is stored for operator diagnosis of upstream retries.
type TransactionQueueService struct {
	repo    repository.QueuedTransactionRepository
	trigger SubmissionTrigger
}

// NewTransactionQueueService creates the queue service
func NewTransactionQueueService(repo repository.QueuedTransactionRepository) *TransactionQueueService {
	return &TransactionQueueService{repo: repo}
}

// SetTrigger injects the submission worker wake-up. Optional; without it
// records wait for the worker's periodic sweep.
func (s *TransactionQueueService) SetTrigger(trigger SubmissionTrigger) {
	s.trigger = trigger
}

// Enqueue durably records a transaction intent and returns its queue
// identifier. The write completing is the acceptance guarantee; on failure
// the caller gets ErrQueueWriteFailure, retryable and distinct from any
// authorization failure.
func (s *TransactionQueueService) Enqueue(ctx context.Context, intent *TransactionIntent, extension string) (string, error) {
	wallet := utils.NormalizeAddress(intent.Wallet)
	value := "0"
	if intent.Value != nil {
		value = intent.Value.String()
	}

	record := &models.QueuedTransaction{
		ID:            uuid.New().String(),
		ChainID:       intent.ChainID,
		Extension:     extension,
		Status:        models.QueuedTransactionStatusQueued,
		WalletAddress: wallet,
		ToAddress:     utils.NormalizeAddress(intent.To.Hex()),
		Data:          hexutil.Encode(intent.Data),
		Value:         value,
		Fingerprint:   utils.IntentFingerprint(intent.ChainID, wallet, intent.To.Hex(), intent.Data),
		MaxRetries:    3,
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}

	if err := s.repo.Create(ctx, record); err != nil {
		metrics.QueueWriteFailures.Inc()
		return "", fmt.Errorf("%w: %v", ErrQueueWriteFailure, err)
	}

	metrics.QueueEnqueuedTotal.WithLabelValues(extension).Inc()
	logrus.WithFields(logrus.Fields{
		"queue_id":  record.ID,
		"chain_id":  record.ChainID,
		"wallet":    record.WalletAddress,
		"extension": extension,
	}).Info("Transaction enqueued")

	if s.trigger != nil {
		s.trigger.Wake(wallet, intent.ChainID)
	}
	return record.ID, nil
}

// GetStatus returns the current state of a queued transaction
func (s *TransactionQueueService) GetStatus(ctx context.Context, queueID string) (*models.QueuedTransaction, error) {
	return s.repo.GetByID(ctx, queueID)
}

// ListByWallet returns a paginated view of a wallet's transactions
func (s *TransactionQueueService) ListByWallet(ctx context.Context, wallet string, chainID uint64, page, pageSize int) ([]*models.QueuedTransaction, int64, error) {
	return s.repo.FindByWallet(ctx, utils.NormalizeAddress(wallet), chainID, page, pageSize)
}

// Cancel removes a record from the queue before submission. Only records
// still in queued may be cancelled; anything later is already broadcast.
func (s *TransactionQueueService) Cancel(ctx context.Context, queueID string) error {
	if _, err := s.repo.GetByID(ctx, queueID); err != nil {
		return err
	}

	err := s.repo.TransitionStatus(ctx, queueID,
		[]models.QueuedTransactionStatus{models.QueuedTransactionStatusQueued},
		models.QueuedTransactionStatusCancelled,
		map[string]interface{}{"last_error": "cancelled by operator"},
	)
	if errors.Is(err, repository.ErrStaleStatus) {
		return fmt.Errorf("transaction %s is no longer queued and cannot be cancelled: %w", queueID, repository.ErrStaleStatus)
	}
	return err
}
