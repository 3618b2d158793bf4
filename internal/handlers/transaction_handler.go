package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"go-relayer/internal/dto"
	"go-relayer/internal/models"
	"go-relayer/internal/repository"
	"go-relayer/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// TransactionHandler read access to the transaction queue plus the
// operator cancel
type TransactionHandler struct {
	queue *services.TransactionQueueService
}

// NewTransactionHandler creates a new TransactionHandler
func NewTransactionHandler(queue *services.TransactionQueueService) *TransactionHandler {
	return &TransactionHandler{queue: queue}
}

// GetStatus handles GET /api/v1/transactions/:queueId
func (h *TransactionHandler) GetStatus(c *gin.Context) {
	queueID := c.Param("queueId")

	tx, err := h.queue.GetStatus(c.Request.Context(), queueID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "transaction not found", "queue_id": queueID})
			return
		}
		logrus.WithError(err).WithField("queue_id", queueID).Error("Failed to load transaction")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load transaction"})
		return
	}

	c.JSON(http.StatusOK, statusResponse(tx))
}

// ListByWallet handles GET /api/v1/wallets/:address/transactions
func (h *TransactionHandler) ListByWallet(c *gin.Context) {
	wallet := c.Param("address")

	chainID, _ := strconv.ParseUint(c.Query("chain_id"), 10, 64)
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	txs, total, err := h.queue.ListByWallet(c.Request.Context(), wallet, chainID, page, pageSize)
	if err != nil {
		logrus.WithError(err).WithField("wallet", wallet).Error("Failed to list transactions")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list transactions"})
		return
	}

	responses := make([]*dto.TransactionStatusResponse, 0, len(txs))
	for _, tx := range txs {
		responses = append(responses, statusResponse(tx))
	}

	c.JSON(http.StatusOK, gin.H{
		"transactions": responses,
		"total":        total,
		"page":         page,
		"page_size":    pageSize,
	})
}

// Cancel handles DELETE /api/v1/admin/transactions/:queueId. Only queued
// records can be cancelled; anything already broadcast belongs to the chain.
func (h *TransactionHandler) Cancel(c *gin.Context) {
	queueID := c.Param("queueId")

	if err := h.queue.Cancel(c.Request.Context(), queueID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "transaction not found", "queue_id": queueID})
			return
		}
		if errors.Is(err, repository.ErrStaleStatus) {
			c.JSON(http.StatusConflict, gin.H{"error": "transaction is no longer queued", "queue_id": queueID})
			return
		}
		logrus.WithError(err).WithField("queue_id", queueID).Error("Failed to cancel transaction")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to cancel transaction"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"queue_id": queueID, "status": string(models.QueuedTransactionStatusCancelled)})
}

func statusResponse(tx *models.QueuedTransaction) *dto.TransactionStatusResponse {
	return &dto.TransactionStatusResponse{
		QueueID:     tx.ID,
		ChainID:     tx.ChainID,
		Extension:   tx.Extension,
		Status:      string(tx.Status),
		Wallet:      tx.WalletAddress,
		TxHash:      tx.TxHash,
		Nonce:       tx.Nonce,
		BlockNumber: tx.BlockNumber,
		RetryCount:  tx.RetryCount,
		LastError:   tx.LastError,
		CreatedAt:   tx.CreatedAt,
		UpdatedAt:   tx.UpdatedAt,
		SubmittedAt: tx.SubmittedAt,
		MinedAt:     tx.MinedAt,
		ConfirmedAt: tx.ConfirmedAt,
	}
}
