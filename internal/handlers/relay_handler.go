package handlers

import (
	"errors"
	"net/http"

	"go-relayer/internal/dto"
	"go-relayer/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// RelayHandler accepts meta-transaction relay requests: authorize
// synchronously, enqueue durably, return the queue ID. Execution happens
// asynchronously in the submission worker.
type RelayHandler struct {
	auth  *services.AuthorizationService
	queue *services.TransactionQueueService
}

// NewRelayHandler creates a new RelayHandler
func NewRelayHandler(auth *services.AuthorizationService, queue *services.TransactionQueueService) *RelayHandler {
	return &RelayHandler{auth: auth, queue: queue}
}

// Relay handles POST /api/v1/relayers/:relayerId/relay
func (h *RelayHandler) Relay(c *gin.Context) {
	relayerID := c.Param("relayerId")

	var req dto.RelayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.RelayErrorResponse{
			Error:   "invalid request body",
			Reason:  string(services.ReasonInvalidRequest),
			Message: err.Error(),
		})
		return
	}

	intent, err := h.auth.Authorize(c.Request.Context(), relayerID, &req)
	if err != nil {
		if rej, ok := services.AsRejection(err); ok {
			c.JSON(rejectionStatusCode(rej.Reason), dto.RelayErrorResponse{
				Error:   "relay request rejected",
				Reason:  string(rej.Reason),
				Message: rej.Message,
			})
			return
		}
		logrus.WithError(err).WithField("relayer_id", relayerID).Error("Authorization failed unexpectedly")
		c.JSON(http.StatusInternalServerError, dto.RelayErrorResponse{
			Error:   "internal error",
			Message: "authorization could not complete",
		})
		return
	}

	queueID, err := h.queue.Enqueue(c.Request.Context(), intent, string(req.Type))
	if err != nil {
		if errors.Is(err, services.ErrQueueWriteFailure) {
			// Authorized but not durably recorded; the caller may retry the
			// whole request.
			c.JSON(http.StatusServiceUnavailable, dto.RelayErrorResponse{
				Error:   "queue write failure",
				Reason:  "QUEUE_WRITE_FAILURE",
				Message: "transaction could not be queued, please retry",
			})
			return
		}
		logrus.WithError(err).WithField("relayer_id", relayerID).Error("Enqueue failed")
		c.JSON(http.StatusInternalServerError, dto.RelayErrorResponse{
			Error:   "internal error",
			Message: "transaction could not be queued",
		})
		return
	}

	c.JSON(http.StatusOK, dto.RelayResponse{QueueID: queueID})
}

// rejectionStatusCode maps a rejection reason to its HTTP status
func rejectionStatusCode(reason services.RejectionReason) int {
	switch reason {
	case services.ReasonRelayerNotFound:
		return http.StatusNotFound
	case services.ReasonUnauthorizedContract, services.ReasonUnauthorizedForwarder:
		return http.StatusForbidden
	default:
		return http.StatusBadRequest
	}
}
