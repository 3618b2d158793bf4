package services

import (
	"context"
	"time"

	"go-relayer/internal/clients"
	"go-relayer/internal/models"

	"github.com/sirupsen/logrus"
)

// TransitionNotifier receives transaction lifecycle transitions from the
// submission worker. Implementations must never block submission: failures
// are logged and swallowed.
type TransitionNotifier interface {
	NotifyTransition(tx *models.QueuedTransaction)
}

// webhookSink delivers an event to webhook subscribers
type webhookSink interface {
	Notify(ctx context.Context, eventType string, payload *TransactionEventPayload)
}

// eventBus publishes an event to the message bus
type eventBus interface {
	PublishTransactionEvent(chainID uint64, eventType string, payload interface{}) error
}

// walletPush streams an event to a wallet's websocket connections
type walletPush interface {
	PushTransactionUpdate(queueID, wallet string, payload interface{})
}

// NotificationDispatcher fans a lifecycle transition out to webhook
// subscribers, the NATS bus, and connected websocket clients. Webhooks fire
// only on the mined/confirmed/errored transitions; NATS and websocket
// streams carry every transition.
type NotificationDispatcher struct {
	webhooks webhookSink
	nats     eventBus   // optional
	push     walletPush // optional
	timeout  time.Duration
}

// NewNotificationDispatcher creates the dispatcher. nats and push may be nil
// when the corresponding transport is not configured.
func NewNotificationDispatcher(webhooks *WebhookNotifier, nats *clients.NATSClient, push *WebSocketPushService) *NotificationDispatcher {
	d := &NotificationDispatcher{timeout: 30 * time.Second}
	if webhooks != nil {
		d.webhooks = webhooks
	}
	if nats != nil {
		d.nats = nats
	}
	if push != nil {
		d.push = push
	}
	return d
}

// NotifyTransition dispatches asynchronously and returns immediately
func (d *NotificationDispatcher) NotifyTransition(tx *models.QueuedTransaction) {
	eventType := tx.Status.EventType()
	if eventType == "" {
		return
	}

	payload := &TransactionEventPayload{
		QueueID:     tx.ID,
		EventType:   eventType,
		ChainID:     tx.ChainID,
		Extension:   tx.Extension,
		Status:      string(tx.Status),
		Wallet:      tx.WalletAddress,
		TxHash:      tx.TxHash,
		BlockNumber: tx.BlockNumber,
		RetryCount:  tx.RetryCount,
		LastError:   tx.LastError,
		Timestamp:   time.Now(),
	}

	go d.dispatch(tx, eventType, payload)
}

func (d *NotificationDispatcher) dispatch(tx *models.QueuedTransaction, eventType string, payload *TransactionEventPayload) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	if d.nats != nil {
		if err := d.nats.PublishTransactionEvent(tx.ChainID, eventType, payload); err != nil {
			logrus.WithError(err).WithField("queue_id", tx.ID).Warn("NATS lifecycle publish failed")
		}
	}

	if d.push != nil {
		d.push.PushTransactionUpdate(tx.ID, tx.WalletAddress, payload)
	}

	switch tx.Status {
	case models.QueuedTransactionStatusMined,
		models.QueuedTransactionStatusConfirmed,
		models.QueuedTransactionStatusErrored:
		if d.webhooks != nil {
			d.webhooks.Notify(ctx, eventType, payload)
		}
	}
}
