package services

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"time"

	"go-relayer/internal/metrics"
	"go-relayer/internal/models"

	"github.com/sirupsen/logrus"
)

// TransactionEventPayload the body delivered to webhook subscribers and
// published to NATS on a lifecycle transition
type TransactionEventPayload struct {
	QueueID     string    `json:"queue_id"`
	EventType   string    `json:"event_type"`
	ChainID     uint64    `json:"chain_id"`
	Extension   string    `json:"extension"`
	Status      string    `json:"status"`
	Wallet      string    `json:"wallet_address"`
	TxHash      string    `json:"tx_hash,omitempty"`
	BlockNumber *uint64   `json:"block_number,omitempty"`
	RetryCount  int       `json:"retry_count"`
	LastError   string    `json:"last_error,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// WebhookNotifier delivers lifecycle events to subscribed endpoints.
// Dispatch is fire-and-forget: failures are logged and counted, and never
// influence the transaction's own state.
type WebhookNotifier struct {
	cache      *WebhookCacheService
	httpClient *http.Client
}

// NewWebhookNotifier creates a notifier backed by the subscription cache
func NewWebhookNotifier(cache *WebhookCacheService, timeout time.Duration) *WebhookNotifier {
	return &WebhookNotifier{
		cache:      cache,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Notify looks up the active subscribers for the event type and posts the
// payload to each. Blocking; callers wrap it in a goroutine.
func (n *WebhookNotifier) Notify(ctx context.Context, eventType string, payload *TransactionEventPayload) {
	subs, err := n.cache.Get(ctx, eventType, true)
	if err != nil {
		logrus.WithError(err).WithField("event_type", eventType).Warn("Webhook subscriber lookup failed")
		return
	}
	if len(subs) == 0 {
		return
	}

	body, err := json.Marshal(payload)
	if err != nil {
		logrus.WithError(err).WithField("event_type", eventType).Warn("Webhook payload marshal failed")
		return
	}

	for _, sub := range subs {
		n.dispatch(ctx, sub, eventType, body)
	}
}

func (n *WebhookNotifier) dispatch(ctx context.Context, sub models.WebhookSubscription, eventType string, body []byte) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.URL, bytes.NewReader(body))
	if err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"subscription": sub.ID,
			"event_type":   eventType,
		}).Warn("Webhook request build failed")
		metrics.WebhookDispatchesTotal.WithLabelValues(eventType, "error").Inc()
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Relayer-Event", eventType)
	if sub.Secret != "" {
		req.Header.Set("X-Relayer-Signature", signPayload(sub.Secret, body))
	}

	resp, err := n.httpClient.Do(req)
	if err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"subscription": sub.ID,
			"url":          sub.URL,
			"event_type":   eventType,
		}).Warn("Webhook dispatch failed")
		metrics.WebhookDispatchesTotal.WithLabelValues(eventType, "error").Inc()
		return
	}
	resp.Body.Close()

	if resp.StatusCode >= 300 {
		logrus.WithFields(logrus.Fields{
			"subscription": sub.ID,
			"url":          sub.URL,
			"event_type":   eventType,
			"status_code":  resp.StatusCode,
		}).Warn("Webhook endpoint returned non-2xx")
		metrics.WebhookDispatchesTotal.WithLabelValues(eventType, "rejected").Inc()
		return
	}

	metrics.WebhookDispatchesTotal.WithLabelValues(eventType, "ok").Inc()
}

// signPayload computes the HMAC-SHA256 hex signature subscribers use to
// authenticate deliveries
func signPayload(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
