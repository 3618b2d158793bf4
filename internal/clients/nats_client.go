package clients

import (
	"encoding/json"
	"fmt"
	"time"

	"go-relayer/internal/config"
	"go-relayer/internal/metrics"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

// NATSClient publishes transaction lifecycle events. Publishing is
// best-effort: a down broker never blocks the submission worker.
type NATSClient struct {
	conn          *nats.Conn
	subjectPrefix string
}

// NewNATSClient connects to the NATS server
func NewNATSClient(cfg *config.NATSConfig) (*NATSClient, error) {
	connectTimeout := 10 * time.Second
	if cfg.Timeout > 0 {
		connectTimeout = time.Duration(cfg.Timeout) * time.Second
	}
	reconnectWait := 5 * time.Second
	if cfg.ReconnectWait > 0 {
		reconnectWait = time.Duration(cfg.ReconnectWait) * time.Second
	}
	maxReconnects := -1
	if cfg.MaxReconnects > 0 {
		maxReconnects = cfg.MaxReconnects
	}

	conn, err := nats.Connect(cfg.URL,
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logrus.WithError(err).Warn("NATS disconnected")
			metrics.NATSConnectionStatus.Set(0)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logrus.Info("NATS reconnected")
			metrics.NATSConnectionStatus.Set(1)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	metrics.NATSConnectionStatus.Set(1)

	prefix := cfg.SubjectPrefix
	if prefix == "" {
		prefix = "relayer"
	}

	return &NATSClient{
		conn:          conn,
		subjectPrefix: prefix,
	}, nil
}

// PublishTransactionEvent publishes a lifecycle event on
// <prefix>.<chainID>.tx.<eventType>
func (c *NATSClient) PublishTransactionEvent(chainID uint64, eventType string, payload interface{}) error {
	subject := fmt.Sprintf("%s.%d.tx.%s", c.subjectPrefix, chainID, eventType)

	data, err := json.Marshal(payload)
	if err != nil {
		metrics.NATSPublishesTotal.WithLabelValues(eventType, "error").Inc()
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}

	if err := c.conn.Publish(subject, data); err != nil {
		metrics.NATSPublishesTotal.WithLabelValues(eventType, "error").Inc()
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}

	metrics.NATSPublishesTotal.WithLabelValues(eventType, "ok").Inc()
	return nil
}

// Close drains and closes the connection
func (c *NATSClient) Close() {
	if c.conn != nil {
		c.conn.Close()
	}
}
