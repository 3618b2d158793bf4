package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ============================================
	// Relay authorization metrics
	// ============================================
	RelayRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relayer_relay_requests_total",
			Help: "Total number of relay requests received",
		},
		[]string{"variant"},
	)

	RelayRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relayer_relay_rejections_total",
			Help: "Total number of relay requests rejected by authorization",
		},
		[]string{"reason"},
	)

	// ============================================
	// Transaction queue metrics
	// ============================================
	QueueEnqueuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relayer_queue_enqueued_total",
			Help: "Total number of transactions enqueued",
		},
		[]string{"extension"},
	)

	QueueWriteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relayer_queue_write_failures_total",
		Help: "Total number of durable enqueue writes that failed",
	})

	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "relayer_queue_depth",
			Help: "Number of transactions currently in the queued state",
		},
		[]string{"chain_id"},
	)

	// ============================================
	// Submission worker metrics
	// ============================================
	TransactionsSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relayer_transactions_submitted_total",
			Help: "Total number of transactions broadcast to the chain",
		},
		[]string{"chain_id"},
	)

	TransactionRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relayer_transaction_retries_total",
			Help: "Total number of transient-failure retries",
		},
		[]string{"chain_id"},
	)

	TransactionTerminal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relayer_transactions_terminal_total",
			Help: "Total number of transactions reaching a terminal state",
		},
		[]string{"chain_id", "status"},
	)

	SubmissionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relayer_submission_duration_seconds",
			Help:    "Time from lane pickup to broadcast",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"chain_id"},
	)

	// ============================================
	// Webhook & event metrics
	// ============================================
	WebhookDispatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relayer_webhook_dispatches_total",
			Help: "Total number of webhook notifications dispatched",
		},
		[]string{"event_type", "result"},
	)

	WebhookCacheReloads = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relayer_webhook_cache_reloads_total",
		Help: "Total number of full subscription reloads performed by the cache",
	})

	NATSPublishesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relayer_nats_publishes_total",
			Help: "Total number of lifecycle events published to NATS",
		},
		[]string{"event_type", "result"},
	)

	NATSConnectionStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relayer_nats_connection_status",
		Help: "NATS connection status (1=connected, 0=disconnected)",
	})

	// ============================================
	// Database metrics
	// ============================================
	DBConnectionActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relayer_db_connection_active",
		Help: "Number of active database connections",
	})

	DBConnectionIdle = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relayer_db_connection_idle",
		Help: "Number of idle database connections",
	})
)
