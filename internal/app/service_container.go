package app

import (
	"fmt"
	"sync"

	"go-relayer/internal/clients"
	"go-relayer/internal/config"
	"go-relayer/internal/db"
	"go-relayer/internal/repository"
	"go-relayer/internal/services"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ServiceContainer wires the full dependency graph: repositories, chain
// clients, the authorization and queue services, the submission worker, and
// the notification fan-out.
type ServiceContainer struct {
	DB *gorm.DB

	// Repositories
	RelayerRepo repository.RelayerRepository
	QueueRepo   repository.QueuedTransactionRepository
	WebhookRepo repository.WebhookSubscriptionRepository

	// Clients
	ChainClient *clients.ChainClient
	NATSClient  *clients.NATSClient

	// Core services
	AuthorizationService *services.AuthorizationService
	QueueService         *services.TransactionQueueService
	SubmissionWorker     *services.SubmissionWorker

	// Notification services
	WebhookCache         *services.WebhookCacheService
	WebhookNotifier      *services.WebhookNotifier
	WebSocketPushService *services.WebSocketPushService
	Dispatcher           *services.NotificationDispatcher

	natsOnce  sync.Once
	statsStop chan struct{}
}

// Global service container instance
var Container *ServiceContainer
var containerOnce sync.Once

// InitializeContainer builds the container once
func InitializeContainer() (*ServiceContainer, error) {
	var initErr error

	containerOnce.Do(func() {
		logrus.Info("Initializing service container")

		container := &ServiceContainer{DB: db.DB}

		container.initRepositories()

		if err := container.initClients(); err != nil {
			initErr = fmt.Errorf("failed to initialize clients: %w", err)
			return
		}

		container.initServices()

		Container = container
		logrus.Info("Service container initialized")
	})

	return Container, initErr
}

func (c *ServiceContainer) initRepositories() {
	c.RelayerRepo = repository.NewRelayerRepository(c.DB)
	c.QueueRepo = repository.NewQueuedTransactionRepository(c.DB)
	c.WebhookRepo = repository.NewWebhookSubscriptionRepository(c.DB)
}

func (c *ServiceContainer) initClients() error {
	c.ChainClient = clients.NewChainClient()
	if err := c.ChainClient.InitializeClients(); err != nil {
		// Submission and forwarder verification need a chain; intake alone
		// does not, so start degraded rather than refuse to boot.
		logrus.WithError(err).Warn("Blockchain clients not initialized, submission will fail until RPC is reachable")
	} else {
		logrus.WithField("chains", c.ChainClient.ChainIDs()).Info("Blockchain clients initialized")
	}

	// NATS is optional
	c.natsOnce.Do(func() {
		if config.AppConfig == nil || config.AppConfig.NATS.URL == "" {
			logrus.Info("NATS not configured, event publishing disabled")
			return
		}
		natsClient, err := clients.NewNATSClient(&config.AppConfig.NATS)
		if err != nil {
			logrus.WithError(err).Warn("Failed to connect to NATS, event publishing disabled")
			return
		}
		c.NATSClient = natsClient
	})

	return nil
}

func (c *ServiceContainer) initServices() {
	c.WebSocketPushService = services.NewWebSocketPushService()

	c.WebhookCache = services.NewWebhookCacheService(c.WebhookRepo)
	c.WebhookNotifier = services.NewWebhookNotifier(c.WebhookCache, config.AppConfig.Webhooks.Timeout())

	c.Dispatcher = services.NewNotificationDispatcher(c.WebhookNotifier, c.NATSClient, c.WebSocketPushService)

	c.AuthorizationService = services.NewAuthorizationService(c.RelayerRepo, c.ChainClient)
	c.QueueService = services.NewTransactionQueueService(c.QueueRepo)

	c.SubmissionWorker = services.NewSubmissionWorker(c.QueueRepo, c.ChainClient, c.Dispatcher, &config.AppConfig.Relay)
	c.QueueService.SetTrigger(c.SubmissionWorker)
}

// Start launches the background workers
func (c *ServiceContainer) Start() {
	c.SubmissionWorker.Start()

	c.statsStop = make(chan struct{})
	go db.ReportPoolStats(c.statsStop)
}

// Cleanup stops workers and closes external connections
func (c *ServiceContainer) Cleanup() {
	logrus.Info("Cleaning up service container")

	if c.SubmissionWorker != nil {
		c.SubmissionWorker.Stop()
	}
	if c.statsStop != nil {
		close(c.statsStop)
	}
	if c.NATSClient != nil {
		c.NATSClient.Close()
	}

	logrus.Info("Service container cleaned up")
}
