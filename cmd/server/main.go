package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go-relayer/internal/app"
	"go-relayer/internal/config"
	"go-relayer/internal/db"
	"go-relayer/internal/handlers"
	"go-relayer/internal/router"

	"github.com/sirupsen/logrus"
)

func main() {
	logrus.SetFormatter(&logrus.JSONFormatter{})
	if level, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil {
		logrus.SetLevel(level)
	}

	if err := config.LoadConfig(); err != nil {
		logrus.WithError(err).Fatal("Failed to load config")
	}

	if err := db.InitDB(); err != nil {
		logrus.WithError(err).Fatal("Failed to initialize database")
	}

	container, err := app.InitializeContainer()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialize service container")
	}
	container.Start()

	h := &router.Handlers{
		Relay:        handlers.NewRelayHandler(container.AuthorizationService, container.QueueService),
		Transaction:  handlers.NewTransactionHandler(container.QueueService),
		Relayer:      handlers.NewRelayerHandler(container.RelayerRepo, container.ChainClient),
		WebhookAdmin: handlers.NewWebhookAdminHandler(container.WebhookRepo, container.WebhookCache),
		AdminAuth:    handlers.NewAdminAuthHandler(&config.AppConfig.Admin),
		WebSocket:    handlers.NewWebSocketHandler(container.WebSocketPushService),
	}

	engine := router.SetupRouter(h)

	addr := fmt.Sprintf("%s:%d", config.AppConfig.Server.Host, config.AppConfig.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: engine,
	}

	go func() {
		logrus.WithField("addr", addr).Info("Relayer server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Fatal("Server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logrus.WithError(err).Error("Server shutdown failed")
	}

	container.Cleanup()
	logrus.Info("Shutdown complete")
}
