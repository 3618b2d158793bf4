package db

import (
	"fmt"
	"time"

	"go-relayer/internal/config"
	"go-relayer/internal/metrics"
	"go-relayer/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// InitDB connects to postgres and migrates the relayer schema
func InitDB() error {
	if config.AppConfig == nil || config.AppConfig.Database.DSN == "" {
		return fmt.Errorf("database DSN is required")
	}

	dsn := config.AppConfig.Database.DSN

	var err error
	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		SkipDefaultTransaction:                   true,
		PrepareStmt:                              true,
		Logger:                                   logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return fmt.Errorf("failed to connect database: %w", err)
	}

	sqlDB, err := DB.DB()
	if err != nil {
		return fmt.Errorf("failed to access sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(time.Hour)

	logrus.Info("Database connected")

	if err := DB.AutoMigrate(
		&models.Relayer{},
		&models.WebhookSubscription{},
		&models.QueuedTransaction{},
	); err != nil {
		return fmt.Errorf("auto migrate failed: %w", err)
	}

	if err := RunDataMigrations(sqlDB); err != nil {
		return fmt.Errorf("data migrations failed: %w", err)
	}

	logrus.Info("Database schema migrated")
	return nil
}

// ReportPoolStats samples connection pool gauges until stop is closed
func ReportPoolStats(stop <-chan struct{}) {
	sqlDB, err := DB.DB()
	if err != nil {
		return
	}

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			stats := sqlDB.Stats()
			metrics.DBConnectionActive.Set(float64(stats.InUse))
			metrics.DBConnectionIdle.Set(float64(stats.Idle))
		}
	}
}
