package main

import (
	"fmt"
	"log"

	"go-relayer/internal/config"
	"go-relayer/internal/db"
	"go-relayer/internal/models"
)

// Connects with the configured DSN, runs migrations, and prints row counts
// for the relayer tables. Quick smoke test for a new deployment.
func main() {
	if err := config.LoadConfig(); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := db.InitDB(); err != nil {
		log.Fatalf("Failed to connect database: %v", err)
	}

	sqlDB, err := db.DB.DB()
	if err != nil {
		log.Fatalf("Failed to get database connection: %v", err)
	}
	defer sqlDB.Close()

	var dbName string
	if err := sqlDB.QueryRow("SELECT current_database()").Scan(&dbName); err != nil {
		log.Fatalf("Failed to get database name: %v", err)
	}
	fmt.Printf("Connected to database: %s\n", dbName)

	tables := []struct {
		name  string
		model interface{}
	}{
		{"relayers", &models.Relayer{}},
		{"webhook_subscriptions", &models.WebhookSubscription{}},
		{"queued_transactions", &models.QueuedTransaction{}},
	}
	for _, table := range tables {
		var count int64
		if err := db.DB.Model(table.model).Count(&count).Error; err != nil {
			log.Fatalf("Failed to count %s: %v", table.name, err)
		}
		fmt.Printf("%-25s %d rows\n", table.name, count)
	}

	var queued int64
	if err := db.DB.Model(&models.QueuedTransaction{}).
		Where("status IN ?", []models.QueuedTransactionStatus{
			models.QueuedTransactionStatusQueued,
			models.QueuedTransactionStatusSubmitted,
			models.QueuedTransactionStatusMined,
		}).Count(&queued).Error; err != nil {
		log.Fatalf("Failed to count in-flight transactions: %v", err)
	}
	fmt.Printf("\nIn-flight transactions: %d\n", queued)
}
