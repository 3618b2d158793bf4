package db

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// DataMigration is a one-shot data fix applied after the schema migration.
// Applied versions are recorded in schema_migrations_log so each runs once.
type DataMigration struct {
	Version     string
	Description string
	Up          func(*sql.DB) error
}

func dataMigrations() []DataMigration {
	return []DataMigration{
		{
			Version:     "data_001",
			Description: "Normalize stored addresses to lowercase",
			Up:          normalizeStoredAddresses,
		},
	}
}

// normalizeStoredAddresses lowercases address columns written before
// normalization happened at the service boundary. Lookups compare
// normalized values, so mixed-case rows would never match.
func normalizeStoredAddresses(db *sql.DB) error {
	statements := []struct {
		table string
		query string
	}{
		{"relayers", `UPDATE relayers SET backend_wallet = LOWER(backend_wallet) WHERE backend_wallet <> LOWER(backend_wallet)`},
		{"queued_transactions", `UPDATE queued_transactions SET wallet_address = LOWER(wallet_address) WHERE wallet_address <> LOWER(wallet_address)`},
		{"queued_transactions", `UPDATE queued_transactions SET to_address = LOWER(to_address) WHERE to_address <> LOWER(to_address)`},
	}

	for _, stmt := range statements {
		result, err := db.Exec(stmt.query)
		if err != nil {
			return fmt.Errorf("failed to normalize addresses in %s: %w", stmt.table, err)
		}
		if rows, _ := result.RowsAffected(); rows > 0 {
			logrus.WithFields(logrus.Fields{
				"table": stmt.table,
				"rows":  rows,
			}).Info("Normalized stored addresses")
		}
	}
	return nil
}

// RunDataMigrations applies all pending data migrations in order
func RunDataMigrations(db *sql.DB) error {
	for _, migration := range dataMigrations() {
		var count int
		err := db.QueryRow(
			"SELECT COUNT(*) FROM schema_migrations_log WHERE version = $1",
			migration.Version,
		).Scan(&count)
		if err != nil {
			if !strings.Contains(err.Error(), "does not exist") {
				return err
			}
			createTableSQL := `
				CREATE TABLE IF NOT EXISTS schema_migrations_log (
					id SERIAL PRIMARY KEY,
					version VARCHAR(50) NOT NULL UNIQUE,
					description TEXT,
					executed_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
				)
			`
			if _, createErr := db.Exec(createTableSQL); createErr != nil {
				return createErr
			}
			count = 0
		}

		if count > 0 {
			continue
		}

		logrus.WithField("version", migration.Version).Info(migration.Description)
		if err := migration.Up(db); err != nil {
			return fmt.Errorf("data migration %s failed: %w", migration.Version, err)
		}

		_, err = db.Exec(
			"INSERT INTO schema_migrations_log (version, description) VALUES ($1, $2)",
			migration.Version, migration.Description,
		)
		if err != nil {
			return err
		}
	}
	return nil
}
