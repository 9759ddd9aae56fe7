package database

import (
	"fmt"

	"github.com/apex/log"
)

// CreateReportsTable creates the reports table if it doesn't exist. The
// unique key on normalized_product_name is load-bearing: it is what makes
// concurrent generations of the same keyword converge on one row.
func (d *Database) CreateReportsTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS reports (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		normalized_product_name VARCHAR(255) NOT NULL,
		product_name VARCHAR(500) NOT NULL,
		keyword VARCHAR(500) NOT NULL DEFAULT '',
		slug VARCHAR(500) NOT NULL,
		content JSON NOT NULL,
		score INT NOT NULL DEFAULT 50,
		category VARCHAR(64) NOT NULL DEFAULT 'Services',
		image_url VARCHAR(2048) DEFAULT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		UNIQUE KEY uq_reports_normalized_name (normalized_product_name),
		INDEX idx_reports_slug (slug),
		INDEX idx_reports_category (category)
	)`

	if _, err := d.db.Exec(query); err != nil {
		return fmt.Errorf("failed to create reports table: %w", err)
	}
	log.Info("reports table created/verified successfully")
	return nil
}

// CreateSubscribersTable creates the newsletter subscribers table.
func (d *Database) CreateSubscribersTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS subscribers (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		email VARCHAR(320) NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE KEY uq_subscribers_email (email)
	)`

	if _, err := d.db.Exec(query); err != nil {
		return fmt.Errorf("failed to create subscribers table: %w", err)
	}
	log.Info("subscribers table created/verified successfully")
	return nil
}

// columnExists checks if a column exists in a table.
func (d *Database) columnExists(tableName, columnName string) (bool, error) {
	query := `
	SELECT COUNT(*)
	FROM INFORMATION_SCHEMA.COLUMNS
	WHERE TABLE_SCHEMA = DATABASE()
	AND TABLE_NAME = ?
	AND COLUMN_NAME = ?`

	var count int
	if err := d.db.QueryRow(query, tableName, columnName).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check if column exists: %w", err)
	}
	return count > 0, nil
}

// indexExists checks if an index exists in a table.
func (d *Database) indexExists(tableName, indexName string) (bool, error) {
	query := `
	SELECT COUNT(*)
	FROM INFORMATION_SCHEMA.STATISTICS
	WHERE TABLE_SCHEMA = DATABASE()
	AND TABLE_NAME = ?
	AND INDEX_NAME = ?`

	var count int
	if err := d.db.QueryRow(query, tableName, indexName).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check if index exists: %w", err)
	}
	return count > 0, nil
}

// MigrateReportsTable upgrades schemas created before the keyword column
// and the normalized-name unique constraint existed.
func (d *Database) MigrateReportsTable() error {
	exists, err := d.columnExists("reports", "keyword")
	if err != nil {
		return fmt.Errorf("failed to check if keyword column exists: %w", err)
	}
	if !exists {
		log.Info("Adding keyword column to reports table...")
		if _, err := d.db.Exec(`ALTER TABLE reports ADD COLUMN keyword VARCHAR(500) NOT NULL DEFAULT ''`); err != nil {
			return fmt.Errorf("failed to add keyword column: %w", err)
		}
	}

	exists, err = d.indexExists("reports", "uq_reports_normalized_name")
	if err != nil {
		return fmt.Errorf("failed to check if unique index exists: %w", err)
	}
	if !exists {
		log.Info("Adding unique index on normalized_product_name...")
		if _, err := d.db.Exec(`ALTER TABLE reports ADD UNIQUE KEY uq_reports_normalized_name (normalized_product_name)`); err != nil {
			return fmt.Errorf("failed to add unique index: %w", err)
		}
	}
	return nil
}
