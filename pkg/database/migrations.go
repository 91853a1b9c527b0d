package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/alim08/tradesite/pkg/logger"
	"go.uber.org/zap"
)

// Migration represents a database migration. The SQL must run on both
// Postgres and SQLite.
type Migration struct {
	Version     int
	Description string
	UpSQL       string
	DownSQL     string
}

// Migrations holds all database migrations
var Migrations = []Migration{
	{
		Version:     1,
		Description: "Create contact messages",
		UpSQL: `
			CREATE TABLE IF NOT EXISTS contact_messages (
				id VARCHAR(36) PRIMARY KEY,
				name VARCHAR(200) NOT NULL,
				email VARCHAR(320) NOT NULL,
				subject VARCHAR(20) NOT NULL CHECK (subject IN ('general', 'technical', 'billing')),
				message TEXT NOT NULL,
				locale VARCHAR(8) NOT NULL DEFAULT '',
				created_at TIMESTAMP NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_contact_messages_created_at ON contact_messages(created_at);
		`,
		DownSQL: `
			DROP INDEX IF EXISTS idx_contact_messages_created_at;
			DROP TABLE IF EXISTS contact_messages;
		`,
	},
	{
		Version:     2,
		Description: "Index contact messages by email",
		UpSQL:       `CREATE INDEX IF NOT EXISTS idx_contact_messages_email ON contact_messages(email);`,
		DownSQL:     `DROP INDEX IF EXISTS idx_contact_messages_email;`,
	},
	{
		Version:     3,
		Description: "Accept partnership and other contact subjects",
		UpSQL: `
			CREATE TABLE contact_messages_next (
				id VARCHAR(36) PRIMARY KEY,
				name VARCHAR(200) NOT NULL,
				email VARCHAR(320) NOT NULL,
				subject VARCHAR(20) NOT NULL CHECK (subject IN ('general', 'technical', 'billing', 'partnership', 'other')),
				message TEXT NOT NULL,
				locale VARCHAR(8) NOT NULL DEFAULT '',
				created_at TIMESTAMP NOT NULL
			);
			INSERT INTO contact_messages_next (id, name, email, subject, message, locale, created_at)
				SELECT id, name, email, subject, message, locale, created_at FROM contact_messages;
			DROP TABLE contact_messages;
			ALTER TABLE contact_messages_next RENAME TO contact_messages;
			CREATE INDEX IF NOT EXISTS idx_contact_messages_created_at ON contact_messages(created_at);
			CREATE INDEX IF NOT EXISTS idx_contact_messages_email ON contact_messages(email);
		`,
		DownSQL: `
			CREATE TABLE contact_messages_next (
				id VARCHAR(36) PRIMARY KEY,
				name VARCHAR(200) NOT NULL,
				email VARCHAR(320) NOT NULL,
				subject VARCHAR(20) NOT NULL CHECK (subject IN ('general', 'technical', 'billing')),
				message TEXT NOT NULL,
				locale VARCHAR(8) NOT NULL DEFAULT '',
				created_at TIMESTAMP NOT NULL
			);
			INSERT INTO contact_messages_next (id, name, email, subject, message, locale, created_at)
				SELECT id, name, email, subject, message, locale, created_at FROM contact_messages
				WHERE subject IN ('general', 'technical', 'billing');
			DROP TABLE contact_messages;
			ALTER TABLE contact_messages_next RENAME TO contact_messages;
			CREATE INDEX IF NOT EXISTS idx_contact_messages_created_at ON contact_messages(created_at);
			CREATE INDEX IF NOT EXISTS idx_contact_messages_email ON contact_messages(email);
		`,
	},
}

// MigrationStatus represents the status of a migration
type MigrationStatus struct {
	Version     int       `json:"version"`
	Applied     bool      `json:"applied"`
	AppliedAt   time.Time `json:"applied_at,omitempty"`
	Description string    `json:"description"`
}

// RunMigrations runs all pending database migrations
func (db *DB) RunMigrations(ctx context.Context) error {
	logger.Log.Info("starting database migrations")

	if err := db.createMigrationsTable(ctx); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := db.getAppliedMigrations(ctx)
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}

	for _, migration := range Migrations {
		if _, ok := applied[migration.Version]; ok {
			logger.Log.Debug("migration already applied", zap.Int("version", migration.Version))
			continue
		}

		logger.Log.Info("applying migration",
			zap.Int("version", migration.Version),
			zap.String("description", migration.Description))

		if err := db.applyMigration(ctx, migration); err != nil {
			return fmt.Errorf("failed to apply migration %d: %w", migration.Version, err)
		}
	}

	logger.Log.Info("database migrations completed")
	return nil
}

func (db *DB) createMigrationsTable(ctx context.Context) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS migrations (
			version INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL
		);
	`)
	return err
}

// getAppliedMigrations maps each applied version to when it was applied.
func (db *DB) getAppliedMigrations(ctx context.Context) (map[int]time.Time, error) {
	rows, err := db.QueryContext(ctx, `SELECT version, applied_at FROM migrations ORDER BY version`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[int]time.Time)
	for rows.Next() {
		var version int
		var appliedAt time.Time
		if err := rows.Scan(&version, &appliedAt); err != nil {
			return nil, err
		}
		applied[version] = appliedAt
	}
	return applied, rows.Err()
}

func (db *DB) applyMigration(ctx context.Context, migration Migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, migration.UpSQL); err != nil {
		return fmt.Errorf("failed to execute migration SQL: %w", err)
	}

	query := db.Rebind(`INSERT INTO migrations (version, description, applied_at) VALUES (?, ?, ?)`)
	if _, err := tx.ExecContext(ctx, query, migration.Version, migration.Description, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}
	return tx.Commit()
}

// GetMigrationStatus reports every known migration in version order.
func (db *DB) GetMigrationStatus(ctx context.Context) ([]MigrationStatus, error) {
	applied, err := db.getAppliedMigrations(ctx)
	if err != nil {
		return nil, err
	}

	status := make([]MigrationStatus, 0, len(Migrations))
	for _, migration := range Migrations {
		appliedAt, ok := applied[migration.Version]
		status = append(status, MigrationStatus{
			Version:     migration.Version,
			Applied:     ok,
			AppliedAt:   appliedAt,
			Description: migration.Description,
		})
	}
	return status, nil
}

// Pending returns the number of migrations not yet applied.
func Pending(status []MigrationStatus) int {
	n := 0
	for _, ms := range status {
		if !ms.Applied {
			n++
		}
	}
	return n
}

// RollbackMigration rolls back the last applied migration
func (db *DB) RollbackMigration(ctx context.Context) error {
	var version int
	var description string
	err := db.QueryRowContext(ctx, `SELECT version, description FROM migrations ORDER BY version DESC LIMIT 1`).
		Scan(&version, &description)
	if err != nil {
		return fmt.Errorf("no migrations to rollback: %w", err)
	}

	var migration Migration
	for _, m := range Migrations {
		if m.Version == version {
			migration = m
			break
		}
	}
	if migration.Version == 0 {
		return fmt.Errorf("migration version %d not found", version)
	}

	logger.Log.Info("rolling back migration",
		zap.Int("version", version),
		zap.String("description", description))

	return db.Transaction(ctx, func(tx *sql.Tx) error {
		if migration.DownSQL != "" {
			if _, err := tx.ExecContext(ctx, migration.DownSQL); err != nil {
				return fmt.Errorf("failed to execute rollback SQL: %w", err)
			}
		}
		if _, err := tx.ExecContext(ctx, db.Rebind(`DELETE FROM migrations WHERE version = ?`), version); err != nil {
			return fmt.Errorf("failed to remove migration record: %w", err)
		}
		return nil
	})
}
