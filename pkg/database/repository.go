package database

import (
	"context"
	"fmt"
	"time"

	"github.com/alim08/tradesite/pkg/metrics"
	"github.com/alim08/tradesite/pkg/models"
	"github.com/google/uuid"
)

// ContactRepository defines the interface for contact message operations
type ContactRepository interface {
	Save(ctx context.Context, msg *models.ContactMessage) error
	ListRecent(ctx context.Context, limit int) ([]models.ContactMessage, error)
}

type contactRepository struct {
	db *DB
}

// NewContactRepository creates a new contact repository
func NewContactRepository(db *DB) ContactRepository {
	return &contactRepository{db: db}
}

// Save sanitizes, validates and stores msg, filling in ID and CreatedAt
// when they are empty.
func (r *contactRepository) Save(ctx context.Context, msg *models.ContactMessage) error {
	start := time.Now()
	status := "success"
	defer func() {
		metrics.DatabaseOperationDuration.WithLabelValues("save_contact", status).Observe(time.Since(start).Seconds())
	}()

	msg.Sanitize()
	if err := msg.Validate(); err != nil {
		status = "validation_error"
		return fmt.Errorf("contact message validation failed: %w", err)
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	query := r.db.Rebind(`
		INSERT INTO contact_messages (id, name, email, subject, message, locale, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if _, err := r.db.ExecContext(ctx, query,
		msg.ID, msg.Name, msg.Email, msg.Subject, msg.Message, msg.Locale, msg.CreatedAt); err != nil {
		status = "error"
		metrics.DatabaseErrors.WithLabelValues("save_contact").Inc()
		return fmt.Errorf("failed to save contact message: %w", err)
	}
	return nil
}

// ListRecent returns up to limit messages, newest first
func (r *contactRepository) ListRecent(ctx context.Context, limit int) ([]models.ContactMessage, error) {
	start := time.Now()
	status := "success"
	defer func() {
		metrics.DatabaseOperationDuration.WithLabelValues("list_contacts", status).Observe(time.Since(start).Seconds())
	}()

	if limit <= 0 {
		limit = 50
	}
	query := r.db.Rebind(`
		SELECT id, name, email, subject, message, locale, created_at
		FROM contact_messages
		ORDER BY created_at DESC
		LIMIT ?
	`)
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		status = "error"
		metrics.DatabaseErrors.WithLabelValues("list_contacts").Inc()
		return nil, fmt.Errorf("failed to query contact messages: %w", err)
	}
	defer rows.Close()

	var out []models.ContactMessage
	for rows.Next() {
		var m models.ContactMessage
		if err := rows.Scan(&m.ID, &m.Name, &m.Email, &m.Subject, &m.Message, &m.Locale, &m.CreatedAt); err != nil {
			status = "error"
			return nil, fmt.Errorf("failed to scan contact message: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		status = "error"
		return nil, err
	}
	return out, nil
}
