package event

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"goflare.io/storecredit/driver"
	"goflare.io/storecredit/errs"
	"goflare.io/storecredit/models"
)

var _ Repository = (*repository)(nil)

type Repository interface {
	Create(ctx context.Context, tx pgx.Tx, event *models.WebhookEvent) error
	GetByID(ctx context.Context, tx pgx.Tx, id string) (*models.WebhookEvent, error)
	MarkAsProcessed(ctx context.Context, tx pgx.Tx, id string) error
}

type repository struct {
	conn   driver.PostgresPool
	logger *zap.Logger
}

func NewRepository(conn driver.PostgresPool, logger *zap.Logger) Repository {
	return &repository{
		conn:   conn,
		logger: logger,
	}
}

// Create is a no-op for a delivery id that was seen before.
func (r *repository) Create(ctx context.Context, tx pgx.Tx, event *models.WebhookEvent) error {
	const query = `
    INSERT INTO webhook_events (id, provider, topic, processed, created_at, updated_at)
    VALUES (@id, @provider, @topic, @processed, @created_at, @updated_at)
    ON CONFLICT (id) DO NOTHING
    `

	now := time.Now()
	args := pgx.NamedArgs{
		"id":         event.ID,
		"provider":   event.Provider,
		"topic":      event.Topic,
		"processed":  event.Processed,
		"created_at": now,
		"updated_at": now,
	}

	if _, err := tx.Exec(ctx, query, args); err != nil {
		return fmt.Errorf("failed to create webhook event: %w", err)
	}
	return nil
}

func (r *repository) GetByID(ctx context.Context, tx pgx.Tx, id string) (*models.WebhookEvent, error) {
	const query = `
    SELECT id, provider, topic, processed, created_at, updated_at
    FROM webhook_events WHERE id = @id
    `

	var event models.WebhookEvent
	if err := tx.QueryRow(ctx, query, pgx.NamedArgs{"id": id}).Scan(
		&event.ID,
		&event.Provider,
		&event.Topic,
		&event.Processed,
		&event.CreatedAt,
		&event.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.NotFound("webhook event %s not found", id)
		}
		return nil, fmt.Errorf("failed to get webhook event: %w", err)
	}
	return &event, nil
}

func (r *repository) MarkAsProcessed(ctx context.Context, tx pgx.Tx, id string) error {
	const query = `
    UPDATE webhook_events SET processed = TRUE, updated_at = @updated_at
    WHERE id = @id
    `

	if _, err := tx.Exec(ctx, query, pgx.NamedArgs{"id": id, "updated_at": time.Now()}); err != nil {
		return fmt.Errorf("failed to mark webhook event processed: %w", err)
	}
	return nil
}
