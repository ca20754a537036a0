package deadletter

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"goflare.io/storecredit/driver"
	"goflare.io/storecredit/errs"
	"goflare.io/storecredit/models"
	"goflare.io/storecredit/models/enum"
)

type Repository interface {
	Create(ctx context.Context, tx pgx.Tx, entry *models.DeadLetter) error
	List(ctx context.Context, tx pgx.Tx, status enum.DeadLetterStatus, limit, offset uint64) ([]*models.DeadLetter, error)
	Resolve(ctx context.Context, tx pgx.Tx, id, note string) (*models.DeadLetter, error)
}

type repository struct {
	conn driver.PostgresPool
}

func NewRepository(conn driver.PostgresPool) Repository {
	return &repository{conn: conn}
}

const columns = `id, kind, status, order_ref, discount_code, external_customer_id, amount, payload, error, resolution_note, created_at, resolved_at`

func (r *repository) Create(ctx context.Context, tx pgx.Tx, entry *models.DeadLetter) error {
	const query = `
    INSERT INTO dead_letters (id, kind, status, order_ref, discount_code, external_customer_id, amount, payload, error, created_at)
    VALUES (@id, @kind, @status, @order_ref, @discount_code, @external_customer_id, @amount, @payload, @error, @created_at)
    `

	var payload any
	if len(entry.Payload) > 0 {
		payload = string(entry.Payload)
	}

	args := pgx.NamedArgs{
		"id":                   entry.ID,
		"kind":                 entry.Kind,
		"status":               entry.Status,
		"order_ref":            entry.OrderRef,
		"discount_code":        entry.DiscountCode,
		"external_customer_id": entry.ExternalCustomerID,
		"amount":               entry.Amount,
		"payload":              payload,
		"error":                entry.Error,
		"created_at":           entry.CreatedAt,
	}

	if _, err := tx.Exec(ctx, query, args); err != nil {
		return fmt.Errorf("failed to create dead letter: %w", err)
	}

	return nil
}

func (r *repository) List(ctx context.Context, tx pgx.Tx, status enum.DeadLetterStatus, limit, offset uint64) ([]*models.DeadLetter, error) {
	query := `SELECT ` + columns + ` FROM dead_letters
    WHERE (@status::text = '' OR status = @status)
    ORDER BY created_at DESC
    LIMIT @limit OFFSET @offset`

	rows, err := tx.Query(ctx, query, pgx.NamedArgs{
		"status": string(status),
		"limit":  limit,
		"offset": offset,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list dead letters: %w", err)
	}
	defer rows.Close()

	entries := make([]*models.DeadLetter, 0)
	for rows.Next() {
		entry, err := scan(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate dead letters: %w", err)
	}

	return entries, nil
}

func (r *repository) Resolve(ctx context.Context, tx pgx.Tx, id, note string) (*models.DeadLetter, error) {
	query := `UPDATE dead_letters
    SET status = @resolved, resolution_note = @note, resolved_at = NOW()
    WHERE id = @id AND status = @open
    RETURNING ` + columns

	entry, err := scan(tx.QueryRow(ctx, query, pgx.NamedArgs{
		"id":       id,
		"note":     note,
		"resolved": enum.DeadLetterStatusResolved,
		"open":     enum.DeadLetterStatusOpen,
	}))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.NotFound("no open dead letter %s", id)
		}
		return nil, err
	}

	return entry, nil
}

func scan(row pgx.Row) (*models.DeadLetter, error) {
	var (
		entry   models.DeadLetter
		payload []byte
	)
	if err := row.Scan(
		&entry.ID,
		&entry.Kind,
		&entry.Status,
		&entry.OrderRef,
		&entry.DiscountCode,
		&entry.ExternalCustomerID,
		&entry.Amount,
		&payload,
		&entry.Error,
		&entry.ResolutionNote,
		&entry.CreatedAt,
		&entry.ResolvedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan dead letter: %w", err)
	}
	entry.Payload = payload
	return &entry, nil
}
