package redemption

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"goflare.io/storecredit/driver"
	"goflare.io/storecredit/models"
	"goflare.io/storecredit/models/enum"
)

type Repository interface {
	// Claim inserts a PENDING row for the order. It returns false and the
	// stored row when the order was claimed before.
	Claim(ctx context.Context, tx pgx.Tx, redemption *models.Redemption) (bool, *models.Redemption, error)
	Finalize(ctx context.Context, tx pgx.Tx, orderRef string, status enum.RedemptionStatus, detail string) error
	GetByOrderRef(ctx context.Context, orderRef string) (*models.Redemption, error)
}

type repository struct {
	conn driver.PostgresPool
}

func NewRepository(conn driver.PostgresPool) Repository {
	return &repository{conn: conn}
}

func (r *repository) Claim(ctx context.Context, tx pgx.Tx, redemption *models.Redemption) (bool, *models.Redemption, error) {
	const query = `
    INSERT INTO redemptions (order_ref, discount_code, external_customer_id, amount, status, created_at, updated_at)
    VALUES (@order_ref, @discount_code, @external_customer_id, @amount, @status, @created_at, @updated_at)
    ON CONFLICT (order_ref) DO NOTHING
    RETURNING order_ref
    `

	now := time.Now()
	args := pgx.NamedArgs{
		"order_ref":            redemption.OrderRef,
		"discount_code":        redemption.DiscountCode,
		"external_customer_id": redemption.ExternalCustomerID,
		"amount":               redemption.Amount,
		"status":               enum.RedemptionStatusPending,
		"created_at":           now,
		"updated_at":           now,
	}

	var orderRef string
	err := tx.QueryRow(ctx, query, args).Scan(&orderRef)
	if err == nil {
		return true, nil, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return false, nil, fmt.Errorf("failed to claim redemption: %w", err)
	}

	existing, err := scan(tx.QueryRow(ctx, selectByOrderRef, pgx.NamedArgs{"order_ref": redemption.OrderRef}))
	if err != nil {
		return false, nil, err
	}
	return false, existing, nil
}

func (r *repository) Finalize(ctx context.Context, tx pgx.Tx, orderRef string, status enum.RedemptionStatus, detail string) error {
	const query = `
    UPDATE redemptions SET status = @status, detail = @detail, updated_at = @updated_at
    WHERE order_ref = @order_ref AND status = @pending
    `

	tag, err := tx.Exec(ctx, query, pgx.NamedArgs{
		"order_ref":  orderRef,
		"status":     status,
		"detail":     detail,
		"updated_at": time.Now(),
		"pending":    enum.RedemptionStatusPending,
	})
	if err != nil {
		return fmt.Errorf("failed to finalize redemption: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("no pending redemption for order %s", orderRef)
	}
	return nil
}

const selectByOrderRef = `
    SELECT order_ref, discount_code, external_customer_id, amount, status, detail, created_at, updated_at
    FROM redemptions WHERE order_ref = @order_ref
    `

func (r *repository) GetByOrderRef(ctx context.Context, orderRef string) (*models.Redemption, error) {
	return scan(r.conn.QueryRow(ctx, selectByOrderRef, pgx.NamedArgs{"order_ref": orderRef}))
}

func scan(row pgx.Row) (*models.Redemption, error) {
	var redemption models.Redemption
	if err := row.Scan(
		&redemption.OrderRef,
		&redemption.DiscountCode,
		&redemption.ExternalCustomerID,
		&redemption.Amount,
		&redemption.Status,
		&redemption.Detail,
		&redemption.CreatedAt,
		&redemption.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("failed to get redemption: %w", err)
	}
	return &redemption, nil
}
