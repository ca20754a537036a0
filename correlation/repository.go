package correlation

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"goflare.io/ember"
	"goflare.io/ignite"
	"goflare.io/storecredit/driver"
	"goflare.io/storecredit/errs"
	"goflare.io/storecredit/models"
)

type Repository interface {
	// Upsert creates the row if absent and returns the stored row either way.
	Upsert(ctx context.Context, tx pgx.Tx, correlation *models.Correlation) (*models.Correlation, error)
	// Cache stores a committed row for GetByIdentifier.
	Cache(ctx context.Context, correlation *models.Correlation)
	GetByIdentifier(ctx context.Context, identifier string) (*models.Correlation, error)
	ListByCustomer(ctx context.Context, externalCustomerID string) ([]*models.Correlation, error)
}

type repository struct {
	conn        driver.PostgresPool
	logger      *zap.Logger
	cache       *ember.MultiCache
	poolManager ignite.Manager
}

func NewRepository(conn driver.PostgresPool, logger *zap.Logger, cache *ember.MultiCache, poolManager ignite.Manager) (Repository, error) {
	if err := poolManager.RegisterPool(reflect.TypeOf(&models.Correlation{}), ignite.Config[any]{
		InitialSize: 10,
		MaxSize:     100,
		MaxIdleTime: 10 * time.Minute,
		Factory: func() (any, error) {
			return models.NewCorrelation(), nil
		},
		Reset: func(obj any) error {
			c := obj.(*models.Correlation)
			*c = models.Correlation{}
			return nil
		},
	}); err != nil {
		return nil, fmt.Errorf("failed to register correlation pool: %w", err)
	}

	return &repository{
		conn:        conn,
		logger:      logger,
		cache:       cache,
		poolManager: poolManager,
	}, nil
}

func cacheKey(identifier string) string {
	return fmt.Sprintf("correlation:%s", identifier)
}

func (r *repository) getFromPool(ctx context.Context) (*models.Correlation, func(), error) {
	pool, err := r.poolManager.GetPool(reflect.TypeOf(&models.Correlation{}))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get pool: %w", err)
	}

	objWrapper, err := pool.Get(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get object from pool: %w", err)
	}

	correlation := objWrapper.Object.(*models.Correlation)
	release := func() {
		pool.Put(objWrapper)
	}

	return correlation, release, nil
}

func (r *repository) Upsert(ctx context.Context, tx pgx.Tx, correlation *models.Correlation) (*models.Correlation, error) {
	// The no-op update makes RETURNING yield the existing row on conflict.
	const query = `
    INSERT INTO correlations (discount_identifier, external_customer_id, created_at, updated_at)
    VALUES (@discount_identifier, @external_customer_id, @created_at, @updated_at)
    ON CONFLICT (discount_identifier) DO UPDATE SET
        updated_at = correlations.updated_at
    RETURNING discount_identifier, external_customer_id, created_at
    `

	now := time.Now()
	args := pgx.NamedArgs{
		"discount_identifier":  correlation.DiscountIdentifier,
		"external_customer_id": correlation.ExternalCustomerID,
		"created_at":           now,
		"updated_at":           now,
	}

	stored := models.NewCorrelation()
	if err := tx.QueryRow(ctx, query, args).Scan(
		&stored.DiscountIdentifier,
		&stored.ExternalCustomerID,
		&stored.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("failed to upsert correlation: %w", err)
	}

	return stored, nil
}

func (r *repository) Cache(ctx context.Context, correlation *models.Correlation) {
	if err := r.cache.Set(ctx, cacheKey(correlation.DiscountIdentifier), correlation); err != nil {
		r.logger.Warn("Failed to cache correlation", zap.Error(err), zap.String("identifier", correlation.DiscountIdentifier))
	}
}

func (r *repository) GetByIdentifier(ctx context.Context, identifier string) (*models.Correlation, error) {
	correlation, release, err := r.getFromPool(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	found, err := r.cache.Get(ctx, cacheKey(identifier), correlation)
	if err != nil {
		r.logger.Warn("Failed to get correlation from cache", zap.Error(err), zap.String("identifier", identifier))
	} else if found {
		result := *correlation
		return &result, nil
	}

	const query = `
    SELECT discount_identifier, external_customer_id, created_at
    FROM correlations
    WHERE discount_identifier = @discount_identifier
    `
	if err = r.conn.QueryRow(ctx, query, pgx.NamedArgs{"discount_identifier": identifier}).Scan(
		&correlation.DiscountIdentifier,
		&correlation.ExternalCustomerID,
		&correlation.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.NotFound("no correlation recorded for %s", identifier)
		}
		return nil, fmt.Errorf("failed to get correlation: %w", err)
	}

	result := *correlation
	r.Cache(ctx, &result)

	return &result, nil
}

func (r *repository) ListByCustomer(ctx context.Context, externalCustomerID string) ([]*models.Correlation, error) {
	const query = `
    SELECT discount_identifier, external_customer_id, created_at
    FROM correlations
    WHERE external_customer_id = @external_customer_id
    ORDER BY created_at DESC
    `
	rows, err := r.conn.Query(ctx, query, pgx.NamedArgs{"external_customer_id": externalCustomerID})
	if err != nil {
		return nil, fmt.Errorf("failed to list correlations: %w", err)
	}
	defer rows.Close()

	var correlations []*models.Correlation
	for rows.Next() {
		correlation := models.NewCorrelation()
		if err = rows.Scan(
			&correlation.DiscountIdentifier,
			&correlation.ExternalCustomerID,
			&correlation.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan correlation: %w", err)
		}
		correlations = append(correlations, correlation)
	}

	return correlations, rows.Err()
}
