// Package correlation maps a discount code back to the external customer
// identity that earned it. The identity is embedded in the code; the
// Postgres row and the optional customer metafield are audit mirrors.
package correlation

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"goflare.io/storecredit/commerce"
	"goflare.io/storecredit/config"
	"goflare.io/storecredit/driver"
	"goflare.io/storecredit/errs"
	"goflare.io/storecredit/models"
)

type Service interface {
	// Put is idempotent: the same pair again is a no-op, a different identity
	// for an existing identifier is a Conflict.
	Put(ctx context.Context, discountIdentifier, externalCustomerID string) error
	// Get resolves the identity from the code itself.
	Get(ctx context.Context, discountIdentifier string) (string, error)
	// Lookup returns the audit record.
	Lookup(ctx context.Context, discountIdentifier string) (*models.Correlation, error)
	// ListByCustomer returns the audit records for one customer, newest first.
	ListByCustomer(ctx context.Context, externalCustomerID string) ([]*models.Correlation, error)
	Codec() Codec
}

type service struct {
	repo               Repository
	transactionManager *driver.TransactionManager
	commerce           commerce.Client
	codec              Codec
	metafieldMirror    bool
	logger             *zap.Logger
}

func ProvideCodec(appConfig *config.Config) Codec {
	return NewCodec(appConfig.Credit.CodePrefix)
}

func NewService(repo Repository, tm *driver.TransactionManager, commerceClient commerce.Client, codec Codec, appConfig *config.Config, logger *zap.Logger) Service {
	return &service{
		repo:               repo,
		transactionManager: tm,
		commerce:           commerceClient,
		codec:              codec,
		metafieldMirror:    appConfig.Correlation.MetafieldMirror,
		logger:             logger.Named("correlation"),
	}
}

func (s *service) Codec() Codec { return s.codec }

func (s *service) Put(ctx context.Context, discountIdentifier, externalCustomerID string) error {
	decoded, err := s.codec.Decode(discountIdentifier)
	if err != nil || decoded != externalCustomerID {
		return errs.Conflict("code %s does not encode customer %s", discountIdentifier, externalCustomerID)
	}

	var stored *models.Correlation
	if err = s.transactionManager.ExecuteTransaction(ctx, func(tx pgx.Tx) error {
		stored, err = s.repo.Upsert(ctx, tx, &models.Correlation{
			DiscountIdentifier: discountIdentifier,
			ExternalCustomerID: externalCustomerID,
		})
		return err
	}); err != nil {
		return fmt.Errorf("failed to write correlation mirror: %w", err)
	}

	if stored.ExternalCustomerID != externalCustomerID {
		s.logger.Error("correlation mirror disagrees with code",
			zap.String("discount_code", discountIdentifier),
			zap.String("external_customer_id", externalCustomerID),
			zap.String("stored_customer_id", stored.ExternalCustomerID))
		return errs.Conflict("correlation for %s already maps to %s", discountIdentifier, stored.ExternalCustomerID)
	}
	s.repo.Cache(ctx, stored)

	if s.metafieldMirror {
		if err = s.commerce.TagCustomer(ctx, externalCustomerID); err != nil {
			return fmt.Errorf("failed to write customer metafield: %w", err)
		}
	}

	return nil
}

func (s *service) Get(_ context.Context, discountIdentifier string) (string, error) {
	return s.codec.Decode(discountIdentifier)
}

func (s *service) Lookup(ctx context.Context, discountIdentifier string) (*models.Correlation, error) {
	return s.repo.GetByIdentifier(ctx, discountIdentifier)
}

func (s *service) ListByCustomer(ctx context.Context, externalCustomerID string) ([]*models.Correlation, error) {
	if externalCustomerID == "" {
		return nil, errs.InvalidInput("customer id is required")
	}
	return s.repo.ListByCustomer(ctx, externalCustomerID)
}
