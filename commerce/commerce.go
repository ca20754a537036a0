// Package commerce adapts the storefront platforms that own discounts and
// customer records.
package commerce

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"goflare.io/storecredit/config"
	"goflare.io/storecredit/models"
)

const (
	MetafieldNamespace = "credit_system"
	MetafieldKey       = "original_customer_id"
)

// Client creates, looks up and deletes single-use discounts on a storefront.
// CreateDiscount returns an errs.ErrConflict error when the code already exists.
type Client interface {
	Name() string
	CreateDiscount(ctx context.Context, spec models.DiscountSpec) (*models.Discount, error)
	FindDiscountByCode(ctx context.Context, code string) (*models.Discount, error)
	DeleteDiscount(ctx context.Context, id string) error
	// TagCustomer records the external identity on a platform customer record.
	TagCustomer(ctx context.Context, externalCustomerID string) error
}

// NewClient picks the backend named by commerce.provider.
func NewClient(appConfig *config.Config, logger *zap.Logger) (Client, error) {
	switch appConfig.Commerce.Provider {
	case config.ProviderShopify, "":
		return NewShopifyClient(appConfig, logger), nil
	case config.ProviderStripe:
		return NewStripeClient(appConfig, logger), nil
	default:
		return nil, fmt.Errorf("unknown commerce provider %q", appConfig.Commerce.Provider)
	}
}

// CustomerEmail is the synthetic email under which an external identity is
// mirrored onto a platform customer record.
func CustomerEmail(externalCustomerID string) string {
	return fmt.Sprintf("customer_%s@creditsystem.local", externalCustomerID)
}
