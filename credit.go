package storecredit

import (
	"context"

	"goflare.io/storecredit/issuer"
	"goflare.io/storecredit/models"
	"goflare.io/storecredit/models/enum"
)

// ShopifyDelivery is one inbound Shopify webhook with the headers that matter.
type ShopifyDelivery struct {
	Topic     string
	WebhookID string
	HMAC      string
	Body      []byte
}

type Credit interface {
	VerifyCredit(ctx context.Context, req issuer.VerifyRequest) (*issuer.VerifyResult, error) // Interacts with ledger and platform
	Status(ctx context.Context) *models.LedgerStatus                                          // Interacts with ledger

	CreateDiscount(ctx context.Context, req issuer.CreateDiscountRequest) (*models.IssuedCredit, error) // Interacts with platform
	DeleteDiscount(ctx context.Context, id string) error                                                // Interacts with platform

	// HandleShopifyWebhook and HandleStripeWebhook only fail for deliveries
	// that must not be acknowledged.
	HandleShopifyWebhook(ctx context.Context, delivery ShopifyDelivery) error
	HandleStripeWebhook(ctx context.Context, payload []byte, signature string) error

	GetCorrelation(ctx context.Context, discountCode string) (*models.Correlation, error)
	ListCorrelations(ctx context.Context, externalCustomerID string) ([]*models.Correlation, error)
	GetRedemption(ctx context.Context, orderRef string) (*models.Redemption, error)

	ListDeadLetters(ctx context.Context, status enum.DeadLetterStatus, limit, offset uint64) ([]*models.DeadLetter, error)
	ResolveDeadLetter(ctx context.Context, id, note string) (*models.DeadLetter, error)

	Close()
}
