package commerce

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"go.uber.org/zap"

	"goflare.io/storecredit/config"
	"goflare.io/storecredit/errs"
	"goflare.io/storecredit/models"
	"goflare.io/storecredit/models/enum"
)

const metadataExternalCustomerID = "external_customer_id"

// StripeClient backs discounts with a single-use coupon and a promotion code
// carrying the credit code. Discount.ID is the coupon id.
type StripeClient struct {
	client   *client.API
	currency string
	logger   *zap.Logger
}

func NewStripeClient(appConfig *config.Config, logger *zap.Logger) *StripeClient {
	return NewStripeClientWithBackends(appConfig, nil, logger)
}

// NewStripeClientWithBackends lets callers point the SDK at another API host.
func NewStripeClientWithBackends(appConfig *config.Config, backends *stripe.Backends, logger *zap.Logger) *StripeClient {
	currency := appConfig.Stripe.Currency
	if currency == "" {
		currency = string(stripe.CurrencyUSD)
	}

	return &StripeClient{
		client:   client.New(appConfig.Stripe.SecretKey, backends),
		currency: currency,
		logger:   logger.Named("stripe"),
	}
}

func (s *StripeClient) Name() string { return config.ProviderStripe }

func (s *StripeClient) CreateDiscount(ctx context.Context, spec models.DiscountSpec) (*models.Discount, error) {
	couponParams := &stripe.CouponParams{
		Name:           stripe.String(spec.Title),
		AmountOff:      stripe.Int64(ToCents(spec.Amount)),
		Currency:       stripe.String(s.currency),
		Duration:       stripe.String(string(stripe.CouponDurationOnce)),
		MaxRedemptions: stripe.Int64(1),
		RedeemBy:       stripe.Int64(spec.ExpiresAt.Unix()),
	}
	couponParams.Context = ctx
	couponParams.AddMetadata(metadataExternalCustomerID, spec.ExternalCustomerID)

	coupon, err := s.client.Coupons.New(couponParams)
	if err != nil {
		return nil, s.classify("failed to create stripe coupon", err)
	}

	codeParams := &stripe.PromotionCodeParams{
		Coupon:         stripe.String(coupon.ID),
		Code:           stripe.String(spec.Code),
		MaxRedemptions: stripe.Int64(1),
		ExpiresAt:      stripe.Int64(spec.ExpiresAt.Unix()),
	}
	codeParams.Context = ctx
	codeParams.AddMetadata(metadataExternalCustomerID, spec.ExternalCustomerID)

	promotionCode, err := s.client.PromotionCodes.New(codeParams)
	if err != nil {
		if _, delErr := s.client.Coupons.Del(coupon.ID, nil); delErr != nil {
			s.logger.Warn("failed to delete orphan coupon", zap.String("coupon_id", coupon.ID), zap.Error(delErr))
		}
		if isDuplicateCode(err) {
			return nil, errs.Conflict("discount code %s already exists", spec.Code)
		}
		return nil, s.classify("failed to create stripe promotion code", err)
	}

	promotionCode.Coupon = coupon
	return promotionCodeToDiscount(promotionCode), nil
}

func (s *StripeClient) FindDiscountByCode(ctx context.Context, code string) (*models.Discount, error) {
	params := &stripe.PromotionCodeListParams{Code: stripe.String(code)}
	params.Context = ctx
	params.AddExpand("data.coupon")

	iter := s.client.PromotionCodes.List(params)
	for iter.Next() {
		promotionCode := iter.PromotionCode()
		if promotionCode.Code == code {
			return promotionCodeToDiscount(promotionCode), nil
		}
	}
	if err := iter.Err(); err != nil {
		return nil, s.classify("failed to list stripe promotion codes", err)
	}

	return nil, errs.NotFound("discount code %s not found", code)
}

func (s *StripeClient) DeleteDiscount(ctx context.Context, id string) error {
	params := &stripe.CouponParams{}
	params.Context = ctx
	if _, err := s.client.Coupons.Del(id, params); err != nil {
		return s.classify("failed to delete stripe coupon", err)
	}
	return nil
}

func (s *StripeClient) TagCustomer(ctx context.Context, externalCustomerID string) error {
	email := CustomerEmail(externalCustomerID)

	listParams := &stripe.CustomerListParams{Email: stripe.String(email)}
	listParams.Context = ctx
	iter := s.client.Customers.List(listParams)

	var existing *stripe.Customer
	if iter.Next() {
		existing = iter.Customer()
	}
	if err := iter.Err(); err != nil {
		return s.classify("failed to search stripe customers", err)
	}

	params := &stripe.CustomerParams{}
	params.Context = ctx
	params.AddMetadata(MetafieldNamespace+"."+MetafieldKey, externalCustomerID)

	if existing == nil {
		params.Email = stripe.String(email)
		params.Name = stripe.String("Credit " + externalCustomerID)
		if _, err := s.client.Customers.New(params); err != nil {
			return s.classify("failed to create stripe customer", err)
		}
		return nil
	}

	if _, err := s.client.Customers.Update(existing.ID, params); err != nil {
		return s.classify("failed to update stripe customer", err)
	}
	return nil
}

// CheckoutSession fetches a session with the discount breakdown expanded.
func (s *StripeClient) CheckoutSession(ctx context.Context, id string) (*stripe.CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	params.AddExpand("customer")
	params.AddExpand("total_details.breakdown")
	params.AddExpand("total_details.breakdown.discounts.discount.promotion_code")

	session, err := s.client.CheckoutSessions.Get(id, params)
	if err != nil {
		return nil, s.classify("failed to get checkout session", err)
	}
	return session, nil
}

func (s *StripeClient) classify(message string, err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		if stripeErr.HTTPStatusCode == http.StatusNotFound {
			return errs.NotFound("%s: %s", message, stripeErr.Msg)
		}
		if stripeErr.HTTPStatusCode != 0 {
			return errs.RemoteRejected(stripeErr.HTTPStatusCode, stripeErr.Msg)
		}
	}
	return errs.RemoteUnreachable(message, err)
}

func isDuplicateCode(err error) bool {
	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return false
	}
	return stripeErr.Code == stripe.ErrorCodeResourceAlreadyExists ||
		strings.Contains(strings.ToLower(stripeErr.Msg), "already exists")
}

func promotionCodeToDiscount(promotionCode *stripe.PromotionCode) *models.Discount {
	discount := &models.Discount{
		CodeID:      promotionCode.ID,
		Code:        promotionCode.Code,
		ValueType:   enum.ValueTypeFixedAmount,
		UsageLimit:  int(promotionCode.MaxRedemptions),
		UsageCount:  int(promotionCode.TimesRedeemed),
		AppliesOnce: true,
	}
	if promotionCode.ExpiresAt > 0 {
		discount.ExpiresAt = unixTime(promotionCode.ExpiresAt)
	}
	if promotionCode.Created > 0 {
		discount.StartsAt = unixTime(promotionCode.Created)
	}

	if coupon := promotionCode.Coupon; coupon != nil {
		discount.ID = coupon.ID
		discount.Title = coupon.Name
		discount.Value = FromCents(coupon.AmountOff)
		discount.ExternalCustomerID = coupon.Metadata[metadataExternalCustomerID]
		if coupon.PercentOff > 0 {
			discount.ValueType = enum.ValueTypePercentage
			discount.Value = decimal.NewFromFloat(coupon.PercentOff)
		}
	}
	if id, ok := promotionCode.Metadata[metadataExternalCustomerID]; ok && discount.ExternalCustomerID == "" {
		discount.ExternalCustomerID = id
	}

	return discount
}

// OrderFromCheckoutSession maps a paid session onto the order shape the
// redemption pipeline reads. Per-code amounts come from the discount breakdown.
func OrderFromCheckoutSession(session *stripe.CheckoutSession) *models.Order {
	order := &models.Order{
		ID:              models.ID(session.ID),
		FinancialStatus: string(session.PaymentStatus),
		TotalPrice:      FromCents(session.AmountTotal).StringFixed(2),
		Currency:        strings.ToUpper(string(session.Currency)),
	}
	if session.Customer != nil {
		order.Customer = &models.OrderCustomer{ID: models.ID(session.Customer.ID), Email: session.Customer.Email}
	}

	if session.TotalDetails == nil || session.TotalDetails.Breakdown == nil {
		return order
	}
	for _, item := range session.TotalDetails.Breakdown.Discounts {
		if item == nil || item.Discount == nil || item.Discount.PromotionCode == nil {
			continue
		}
		order.DiscountCodes = append(order.DiscountCodes, models.OrderDiscountCode{
			Code:   item.Discount.PromotionCode.Code,
			Amount: decimal.NewNullDecimal(FromCents(item.Amount)),
			Type:   string(enum.ValueTypeFixedAmount),
		})
	}
	return order
}

// ToCents converts a major-unit amount to the smallest currency unit.
func ToCents(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

func unixTime(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}
