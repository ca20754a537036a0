// Package issuer turns a credit grant into a single-use storefront discount.
package issuer

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"goflare.io/storecredit/commerce"
	"goflare.io/storecredit/config"
	"goflare.io/storecredit/correlation"
	"goflare.io/storecredit/deadletter"
	"goflare.io/storecredit/errs"
	"goflare.io/storecredit/ledger"
	"goflare.io/storecredit/models"
	"goflare.io/storecredit/models/enum"
)

const defaultDiscountTTL = 24 * time.Hour

type Service interface {
	IssueCredit(ctx context.Context, req IssueRequest) (*models.IssuedCredit, error)
	VerifyCredit(ctx context.Context, req VerifyRequest) (*VerifyResult, error)
	CreateDiscount(ctx context.Context, req CreateDiscountRequest) (*models.IssuedCredit, error)
	DeleteDiscount(ctx context.Context, id string) error
}

type service struct {
	ledger      ledger.Client
	commerce    commerce.Client
	correlation correlation.Service
	deadLetter  deadletter.Service
	codec       correlation.Codec
	ttl         time.Duration
	now         func() time.Time
	// lookupBackOff bounds re-reads of a discount the platform reports as duplicate.
	lookupBackOff func() backoff.BackOff
	logger        *zap.Logger
}

func NewService(
	ledgerClient ledger.Client,
	commerceClient commerce.Client,
	correlationService correlation.Service,
	deadLetterService deadletter.Service,
	appConfig *config.Config,
	logger *zap.Logger,
) Service {
	ttl := appConfig.Credit.DiscountTTL
	if ttl <= 0 {
		ttl = defaultDiscountTTL
	}

	return &service{
		ledger:      ledgerClient,
		commerce:    commerceClient,
		correlation: correlationService,
		deadLetter:  deadLetterService,
		codec:       correlationService.Codec(),
		ttl:         ttl,
		now:         time.Now,
		lookupBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 200 * time.Millisecond
			b.MaxInterval = 2 * time.Second
			b.MaxElapsedTime = 5 * time.Second
			return backoff.WithMaxRetries(b, 4)
		},
		logger: logger.Named("issuer"),
	}
}

func (s *service) IssueCredit(ctx context.Context, req IssueRequest) (*models.IssuedCredit, error) {
	if req.ExternalCustomerID == "" {
		return nil, errs.InvalidInput("customer id is required")
	}
	if !req.CartTotal.IsPositive() {
		return nil, errs.InvalidAmount("cart total must be greater than zero")
	}
	if !req.CreditAmount.IsPositive() {
		return nil, errs.InvalidAmount("credit amount must be greater than zero")
	}
	if req.CreditAmount.GreaterThan(req.CartTotal) {
		return nil, errs.InvalidAmount("credit amount %s exceeds cart total %s", req.CreditAmount.StringFixed(2), req.CartTotal.StringFixed(2))
	}

	applied := decimal.Min(req.CreditAmount, req.CartTotal).RoundDown(2)
	if !applied.IsPositive() {
		return nil, errs.InvalidAmount("credit amount rounds to zero")
	}

	code, err := s.codec.Encode(req.ExternalCustomerID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	expiresAt := now.Add(s.ttl)
	if req.ExpiresAt != nil {
		expiresAt = req.ExpiresAt.UTC()
	}
	if !expiresAt.After(now) {
		return nil, errs.InvalidInput("expiry must be in the future")
	}

	spec := models.DiscountSpec{
		Code:               code,
		Title:              "Credit Discount - " + req.ExternalCustomerID,
		Amount:             applied,
		ExternalCustomerID: req.ExternalCustomerID,
		StartsAt:           now,
		ExpiresAt:          expiresAt,
	}

	logger := s.logger.With(
		zap.String("external_customer_id", req.ExternalCustomerID),
		zap.String("purchase_order", req.PurchaseOrderRef),
		zap.String("discount_code", code),
		zap.String("amount", applied.StringFixed(2)))

	existing := false
	discount, err := s.commerce.CreateDiscount(ctx, spec)
	if errors.Is(err, errs.ErrConflict) {
		logger.Info("discount code already exists, checking for an earlier issuance")
		discount, err = s.resolveDuplicate(ctx, spec)
		existing = err == nil
	}
	if err != nil {
		logger.Warn("discount issuance failed", zap.Error(err))
		return nil, err
	}

	s.recordCorrelation(ctx, discount, spec, logger)

	logger.Info("credit discount issued",
		zap.String("discount_id", discount.ID),
		zap.Bool("existing", existing),
		zap.Time("expires_at", discount.ExpiresAt))

	return &models.IssuedCredit{
		DiscountCode:    discount.Code,
		AmountApplied:   applied,
		RemainingAmount: req.CartTotal.Sub(applied),
		Discount:        discount,
		Existing:        existing,
	}, nil
}

// resolveDuplicate treats a duplicate code as success only when the existing
// discount is the one this request would have created.
func (s *service) resolveDuplicate(ctx context.Context, spec models.DiscountSpec) (*models.Discount, error) {
	var discount *models.Discount
	operation := func() error {
		var err error
		discount, err = s.commerce.FindDiscountByCode(ctx, spec.Code)
		if err == nil {
			return nil
		}
		if errors.Is(err, errs.ErrNotFound) || errs.KindOf(err) == errs.KindRemoteUnreachable {
			return err
		}
		return backoff.Permanent(err)
	}

	if err := backoff.Retry(operation, backoff.WithContext(s.lookupBackOff(), ctx)); err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, errs.DiscountConflict("discount code %s exists but could not be read back", spec.Code)
		}
		return nil, err
	}

	owner, err := s.codec.Decode(discount.Code)
	if err != nil || owner != spec.ExternalCustomerID {
		return nil, errs.DiscountConflict("discount code %s belongs to another customer", spec.Code)
	}
	if discount.ExternalCustomerID != "" && discount.ExternalCustomerID != spec.ExternalCustomerID {
		return nil, errs.DiscountConflict("discount code %s belongs to another customer", spec.Code)
	}
	if !discount.Value.Equal(spec.Amount) {
		return nil, errs.DiscountConflict("discount code %s already exists for %s, requested %s",
			spec.Code, discount.Value.StringFixed(2), spec.Amount.StringFixed(2))
	}
	if discount.UsageLimit > 0 && discount.UsageCount >= discount.UsageLimit {
		return nil, errs.DiscountConflict("discount code %s has already been used; delete discount %s first", spec.Code, discount.ID)
	}
	if !discount.ExpiresAt.IsZero() && !discount.ExpiresAt.After(s.now()) {
		return nil, errs.DiscountConflict("discount code %s exists but has expired; delete discount %s first", spec.Code, discount.ID)
	}

	discount.ExternalCustomerID = spec.ExternalCustomerID
	return discount, nil
}

// recordCorrelation writes the audit mirrors. The code already carries the
// identity, so a failed write is dead-lettered and the discount is kept.
func (s *service) recordCorrelation(ctx context.Context, discount *models.Discount, spec models.DiscountSpec, logger *zap.Logger) {
	err := s.correlation.Put(ctx, discount.Code, spec.ExternalCustomerID)
	if err == nil {
		return
	}

	if errors.Is(err, errs.ErrConflict) {
		logger.Error("correlation mirror conflict", zap.String("discount_id", discount.ID), zap.Error(err))
	} else {
		logger.Warn("correlation mirror write failed", zap.String("discount_id", discount.ID), zap.Error(err))
	}

	if dlErr := s.deadLetter.Record(ctx, &models.DeadLetter{
		Kind:               enum.DeadLetterKindCorrelationWriteFailed,
		DiscountCode:       discount.Code,
		ExternalCustomerID: spec.ExternalCustomerID,
		Amount:             decimal.NewNullDecimal(spec.Amount),
		Error:              err.Error(),
	}); dlErr != nil {
		logger.Error("failed to record correlation dead letter", zap.Error(dlErr))
	}
}

func (s *service) VerifyCredit(ctx context.Context, req VerifyRequest) (*VerifyResult, error) {
	if req.Grant.ExternalCustomerID == "" {
		return nil, errs.InvalidInput("customer id is required")
	}
	if req.Grant.PurchaseOrderRef == "" {
		return nil, errs.InvalidInput("purchase order is required")
	}
	if !req.CartTotal.IsPositive() {
		return nil, errs.InvalidAmount("cart total must be greater than zero")
	}
	if req.CreditAmount.Valid && !req.CreditAmount.Decimal.IsPositive() {
		return nil, errs.InvalidAmount("credit amount must be greater than zero")
	}

	check, err := s.ledger.CheckCredit(ctx, req.Grant)
	if err != nil {
		return nil, err
	}
	if !check.Eligible {
		return nil, errs.RemoteRejected(http.StatusUnprocessableEntity, "customer is not eligible for credit")
	}

	var creditAmount decimal.Decimal
	switch {
	case req.CreditAmount.Valid:
		creditAmount = req.CreditAmount.Decimal
		if check.Amount.IsPositive() && creditAmount.GreaterThan(check.Amount) {
			return nil, errs.InvalidAmount("credit amount %s exceeds available credit %s", creditAmount.StringFixed(2), check.Amount.StringFixed(2))
		}
	case check.Amount.IsPositive():
		creditAmount = decimal.Min(check.Amount, req.CartTotal)
	default:
		return nil, errs.InvalidAmount("credit ledger reported no available credit")
	}

	issued, err := s.IssueCredit(ctx, IssueRequest{
		ExternalCustomerID: req.Grant.ExternalCustomerID,
		PurchaseOrderRef:   req.Grant.PurchaseOrderRef,
		CreditAmount:       creditAmount,
		CartTotal:          req.CartTotal,
		ExpiresAt:          req.ExpiresAt,
	})
	if err != nil {
		return nil, err
	}

	return &VerifyResult{Issued: issued, LedgerData: check.Raw}, nil
}

func (s *service) CreateDiscount(ctx context.Context, req CreateDiscountRequest) (*models.IssuedCredit, error) {
	if req.DiscountCode != "" {
		canonical, err := s.codec.Encode(req.ExternalCustomerID)
		if err != nil {
			return nil, err
		}
		if req.DiscountCode != canonical {
			return nil, errs.InvalidInput("discount code must be %s for this customer", canonical)
		}
	}

	return s.IssueCredit(ctx, IssueRequest{
		ExternalCustomerID: req.ExternalCustomerID,
		CreditAmount:       req.DiscountAmount,
		CartTotal:          req.CartTotal,
		ExpiresAt:          req.ExpiresAt,
	})
}

func (s *service) DeleteDiscount(ctx context.Context, id string) error {
	if id == "" {
		return errs.InvalidInput("discount id is required")
	}
	if err := s.commerce.DeleteDiscount(ctx, id); err != nil {
		s.logger.Warn("failed to delete discount", zap.String("discount_id", id), zap.Error(err))
		return err
	}
	s.logger.Info("discount deleted", zap.String("discount_id", id))
	return nil
}
