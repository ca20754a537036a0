// Package redemption turns an order-paid notification into exactly one
// ledger debit for the credit discount the order used.
package redemption

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"goflare.io/storecredit/correlation"
	"goflare.io/storecredit/deadletter"
	"goflare.io/storecredit/driver"
	"goflare.io/storecredit/errs"
	"goflare.io/storecredit/ledger"
	"goflare.io/storecredit/models"
	"goflare.io/storecredit/models/enum"
)

type Service interface {
	// OnOrderPaid always returns an outcome. The error is set for the
	// outcomes that were dead-lettered.
	OnOrderPaid(ctx context.Context, order *models.Order) (*models.RedemptionOutcome, error)
	Get(ctx context.Context, orderRef string) (*models.Redemption, error)
}

type service struct {
	repo               Repository
	locker             Locker
	transactionManager *driver.TransactionManager
	correlation        correlation.Service
	ledger             ledger.Client
	deadLetter         deadletter.Service
	logger             *zap.Logger
}

func NewService(
	repo Repository,
	locker Locker,
	tm *driver.TransactionManager,
	correlationService correlation.Service,
	ledgerClient ledger.Client,
	deadLetterService deadletter.Service,
	logger *zap.Logger,
) Service {
	return &service{
		repo:               repo,
		locker:             locker,
		transactionManager: tm,
		correlation:        correlationService,
		ledger:             ledgerClient,
		deadLetter:         deadLetterService,
		logger:             logger.Named("redemption"),
	}
}

func (s *service) OnOrderPaid(ctx context.Context, order *models.Order) (*models.RedemptionOutcome, error) {
	outcome := &models.RedemptionOutcome{OrderRef: order.Ref()}
	logger := s.logger.With(zap.String("order_ref", outcome.OrderRef))

	if outcome.OrderRef == "" {
		err := errs.MalformedPayload("order has no id", nil)
		s.record(ctx, logger, enum.DeadLetterKindMalformedPayload, outcome, order, err)
		outcome.Status = enum.RedemptionStatusSkipped
		outcome.Reason = "order has no id"
		return outcome, err
	}

	codec := s.correlation.Codec()
	selected, ok := selectCreditCode(order.DiscountCodes, codec)
	if !ok {
		outcome.Status = enum.RedemptionStatusSkipped
		outcome.Reason = "no-credit"
		logger.Debug("order carries no credit discount")
		return outcome, nil
	}
	outcome.DiscountCode = selected.Code
	logger = logger.With(zap.String("discount_code", selected.Code))

	if !selected.Amount.Valid || !selected.Amount.Decimal.IsPositive() {
		err := errs.AmountUnavailable("platform reported no applied amount for %s", selected.Code)
		outcome.Status = enum.RedemptionStatusAmountUnavailable
		outcome.Reason = err.Message
		s.record(ctx, logger, enum.DeadLetterKindAmountUnavailable, outcome, order, err)
		return outcome, err
	}
	outcome.Amount = selected.Amount.Decimal.Round(2)

	externalID, err := s.correlation.Get(ctx, selected.Code)
	if err != nil {
		unresolved := errs.Unresolved("could not resolve customer for "+selected.Code, err)
		outcome.Status = enum.RedemptionStatusUnresolved
		outcome.Reason = unresolved.Message
		s.record(ctx, logger, enum.DeadLetterKindUnresolved, outcome, order, unresolved)
		return outcome, unresolved
	}
	outcome.ExternalCustomerID = externalID
	logger = logger.With(zap.String("external_customer_id", externalID))

	release, acquired, err := s.locker.Acquire(ctx, outcome.OrderRef)
	if err != nil {
		logger.Warn("redemption lock unavailable, relying on persisted claim", zap.Error(err))
	} else if !acquired {
		outcome.Status = enum.RedemptionStatusDuplicate
		outcome.Reason = "redemption already in flight"
		logger.Info("duplicate delivery while redemption in flight")
		return outcome, nil
	}
	defer release()

	claimed, existing, err := s.claim(ctx, outcome)
	if err != nil {
		deferred := errs.Internal("redemption ledger unavailable", err)
		outcome.Status = enum.RedemptionStatusDeferred
		outcome.Reason = deferred.Message
		s.record(ctx, logger, enum.DeadLetterKindDeferred, outcome, order, deferred)
		return outcome, deferred
	}
	if !claimed {
		outcome.Status = enum.RedemptionStatusDuplicate
		outcome.Reason = fmt.Sprintf("order already claimed with status %s", existing.Status)
		logger.Info("duplicate delivery for claimed order", zap.String("claimed_status", string(existing.Status)))
		return outcome, nil
	}

	req := models.RedemptionRequest{
		ExternalCustomerID: externalID,
		Amount:             outcome.Amount.Neg(),
		OrderRef:           outcome.OrderRef,
	}
	if err = s.ledger.Redeem(ctx, req); err != nil {
		failed := errs.DebitFailed("ledger debit failed", err)
		outcome.Status = enum.RedemptionStatusDebitFailed
		outcome.Reason = errs.Message(err)
		s.finalize(ctx, logger, outcome)
		s.record(ctx, logger, enum.DeadLetterKindDebitFailed, outcome, req, failed)
		return outcome, failed
	}

	outcome.Status = enum.RedemptionStatusRedeemed
	s.finalize(ctx, logger, outcome)
	logger.Info("credit redeemed", zap.String("amount", req.Amount.StringFixed(2)))

	return outcome, nil
}

func (s *service) Get(ctx context.Context, orderRef string) (*models.Redemption, error) {
	redemption, err := s.repo.GetByOrderRef(ctx, orderRef)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.NotFound("no redemption for order %s", orderRef)
		}
		return nil, err
	}
	return redemption, nil
}

func (s *service) claim(ctx context.Context, outcome *models.RedemptionOutcome) (bool, *models.Redemption, error) {
	var (
		claimed  bool
		existing *models.Redemption
	)
	err := s.transactionManager.ExecuteTransaction(ctx, func(tx pgx.Tx) error {
		var err error
		claimed, existing, err = s.repo.Claim(ctx, tx, &models.Redemption{
			OrderRef:           outcome.OrderRef,
			DiscountCode:       outcome.DiscountCode,
			ExternalCustomerID: outcome.ExternalCustomerID,
			Amount:             outcome.Amount,
		})
		return err
	})
	return claimed, existing, err
}

// finalize is best effort: the claim already blocks redeliveries.
func (s *service) finalize(ctx context.Context, logger *zap.Logger, outcome *models.RedemptionOutcome) {
	if err := s.transactionManager.ExecuteTransaction(ctx, func(tx pgx.Tx) error {
		return s.repo.Finalize(ctx, tx, outcome.OrderRef, outcome.Status, outcome.Reason)
	}); err != nil {
		logger.Error("failed to finalize redemption",
			zap.String("status", string(outcome.Status)),
			zap.Error(err))
	}
}

func (s *service) record(ctx context.Context, logger *zap.Logger, kind enum.DeadLetterKind, outcome *models.RedemptionOutcome, payload any, cause error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		logger.Warn("failed to marshal dead letter payload", zap.Error(err))
	}

	entry := &models.DeadLetter{
		Kind:               kind,
		OrderRef:           outcome.OrderRef,
		DiscountCode:       outcome.DiscountCode,
		ExternalCustomerID: outcome.ExternalCustomerID,
		Payload:            raw,
		Error:              cause.Error(),
	}
	if outcome.Amount.IsPositive() {
		entry.Amount = decimal.NewNullDecimal(outcome.Amount)
	}

	logger.Error("redemption needs reconciliation",
		zap.String("kind", string(kind)),
		zap.ByteString("payload", raw),
		zap.Error(cause))

	if err = s.deadLetter.Record(ctx, entry); err != nil {
		logger.Error("failed to record redemption dead letter", zap.Error(err))
	}
}

// selectCreditCode returns the first code that follows the credit convention.
func selectCreditCode(codes []models.OrderDiscountCode, codec correlation.Codec) (models.OrderDiscountCode, bool) {
	for _, code := range codes {
		if codec.Matches(code.Code) {
			return code, true
		}
	}
	return models.OrderDiscountCode{}, false
}
