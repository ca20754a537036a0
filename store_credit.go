// Package storecredit issues single-use store-credit discounts on a commerce
// platform and debits the external credit ledger when an order that used
// one is paid.
package storecredit

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"goflare.io/storecredit/config"
	"goflare.io/storecredit/correlation"
	"goflare.io/storecredit/deadletter"
	"goflare.io/storecredit/errs"
	"goflare.io/storecredit/event"
	"goflare.io/storecredit/issuer"
	"goflare.io/storecredit/ledger"
	"goflare.io/storecredit/models"
	"goflare.io/storecredit/models/enum"
	"goflare.io/storecredit/redemption"
	"goflare.io/storecredit/webhook"
)

type StoreCredit struct {
	natsConn      *nats.Conn
	eventManager  *EventManager
	dispatcher    *Dispatcher
	classifier    *webhook.Classifier
	stripeIngress *webhook.StripeIngress
	shopifySecret string
	logger        *zap.Logger

	issuer      issuer.Service
	ledger      ledger.Client
	correlation correlation.Service
	redemption  redemption.Service
	event       event.Service
	deadLetter  deadletter.Service
}

func NewStoreCredit(appConfig *config.Config,
	natsConn *nats.Conn,
	ledgerClient ledger.Client,
	stripeIngress *webhook.StripeIngress,
	issuerService issuer.Service,
	correlationService correlation.Service,
	redemptionService redemption.Service,
	eventService event.Service,
	deadLetterService deadletter.Service,
	logger *zap.Logger) (Credit, error) {
	sc := &StoreCredit{
		natsConn:      natsConn,
		classifier:    webhook.NewClassifier(appConfig),
		stripeIngress: stripeIngress,
		shopifySecret: appConfig.Shopify.WebhookSecret,
		logger:        logger,
		issuer:        issuerService,
		ledger:        ledgerClient,
		correlation:   correlationService,
		redemption:    redemptionService,
		event:         eventService,
		deadLetter:    deadLetterService,
	}

	sc.dispatcher = NewDispatcherFromConfig(appConfig, sc, logger)
	sc.eventManager = NewEventManager(natsConn, sc.dispatcher, deadLetterService, logger)
	sc.dispatcher.Run()

	if err := sc.eventManager.SubscribeToEvents(); err != nil {
		sc.dispatcher.Stop()
		return nil, err
	}

	return sc, nil
}

func (sc *StoreCredit) VerifyCredit(ctx context.Context, req issuer.VerifyRequest) (*issuer.VerifyResult, error) {
	return sc.issuer.VerifyCredit(ctx, req)
}

// Status never fails; an unreachable ledger is reported as disconnected.
func (sc *StoreCredit) Status(ctx context.Context) *models.LedgerStatus {
	if err := sc.ledger.Ping(ctx); err != nil {
		sc.logger.Warn("credit ledger health probe failed", zap.Error(err))
		return &models.LedgerStatus{
			Connected: false,
			Status:    "disconnected",
			Message:   "Credit check service is unavailable",
		}
	}
	return &models.LedgerStatus{
		Connected: true,
		Status:    "connected",
		Message:   "Credit check service is available",
	}
}

func (sc *StoreCredit) CreateDiscount(ctx context.Context, req issuer.CreateDiscountRequest) (*models.IssuedCredit, error) {
	return sc.issuer.CreateDiscount(ctx, req)
}

func (sc *StoreCredit) DeleteDiscount(ctx context.Context, id string) error {
	return sc.issuer.DeleteDiscount(ctx, id)
}

// HandleShopifyWebhook authenticates, deduplicates and classifies a delivery,
// then queues redemption triggers. Malformed bodies are dead-lettered and
// acknowledged.
func (sc *StoreCredit) HandleShopifyWebhook(ctx context.Context, delivery ShopifyDelivery) error {
	logger := sc.logger.With(
		zap.String("provider", config.ProviderShopify),
		zap.String("topic", delivery.Topic),
		zap.String("webhook_id", delivery.WebhookID))

	if sc.shopifySecret != "" && !webhook.VerifyShopifyHMAC(delivery.Body, sc.shopifySecret, delivery.HMAC) {
		logger.Warn("rejected webhook with invalid hmac")
		return errs.Unauthorized("invalid webhook signature")
	}

	if sc.alreadyProcessed(ctx, logger, delivery.WebhookID) {
		return nil
	}

	result, err := sc.classifier.Classify(delivery.Topic, delivery.Body)
	if err != nil {
		sc.recordMalformed(ctx, logger, delivery.Body, err)
		return nil
	}
	if result.Ignored() {
		logger.Info("webhook ignored", zap.String("reason", result.Reason))
		return nil
	}

	result.Event.DeliveryID = delivery.WebhookID
	return sc.enqueue(ctx, logger, result.Event)
}

func (sc *StoreCredit) HandleStripeWebhook(ctx context.Context, payload []byte, signature string) error {
	logger := sc.logger.With(zap.String("provider", config.ProviderStripe))

	if !sc.stripeIngress.Enabled() {
		return errs.NotFound("stripe webhooks are not enabled")
	}

	stripeEvent, err := sc.stripeIngress.Parse(payload, signature)
	if err != nil {
		logger.Warn("rejected stripe webhook", zap.Error(err))
		return err
	}
	logger = logger.With(zap.String("event_id", stripeEvent.ID), zap.String("event_type", string(stripeEvent.Type)))

	if sc.alreadyProcessed(ctx, logger, stripeEvent.ID) {
		return nil
	}

	result, err := sc.stripeIngress.Classify(ctx, stripeEvent)
	if err != nil {
		if errs.KindOf(err) == errs.KindMalformedPayload {
			sc.recordMalformed(ctx, logger, payload, err)
			return nil
		}
		logger.Error("failed to classify stripe event", zap.Error(err))
		return err
	}
	if result.Ignored() {
		logger.Info("webhook ignored", zap.String("reason", result.Reason))
		return nil
	}

	return sc.enqueue(ctx, logger, result.Event)
}

// alreadyProcessed treats a failed lookup as unprocessed; the redemption
// claim still rejects duplicates.
func (sc *StoreCredit) alreadyProcessed(ctx context.Context, logger *zap.Logger, deliveryID string) bool {
	if deliveryID == "" {
		return false
	}
	processed, err := sc.event.IsEventProcessed(ctx, deliveryID)
	if err != nil {
		logger.Warn("failed to check processed deliveries", zap.Error(err))
		return false
	}
	if processed {
		logger.Info("Event is already processed")
	}
	return processed
}

func (sc *StoreCredit) enqueue(ctx context.Context, logger *zap.Logger, orderEvent *models.OrderPaidEvent) error {
	if orderEvent.DeliveryID != "" {
		now := time.Now()
		if err := sc.event.Create(ctx, &models.WebhookEvent{
			ID:        orderEvent.DeliveryID,
			Provider:  orderEvent.Provider,
			Topic:     orderEvent.Topic,
			CreatedAt: now,
			UpdatedAt: now,
		}); err != nil {
			logger.Warn("failed to record delivery", zap.Error(err))
		}
	}

	if err := sc.eventManager.PublishEvent(ctx, orderEvent); err != nil {
		logger.Error("failed to queue order event", zap.String("order_ref", orderEvent.Order.Ref()), zap.Error(err))
		return errs.Internal("failed to queue order event", err)
	}

	logger.Info("order event queued", zap.String("order_ref", orderEvent.Order.Ref()))
	return nil
}

func (sc *StoreCredit) recordMalformed(ctx context.Context, logger *zap.Logger, body []byte, cause error) {
	payload := json.RawMessage(body)
	if !json.Valid(body) {
		payload, _ = json.Marshal(string(body))
	}

	logger.Error("malformed webhook payload", zap.ByteString("payload", body), zap.Error(cause))

	if err := sc.deadLetter.Record(ctx, &models.DeadLetter{
		Kind:    enum.DeadLetterKindMalformedPayload,
		Payload: payload,
		Error:   cause.Error(),
	}); err != nil {
		logger.Error("failed to record malformed payload", zap.Error(err))
	}
}

// ProcessOrderEvent runs on a dispatcher worker.
func (sc *StoreCredit) ProcessOrderEvent(ctx context.Context, orderEvent *models.OrderPaidEvent) error {
	outcome, err := sc.redemption.OnOrderPaid(ctx, orderEvent.Order)

	logger := sc.logger.With(
		zap.String("order_ref", outcome.OrderRef),
		zap.String("status", string(outcome.Status)),
		zap.String("delivery_id", orderEvent.DeliveryID))
	if outcome.Reason != "" {
		logger = logger.With(zap.String("reason", outcome.Reason))
	}
	logger.Info("order event handled")

	// Dead-lettered outcomes are not retried, so the delivery is done either way.
	if orderEvent.DeliveryID != "" {
		if markErr := sc.event.MarkEventAsProcessed(ctx, orderEvent.DeliveryID); markErr != nil && !errors.Is(markErr, errs.ErrNotFound) {
			logger.Warn("Failed to mark event as processed", zap.Error(markErr))
		}
	}

	return err
}

func (sc *StoreCredit) GetCorrelation(ctx context.Context, discountCode string) (*models.Correlation, error) {
	if discountCode == "" {
		return nil, errs.InvalidInput("discount code is required")
	}
	return sc.correlation.Lookup(ctx, discountCode)
}

func (sc *StoreCredit) ListCorrelations(ctx context.Context, externalCustomerID string) ([]*models.Correlation, error) {
	return sc.correlation.ListByCustomer(ctx, externalCustomerID)
}

func (sc *StoreCredit) GetRedemption(ctx context.Context, orderRef string) (*models.Redemption, error) {
	if orderRef == "" {
		return nil, errs.InvalidInput("order reference is required")
	}
	return sc.redemption.Get(ctx, orderRef)
}

func (sc *StoreCredit) ListDeadLetters(ctx context.Context, status enum.DeadLetterStatus, limit, offset uint64) ([]*models.DeadLetter, error) {
	return sc.deadLetter.List(ctx, status, limit, offset)
}

func (sc *StoreCredit) ResolveDeadLetter(ctx context.Context, id, note string) (*models.DeadLetter, error) {
	return sc.deadLetter.Resolve(ctx, id, note)
}

func (sc *StoreCredit) Close() {
	sc.logger.Info("Initiating graceful shutdown of workers and dispatcher")
	sc.eventManager.Close()
	sc.dispatcher.Stop()
	if sc.natsConn != nil {
		sc.natsConn.Close()
	}
	sc.logger.Info("StoreCredit successfully shutdown")
}
