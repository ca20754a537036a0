package storecredit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"goflare.io/storecredit/deadletter"
	"goflare.io/storecredit/models"
	"goflare.io/storecredit/models/enum"
)

const (
	subjectPrefix = "credit.order."
	queueGroup    = "storecredit"

	drainTimeout      = 30 * time.Second
	drainPollInterval = 50 * time.Millisecond
)

// EventManager moves verified order events to the dispatcher, through NATS
// when a connection is configured so any instance can pick them up.
type EventManager struct {
	natsConn     *nats.Conn
	subscription *nats.Subscription
	dispatcher   *Dispatcher
	deadLetter   deadletter.Service
	logger       *zap.Logger
}

func NewEventManager(natsConn *nats.Conn, dispatcher *Dispatcher, deadLetter deadletter.Service, logger *zap.Logger) *EventManager {
	return &EventManager{
		natsConn:   natsConn,
		dispatcher: dispatcher,
		deadLetter: deadLetter,
		logger:     logger.Named("events"),
	}
}

func subject(event *models.OrderPaidEvent) string {
	return subjectPrefix + string(event.Topic)
}

func (em *EventManager) PublishEvent(ctx context.Context, event *models.OrderPaidEvent) error {
	if em.natsConn == nil {
		return em.dispatcher.Submit(ctx, event)
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err = em.natsConn.Publish(subject(event), data); err != nil {
		return fmt.Errorf("failed to publish event to NATS: %w", err)
	}
	return nil
}

// SubscribeToEvents is a no-op without NATS.
func (em *EventManager) SubscribeToEvents() error {
	if em.natsConn == nil {
		return nil
	}

	sub, err := em.natsConn.QueueSubscribe(subjectPrefix+">", queueGroup, em.handleMessage)
	if err != nil {
		return fmt.Errorf("failed to subscribe to order events: %w", err)
	}
	em.subscription = sub
	return nil
}

func (em *EventManager) handleMessage(msg *nats.Msg) {
	var event models.OrderPaidEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil || event.Order == nil {
		em.logger.Error("Failed to unmarshal event",
			zap.String("subject", msg.Subject),
			zap.ByteString("data", msg.Data),
			zap.Error(err))
		return
	}

	if err := em.dispatcher.Submit(context.Background(), &event); err != nil {
		em.logger.Error("Failed to submit event",
			zap.String("subject", msg.Subject),
			zap.String("order_ref", event.Order.Ref()),
			zap.Error(err))
		em.recordDeferred(&event, msg.Data, err)
	}
}

// recordDeferred keeps an acknowledged delivery that never reached a worker.
func (em *EventManager) recordDeferred(event *models.OrderPaidEvent, data []byte, cause error) {
	entry := &models.DeadLetter{
		Kind:     enum.DeadLetterKindDeferred,
		OrderRef: event.Order.Ref(),
		Payload:  json.RawMessage(data),
		Error:    cause.Error(),
	}
	if len(event.Order.DiscountCodes) > 0 {
		entry.DiscountCode = event.Order.DiscountCodes[0].Code
	}

	if err := em.deadLetter.Record(context.Background(), entry); err != nil {
		em.logger.Error("Failed to record deferred event",
			zap.String("order_ref", entry.OrderRef),
			zap.Error(err))
	}
}

// Close drains the subscription and waits until every pending message has
// been handed to the dispatcher, so it is safe to stop the dispatcher after.
func (em *EventManager) Close() {
	if em.subscription == nil {
		return
	}

	if err := em.subscription.Drain(); err != nil {
		em.logger.Warn("Failed to drain subscription", zap.Error(err))
		return
	}

	deadline := time.Now().Add(drainTimeout)
	for em.subscription.IsValid() {
		if time.Now().After(deadline) {
			em.logger.Warn("Timed out waiting for subscription to drain")
			return
		}
		time.Sleep(drainPollInterval)
	}
}
