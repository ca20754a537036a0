package storecredit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"goflare.io/storecredit/config"
	"goflare.io/storecredit/deadletter/deadlettertest"
	"goflare.io/storecredit/errs"
	"goflare.io/storecredit/models"
	"goflare.io/storecredit/models/enum"
	"goflare.io/storecredit/webhook"
)

const webhookSecret = "shpss_test"

type fakeLedger struct {
	pingErr error
}

func (f *fakeLedger) CheckCredit(context.Context, models.CreditGrant) (*models.CreditCheckResult, error) {
	return nil, errors.New("not used")
}

func (f *fakeLedger) Redeem(context.Context, models.RedemptionRequest) error {
	return errors.New("not used")
}

func (f *fakeLedger) Ping(context.Context) error { return f.pingErr }

type fakeRedemption struct {
	mu     sync.Mutex
	orders []string
}

func (f *fakeRedemption) OnOrderPaid(_ context.Context, order *models.Order) (*models.RedemptionOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders = append(f.orders, order.Ref())
	return &models.RedemptionOutcome{OrderRef: order.Ref(), Status: enum.RedemptionStatusRedeemed}, nil
}

func (f *fakeRedemption) Get(_ context.Context, orderRef string) (*models.Redemption, error) {
	return nil, errs.NotFound("no redemption for order %s", orderRef)
}

func (f *fakeRedemption) handled() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.orders...)
}

type fakeEvents struct {
	mu        sync.Mutex
	created   map[string]bool
	processed map[string]bool
}

func newFakeEvents() *fakeEvents {
	return &fakeEvents{created: map[string]bool{}, processed: map[string]bool{}}
}

func (f *fakeEvents) Create(_ context.Context, event *models.WebhookEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created[event.ID] = true
	return nil
}

func (f *fakeEvents) IsEventProcessed(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.processed[id], nil
}

func (f *fakeEvents) MarkEventAsProcessed(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.created[id] {
		return errs.NotFound("no webhook event %s", id)
	}
	f.processed[id] = true
	return nil
}

type fixture struct {
	credit      Credit
	ledger      *fakeLedger
	redemption  *fakeRedemption
	events      *fakeEvents
	deadLetters *deadlettertest.Recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	appConfig := &config.Config{
		Shopify: config.ShopifyConfig{WebhookSecret: webhookSecret},
		Worker:  config.WorkerConfig{MaxWorkers: 2, QueueSize: 10},
	}
	f := &fixture{
		ledger:      &fakeLedger{},
		redemption:  &fakeRedemption{},
		events:      newFakeEvents(),
		deadLetters: deadlettertest.NewRecorder(),
	}

	credit, err := NewStoreCredit(appConfig, nil, f.ledger, nil, nil, nil, f.redemption, f.events, f.deadLetters, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(credit.Close)
	f.credit = credit
	return f
}

func signed(topic, webhookID, body string) ShopifyDelivery {
	return ShopifyDelivery{
		Topic:     topic,
		WebhookID: webhookID,
		HMAC:      webhook.ComputeShopifyHMAC([]byte(body), webhookSecret),
		Body:      []byte(body),
	}
}

const paidBody = `{"id":1001,"financial_status":"paid","discount_codes":[{"code":"CREDIT_C1","amount":"25.00"}]}`

func TestShopifyWebhookQueuesRedemption(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.credit.HandleShopifyWebhook(context.Background(), signed("orders/paid", "wh-1", paidBody)))

	assert.Eventually(t, func() bool { return len(f.redemption.handled()) == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"1001"}, f.redemption.handled())
	assert.Eventually(t, func() bool {
		processed, _ := f.events.IsEventProcessed(context.Background(), "wh-1")
		return processed
	}, time.Second, 10*time.Millisecond)
}

func TestShopifyWebhookSkipsProcessedDelivery(t *testing.T) {
	f := newFixture(t)
	f.events.created["wh-1"] = true
	f.events.processed["wh-1"] = true

	require.NoError(t, f.credit.HandleShopifyWebhook(context.Background(), signed("orders/paid", "wh-1", paidBody)))

	f.credit.Close()
	assert.Empty(t, f.redemption.handled())
}

func TestShopifyWebhookRejectsBadSignature(t *testing.T) {
	f := newFixture(t)
	delivery := signed("orders/paid", "wh-1", paidBody)
	delivery.HMAC = webhook.ComputeShopifyHMAC(delivery.Body, "wrong")

	err := f.credit.HandleShopifyWebhook(context.Background(), delivery)
	assert.ErrorIs(t, err, errs.ErrUnauthorized)
}

func TestShopifyWebhookAcknowledgesMalformedPayload(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.credit.HandleShopifyWebhook(context.Background(), signed("orders/paid", "", "{not json")))

	assert.Equal(t, []enum.DeadLetterKind{enum.DeadLetterKindMalformedPayload}, f.deadLetters.Kinds())
	assert.JSONEq(t, `"{not json"`, string(f.deadLetters.Entries[0].Payload))
}

func TestShopifyWebhookIgnoresOtherTopics(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.credit.HandleShopifyWebhook(context.Background(), signed("orders/create", "", paidBody)))

	f.credit.Close()
	assert.Empty(t, f.redemption.handled())
	assert.Empty(t, f.deadLetters.Entries)
}

func TestStripeWebhookDisabledWithoutIngress(t *testing.T) {
	f := newFixture(t)

	err := f.credit.HandleStripeWebhook(context.Background(), []byte(`{}`), "")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestStatus(t *testing.T) {
	f := newFixture(t)

	status := f.credit.Status(context.Background())
	assert.True(t, status.Connected)
	assert.Equal(t, "connected", status.Status)

	f.ledger.pingErr = errs.RemoteUnreachable("ledger down", errors.New("dial tcp"))
	status = f.credit.Status(context.Background())
	assert.False(t, status.Connected)
	assert.Equal(t, "disconnected", status.Status)
}

func TestGetRedemptionRequiresOrderRef(t *testing.T) {
	f := newFixture(t)

	_, err := f.credit.GetRedemption(context.Background(), "")
	assert.Equal(t, errs.KindInvalidInput, errs.KindOf(err))

	_, err = f.credit.GetRedemption(context.Background(), "1001")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}
