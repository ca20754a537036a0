package event

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"goflare.io/storecredit/driver"
	"goflare.io/storecredit/driver/drivertest"
	"goflare.io/storecredit/errs"
	"goflare.io/storecredit/models"
	"goflare.io/storecredit/models/enum"
)

type memoryRepository struct {
	rows map[string]models.WebhookEvent
}

func (m *memoryRepository) Create(_ context.Context, _ pgx.Tx, event *models.WebhookEvent) error {
	if _, ok := m.rows[event.ID]; !ok {
		m.rows[event.ID] = *event
	}
	return nil
}

func (m *memoryRepository) GetByID(_ context.Context, _ pgx.Tx, id string) (*models.WebhookEvent, error) {
	event, ok := m.rows[id]
	if !ok {
		return nil, errs.NotFound("webhook event %s not found", id)
	}
	return &event, nil
}

func (m *memoryRepository) MarkAsProcessed(_ context.Context, _ pgx.Tx, id string) error {
	event := m.rows[id]
	event.Processed = true
	m.rows[id] = event
	return nil
}

func TestDeliveryLifecycle(t *testing.T) {
	repo := &memoryRepository{rows: map[string]models.WebhookEvent{}}
	svc := NewService(repo, driver.NewTransactionManager(drivertest.NewPool(), zap.NewNop()))
	ctx := context.Background()

	processed, err := svc.IsEventProcessed(ctx, "wh-1")
	require.NoError(t, err)
	assert.False(t, processed, "unknown deliveries are not processed")

	require.NoError(t, svc.Create(ctx, &models.WebhookEvent{ID: "wh-1", Provider: "shopify", Topic: enum.TopicOrdersPaid}))
	require.NoError(t, svc.Create(ctx, &models.WebhookEvent{ID: "wh-1", Provider: "shopify", Topic: enum.TopicOrdersPaid}))

	processed, err = svc.IsEventProcessed(ctx, "wh-1")
	require.NoError(t, err)
	assert.False(t, processed)

	require.NoError(t, svc.MarkEventAsProcessed(ctx, "wh-1"))

	processed, err = svc.IsEventProcessed(ctx, "wh-1")
	require.NoError(t, err)
	assert.True(t, processed)
}
