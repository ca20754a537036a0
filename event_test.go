package storecredit

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"goflare.io/storecredit/deadletter/deadlettertest"
	"goflare.io/storecredit/models"
	"goflare.io/storecredit/models/enum"
)

func natsMessage(t *testing.T, event *models.OrderPaidEvent) *nats.Msg {
	t.Helper()
	data, err := json.Marshal(event)
	require.NoError(t, err)
	return &nats.Msg{Subject: subject(event), Data: data}
}

func TestHandleMessageSubmitsToDispatcher(t *testing.T) {
	processor := &countingProcessor{}
	d := NewDispatcher(1, 5, processor, zap.NewNop())
	d.Run()
	recorder := deadlettertest.NewRecorder()
	em := NewEventManager(nil, d, recorder, zap.NewNop())

	em.handleMessage(natsMessage(t, orderEvent("1001")))
	d.Stop()

	assert.Equal(t, 1, processor.count())
	assert.Empty(t, recorder.Entries)
}

func TestHandleMessageDeadLettersWhenDispatcherStopped(t *testing.T) {
	d := NewDispatcher(1, 5, &countingProcessor{}, zap.NewNop())
	d.Stop()
	recorder := deadlettertest.NewRecorder()
	em := NewEventManager(nil, d, recorder, zap.NewNop())

	event := orderEvent("1002")
	event.Order.DiscountCodes = []models.OrderDiscountCode{{Code: "CREDIT_C1"}}
	em.handleMessage(natsMessage(t, event))

	require.Len(t, recorder.Entries, 1)
	entry := recorder.Entries[0]
	assert.Equal(t, enum.DeadLetterKindDeferred, entry.Kind)
	assert.Equal(t, "1002", entry.OrderRef)
	assert.Equal(t, "CREDIT_C1", entry.DiscountCode)
	assert.Contains(t, entry.Error, ErrDispatcherStopped.Error())

	var stored models.OrderPaidEvent
	require.NoError(t, json.Unmarshal(entry.Payload, &stored))
	assert.Equal(t, "1002", stored.Order.Ref())
}

func TestHandleMessageDeadLettersWhenQueueFull(t *testing.T) {
	d := NewDispatcher(1, 1, &countingProcessor{}, zap.NewNop())
	require.NoError(t, d.Submit(context.Background(), orderEvent("queued")))
	recorder := deadlettertest.NewRecorder()
	em := NewEventManager(nil, d, recorder, zap.NewNop())

	em.handleMessage(natsMessage(t, orderEvent("1003")))

	require.Equal(t, []enum.DeadLetterKind{enum.DeadLetterKindDeferred}, recorder.Kinds())
	assert.Contains(t, recorder.Entries[0].Error, ErrQueueFull.Error())
	d.Stop()
}

func TestCloseWithoutSubscription(t *testing.T) {
	em := NewEventManager(nil, NewDispatcher(1, 1, &countingProcessor{}, zap.NewNop()), deadlettertest.NewRecorder(), zap.NewNop())
	assert.NotPanics(t, em.Close)
}
