package webhook

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goflare.io/storecredit/config"
	"goflare.io/storecredit/errs"
	"goflare.io/storecredit/models/enum"
)

const paidOrder = `{"id":820982911946154508,"name":"#1001","financial_status":"paid","total_price":"75.00",
"discount_codes":[{"code":"CREDIT_C1","amount":"25.00","type":"fixed_amount"}]}`

func newClassifier(allowTest bool) *Classifier {
	return NewClassifier(&config.Config{Webhook: config.WebhookConfig{AllowTestTopic: allowTest}})
}

func TestClassifyOrdersPaid(t *testing.T) {
	result, err := newClassifier(false).Classify("orders/paid", []byte(paidOrder))
	require.NoError(t, err)
	require.False(t, result.Ignored())

	assert.Equal(t, config.ProviderShopify, result.Event.Provider)
	assert.Equal(t, enum.TopicOrdersPaid, result.Event.Topic)
	assert.Equal(t, "820982911946154508", result.Event.Order.Ref())
	require.Len(t, result.Event.Order.DiscountCodes, 1)
	assert.Equal(t, "CREDIT_C1", result.Event.Order.DiscountCodes[0].Code)
}

func TestClassifyLegacyEnvelope(t *testing.T) {
	body := `{"topic":"orders/paid","data":` + paidOrder + `}`

	result, err := newClassifier(false).Classify("", []byte(body))
	require.NoError(t, err)
	require.False(t, result.Ignored())
	assert.Equal(t, "820982911946154508", result.Event.Order.Ref())
}

func TestClassifyIgnored(t *testing.T) {
	tests := []struct {
		name  string
		topic string
		body  string
	}{
		{name: "unhandled topic", topic: "orders/fulfilled", body: paidOrder},
		{name: "create outside test mode", topic: "orders/create", body: paidOrder},
		{name: "not paid", topic: "orders/paid", body: `{"id":1,"financial_status":"pending","discount_codes":[]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := newClassifier(false).Classify(tt.topic, []byte(tt.body))
			require.NoError(t, err)
			assert.True(t, result.Ignored())
			assert.NotEmpty(t, result.Reason)
		})
	}
}

func TestClassifyCreateInTestMode(t *testing.T) {
	result, err := newClassifier(true).Classify("orders/create", []byte(`{"id":7,"financial_status":"pending","discount_codes":[]}`))
	require.NoError(t, err)
	require.False(t, result.Ignored())
	assert.Equal(t, enum.TopicOrdersCreate, result.Event.Topic)
}

func TestClassifyMalformed(t *testing.T) {
	tests := []struct {
		name  string
		topic string
		body  string
	}{
		{name: "empty", topic: "orders/paid", body: ""},
		{name: "not json", topic: "orders/paid", body: "not-json"},
		{name: "no topic", topic: "", body: paidOrder},
		{name: "no id", topic: "orders/paid", body: `{"financial_status":"paid"}`},
		{name: "bad codes", topic: "orders/paid", body: `{"id":1,"discount_codes":"CREDIT_C1"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newClassifier(false).Classify(tt.topic, []byte(tt.body))
			assert.ErrorIs(t, err, errs.ErrMalformedPayload)
		})
	}
}

func TestShopifyHMAC(t *testing.T) {
	body := []byte(paidOrder)
	signature := ComputeShopifyHMAC(body, "shhh")

	assert.True(t, VerifyShopifyHMAC(body, "shhh", signature))
	assert.False(t, VerifyShopifyHMAC(body, "other", signature))
	assert.False(t, VerifyShopifyHMAC(append(body, ' '), "shhh", signature))
	assert.False(t, VerifyShopifyHMAC(body, "shhh", ""))
	assert.False(t, VerifyShopifyHMAC(body, "shhh", "%%%"))
}
