// Package webhook authenticates inbound platform notifications and decides
// which of them trigger a credit redemption.
package webhook

import (
	"bytes"
	"encoding/json"
	"strings"

	"goflare.io/storecredit/config"
	"goflare.io/storecredit/errs"
	"goflare.io/storecredit/models"
	"goflare.io/storecredit/models/enum"
)

const financialStatusPaid = "paid"

// Result is either a redemption trigger or an ignored delivery with a reason.
type Result struct {
	Event  *models.OrderPaidEvent
	Reason string
}

func (r Result) Ignored() bool { return r.Event == nil }

type Classifier struct {
	allowTestTopic bool
}

func NewClassifier(appConfig *config.Config) *Classifier {
	return &Classifier{allowTestTopic: appConfig.Webhook.AllowTestTopic}
}

// legacyEnvelope is the {topic, data} body older relays post instead of
// sending the order with an X-Shopify-Topic header.
type legacyEnvelope struct {
	Topic string          `json:"topic"`
	Data  json.RawMessage `json:"data"`
}

// Classify inspects a Shopify delivery. topic is the X-Shopify-Topic header
// and may be empty for enveloped bodies.
func (c *Classifier) Classify(topic string, body []byte) (Result, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return Result{}, errs.MalformedPayload("empty webhook body", nil)
	}

	var envelope legacyEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return Result{}, errs.MalformedPayload("webhook body is not a JSON object", err)
	}
	if envelope.Topic != "" && len(envelope.Data) > 0 {
		if topic == "" {
			topic = envelope.Topic
		}
		body = envelope.Data
	}

	topic = strings.TrimSpace(topic)
	if topic == "" {
		return Result{}, errs.MalformedPayload("webhook topic missing", nil)
	}

	switch enum.Topic(topic) {
	case enum.TopicOrdersPaid:
	case enum.TopicOrdersCreate:
		if !c.allowTestTopic {
			return Result{Reason: "orders/create ignored outside test mode"}, nil
		}
	default:
		return Result{Reason: "unhandled topic " + topic}, nil
	}

	var order models.Order
	if err := json.Unmarshal(body, &order); err != nil {
		return Result{}, errs.MalformedPayload("order payload could not be parsed", err)
	}
	if order.Ref() == "" {
		return Result{}, errs.MalformedPayload("order payload has no id", nil)
	}

	if enum.Topic(topic) == enum.TopicOrdersPaid && order.FinancialStatus != "" && order.FinancialStatus != financialStatusPaid {
		return Result{Reason: "order financial status is " + order.FinancialStatus}, nil
	}

	return Result{Event: &models.OrderPaidEvent{
		Provider: config.ProviderShopify,
		Topic:    enum.Topic(topic),
		Order:    &order,
	}}, nil
}
