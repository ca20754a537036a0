package webhook

import (
	"context"
	"encoding/json"

	"github.com/stripe/stripe-go/v79"
	stripewebhook "github.com/stripe/stripe-go/v79/webhook"

	"goflare.io/storecredit/commerce"
	"goflare.io/storecredit/config"
	"goflare.io/storecredit/errs"
	"goflare.io/storecredit/models"
	"goflare.io/storecredit/models/enum"
)

// SessionFetcher re-reads a checkout session with its discounts expanded.
type SessionFetcher interface {
	CheckoutSession(ctx context.Context, id string) (*stripe.CheckoutSession, error)
}

type StripeIngress struct {
	secret   string
	sessions SessionFetcher
}

// NewStripeIngress uses the commerce client to re-read sessions when it is
// the Stripe backend.
func NewStripeIngress(appConfig *config.Config, commerceClient commerce.Client) *StripeIngress {
	ingress := &StripeIngress{secret: appConfig.Stripe.WebhookSecret}
	if fetcher, ok := commerceClient.(SessionFetcher); ok {
		ingress.sessions = fetcher
	}
	return ingress
}

func (s *StripeIngress) Enabled() bool {
	return s != nil && s.secret != "" && s.sessions != nil
}

// Parse verifies the Stripe-Signature header and decodes the event.
func (s *StripeIngress) Parse(payload []byte, signature string) (*stripe.Event, error) {
	event, err := stripewebhook.ConstructEventWithOptions(payload, signature, s.secret, stripewebhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, errs.InvalidInput("invalid stripe signature: %v", err)
	}
	return &event, nil
}

func (s *StripeIngress) Classify(ctx context.Context, event *stripe.Event) (Result, error) {
	topic := enum.Topic(event.Type)
	if topic != enum.TopicCheckoutSessionCompleted && topic != enum.TopicCheckoutSessionAsyncSucceeded {
		return Result{Reason: "unhandled stripe event " + string(event.Type)}, nil
	}

	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return Result{}, errs.MalformedPayload("checkout session could not be parsed", err)
	}
	if session.ID == "" {
		return Result{}, errs.MalformedPayload("checkout session has no id", nil)
	}
	if session.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
		return Result{Reason: "checkout session payment status is " + string(session.PaymentStatus)}, nil
	}

	expanded, err := s.sessions.CheckoutSession(ctx, session.ID)
	if err != nil {
		return Result{}, err
	}

	return Result{Event: &models.OrderPaidEvent{
		DeliveryID: event.ID,
		Provider:   config.ProviderStripe,
		Topic:      topic,
		Order:      commerce.OrderFromCheckoutSession(expanded),
	}}, nil
}
