package handlers

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"goflare.io/storecredit"
)

const (
	headerShopifyTopic     = "X-Shopify-Topic"
	headerShopifyHMAC      = "X-Shopify-Hmac-Sha256"
	headerShopifyWebhookID = "X-Shopify-Webhook-Id"
	headerStripeSignature  = "Stripe-Signature"
)

type WebhookHandler interface {
	HandleShopifyWebhook(c echo.Context) error
	HandleStripeWebhook(c echo.Context) error
}

type webhookHandler struct {
	Credit storecredit.Credit
	logger *zap.Logger
}

func NewWebhookHandler(
	Credit storecredit.Credit,
	logger *zap.Logger,
) WebhookHandler {
	return &webhookHandler{
		Credit: Credit,
		logger: logger,
	}
}

// HandleShopifyWebhook handles POST /webhooks/orders
func (wh *webhookHandler) HandleShopifyWebhook(c echo.Context) error {
	payload, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to read request body"})
	}

	header := c.Request().Header
	if err = wh.Credit.HandleShopifyWebhook(c.Request().Context(), storecredit.ShopifyDelivery{
		Topic:     header.Get(headerShopifyTopic),
		WebhookID: header.Get(headerShopifyWebhookID),
		HMAC:      header.Get(headerShopifyHMAC),
		Body:      payload,
	}); err != nil {
		return respondError(c, wh.logger, err)
	}

	return c.JSON(http.StatusOK, map[string]any{"success": true, "message": "Webhook processed"})
}

// HandleStripeWebhook handles POST /webhooks/stripe
func (wh *webhookHandler) HandleStripeWebhook(c echo.Context) error {
	payload, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to read request body"})
	}

	signature := c.Request().Header.Get(headerStripeSignature)

	if err = wh.Credit.HandleStripeWebhook(c.Request().Context(), payload, signature); err != nil {
		return respondError(c, wh.logger, err)
	}

	return c.NoContent(http.StatusOK)
}
