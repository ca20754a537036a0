package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"goflare.io/storecredit"
	"goflare.io/storecredit/issuer"
	"goflare.io/storecredit/models"
)

type CreditHandler interface {
	VerifyCredit(c echo.Context) error
	Status(c echo.Context) error
}

type creditHandler struct {
	Credit storecredit.Credit
	logger *zap.Logger
}

func NewCreditHandler(
	Credit storecredit.Credit,
	logger *zap.Logger,
) CreditHandler {
	return &creditHandler{
		Credit: Credit,
		logger: logger,
	}
}

type verifyCreditRequest struct {
	CustomerID    string              `json:"customerId"`
	PurchaseOrder string              `json:"purchaseOrder"`
	CartTotal     decimal.Decimal     `json:"cartTotal"`
	CreditAmount  decimal.NullDecimal `json:"creditAmount"`
	ExpiresAt     *time.Time          `json:"expiresAt"`
}

type verifyCreditResponse struct {
	Success         bool            `json:"success"`
	DiscountCode    string          `json:"discountCode"`
	AmountApplied   decimal.Decimal `json:"amountApplied"`
	RemainingAmount decimal.Decimal `json:"remainingAmount"`
	Data            json.RawMessage `json:"data,omitempty"`
	Message         string          `json:"message"`
}

// VerifyCredit handles POST /credit/verify
func (ch *creditHandler) VerifyCredit(c echo.Context) error {
	var req verifyCreditRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request payload")
	}

	result, err := ch.Credit.VerifyCredit(c.Request().Context(), issuer.VerifyRequest{
		Grant: models.CreditGrant{
			ExternalCustomerID: req.CustomerID,
			PurchaseOrderRef:   req.PurchaseOrder,
		},
		CartTotal:    req.CartTotal,
		CreditAmount: req.CreditAmount,
		ExpiresAt:    req.ExpiresAt,
	})
	if err != nil {
		return respondError(c, ch.logger, err)
	}

	return c.JSON(http.StatusOK, verifyCreditResponse{
		Success:         true,
		DiscountCode:    result.Issued.DiscountCode,
		AmountApplied:   result.Issued.AmountApplied,
		RemainingAmount: result.Issued.RemainingAmount,
		Data:            result.LedgerData,
		Message:         "Credit check completed successfully",
	})
}

type statusResponse struct {
	Success bool `json:"success"`
	*models.LedgerStatus
}

// Status handles GET /credit/status
func (ch *creditHandler) Status(c echo.Context) error {
	status := ch.Credit.Status(c.Request().Context())
	return c.JSON(http.StatusOK, statusResponse{Success: status.Connected, LedgerStatus: status})
}
