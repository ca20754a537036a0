package handlers

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"goflare.io/storecredit"
	"goflare.io/storecredit/issuer"
	"goflare.io/storecredit/models"
)

type DiscountHandler interface {
	CreateDiscount(c echo.Context) error
	DeleteDiscount(c echo.Context) error
}

type discountHandler struct {
	Credit storecredit.Credit
	logger *zap.Logger
}

func NewDiscountHandler(
	Credit storecredit.Credit,
	logger *zap.Logger,
) DiscountHandler {
	return &discountHandler{
		Credit: Credit,
		logger: logger,
	}
}

type createDiscountRequest struct {
	CustomerID     string          `json:"customerId"`
	DiscountAmount decimal.Decimal `json:"discountAmount"`
	CartTotal      decimal.Decimal `json:"cartTotal"`
	DiscountCode   string          `json:"discountCode"`
	ExpiresAt      *time.Time      `json:"expiresAt"`
}

type createDiscountResponse struct {
	Success         bool             `json:"success"`
	DiscountID      string           `json:"discountId"`
	DiscountCode    string           `json:"discountCode"`
	AmountApplied   decimal.Decimal  `json:"amountApplied"`
	RemainingAmount decimal.Decimal  `json:"remainingAmount"`
	Existing        bool             `json:"existing"`
	Data            *models.Discount `json:"data"`
	Message         string           `json:"message"`
}

// CreateDiscount handles POST /discounts
func (dh *discountHandler) CreateDiscount(c echo.Context) error {
	var req createDiscountRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request payload")
	}
	if req.CustomerID == "" {
		return badRequest(c, "customerId, discountAmount, and cartTotal are required")
	}

	issued, err := dh.Credit.CreateDiscount(c.Request().Context(), issuer.CreateDiscountRequest{
		ExternalCustomerID: req.CustomerID,
		DiscountAmount:     req.DiscountAmount,
		CartTotal:          req.CartTotal,
		DiscountCode:       req.DiscountCode,
		ExpiresAt:          req.ExpiresAt,
	})
	if err != nil {
		return respondError(c, dh.logger, err)
	}

	resp := createDiscountResponse{
		Success:         true,
		DiscountCode:    issued.DiscountCode,
		AmountApplied:   issued.AmountApplied,
		RemainingAmount: issued.RemainingAmount,
		Existing:        issued.Existing,
		Data:            issued.Discount,
		Message:         "Discount created successfully",
	}
	if issued.Discount != nil {
		resp.DiscountID = issued.Discount.ID
	}

	return c.JSON(http.StatusOK, resp)
}

// DeleteDiscount handles DELETE /discounts/:id
func (dh *discountHandler) DeleteDiscount(c echo.Context) error {
	if err := dh.Credit.DeleteDiscount(c.Request().Context(), c.Param("id")); err != nil {
		return respondError(c, dh.logger, err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"message": "Discount deleted successfully",
	})
}
