package models

import (
	"time"

	"github.com/shopspring/decimal"

	"goflare.io/storecredit/models/enum"
)

// RedemptionRequest is the ledger debit. Amount is negative: consumption.
type RedemptionRequest struct {
	ExternalCustomerID string          `json:"customer_id"`
	Amount             decimal.Decimal `json:"amount"`
	OrderRef           string          `json:"client_id"`
}

// RedemptionOutcome is the terminal state reached for one order notification.
type RedemptionOutcome struct {
	OrderRef           string                `json:"order_ref"`
	Status             enum.RedemptionStatus `json:"status"`
	DiscountCode       string                `json:"discount_code,omitempty"`
	ExternalCustomerID string                `json:"external_customer_id,omitempty"`
	Amount             decimal.Decimal       `json:"amount"`
	Reason             string                `json:"reason,omitempty"`
}

// Redemption is the persisted dedup record, keyed by OrderRef.
type Redemption struct {
	OrderRef           string
	DiscountCode       string
	ExternalCustomerID string
	Amount             decimal.Decimal
	Status             enum.RedemptionStatus
	Detail             string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}
