package models

import (
	"time"

	"github.com/shopspring/decimal"

	"goflare.io/storecredit/models/enum"
)

// Discount is a single-use storefront discount owned by the commerce platform.
type Discount struct {
	ID                 string          `json:"id"`
	CodeID             string          `json:"code_id,omitempty"`
	Code               string          `json:"code"`
	Title              string          `json:"title"`
	ValueType          enum.ValueType  `json:"value_type"`
	Value              decimal.Decimal `json:"value"`
	UsageLimit         int             `json:"usage_limit"`
	UsageCount         int             `json:"usage_count"`
	AppliesOnce        bool            `json:"applies_once"`
	StartsAt           time.Time       `json:"starts_at"`
	ExpiresAt          time.Time       `json:"expires_at"`
	ExternalCustomerID string          `json:"external_customer_id,omitempty"`
}

// DiscountSpec is what the issuer asks the commerce platform to create.
type DiscountSpec struct {
	Code               string
	Title              string
	Amount             decimal.Decimal
	ExternalCustomerID string
	StartsAt           time.Time
	ExpiresAt          time.Time
}
