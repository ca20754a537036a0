package models

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// CreditGrant is the identity pair sent to the ledger for an eligibility check.
// It is never persisted.
type CreditGrant struct {
	ExternalCustomerID string `json:"customer_id"`
	PurchaseOrderRef   string `json:"purchase_order"`
}

// CreditCheckResult is what the ledger answered for a CreditGrant.
// Raw is the untouched response body, echoed back to callers.
type CreditCheckResult struct {
	Eligible bool
	// Amount is zero when the ledger did not report one.
	Amount decimal.Decimal
	Raw    json.RawMessage
}

// IssuedCredit is the result of a successful issuance.
type IssuedCredit struct {
	DiscountCode    string          `json:"discount_code"`
	AmountApplied   decimal.Decimal `json:"amount_applied"`
	RemainingAmount decimal.Decimal `json:"remaining_amount"`
	Discount        *Discount       `json:"discount"`
	// Existing is true when issuance matched a discount created by an earlier attempt.
	Existing bool `json:"existing"`
}

// LedgerStatus is the result of a ledger health probe.
type LedgerStatus struct {
	Connected bool   `json:"connected"`
	Status    string `json:"status"`
	Message   string `json:"message"`
}
