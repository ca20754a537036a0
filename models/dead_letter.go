package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"goflare.io/storecredit/models/enum"
)

// DeadLetter is an entry in the reconciliation log. Nothing consumes it
// automatically; operators resolve entries by hand.
type DeadLetter struct {
	ID                 string                `json:"id"`
	Kind               enum.DeadLetterKind   `json:"kind"`
	Status             enum.DeadLetterStatus `json:"status"`
	OrderRef           string                `json:"order_ref,omitempty"`
	DiscountCode       string                `json:"discount_code,omitempty"`
	ExternalCustomerID string                `json:"external_customer_id,omitempty"`
	Amount             decimal.NullDecimal   `json:"amount"`
	Payload            json.RawMessage       `json:"payload,omitempty"`
	Error              string                `json:"error,omitempty"`
	ResolutionNote     string                `json:"resolution_note,omitempty"`
	CreatedAt          time.Time             `json:"created_at"`
	ResolvedAt         *time.Time            `json:"resolved_at,omitempty"`
}
