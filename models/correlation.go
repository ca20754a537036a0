package models

import "time"

// Correlation maps a discount identifier (the discount code) back to the
// external customer identity that earned the credit.
type Correlation struct {
	DiscountIdentifier string    `json:"discount_identifier"`
	ExternalCustomerID string    `json:"external_customer_id"`
	CreatedAt          time.Time `json:"created_at"`
}

func NewCorrelation() *Correlation {
	return &Correlation{}
}
