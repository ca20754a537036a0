package models

import (
	"bytes"
	"encoding/json"

	"github.com/shopspring/decimal"

	"goflare.io/storecredit/models/enum"
)

// Order is the subset of a platform order the redemption pipeline reads.
type Order struct {
	ID              ID                  `json:"id"`
	Name            string              `json:"name,omitempty"`
	FinancialStatus string              `json:"financial_status,omitempty"`
	TotalPrice      string              `json:"total_price,omitempty"`
	Currency        string              `json:"currency,omitempty"`
	DiscountCodes   []OrderDiscountCode `json:"discount_codes"`
	Customer        *OrderCustomer      `json:"customer,omitempty"`
}

// OrderDiscountCode is one code applied to an order. Amount is the value the
// platform reports as actually applied for that code.
type OrderDiscountCode struct {
	Code   string              `json:"code"`
	Amount decimal.NullDecimal `json:"amount"`
	Type   string              `json:"type,omitempty"`
}

type OrderCustomer struct {
	ID    ID     `json:"id"`
	Email string `json:"email,omitempty"`
}

// Ref is the stable order reference passed to the ledger on every delivery.
func (o *Order) Ref() string {
	return string(o.ID)
}

// ID is a platform identifier that may arrive as a JSON number or string.
type ID string

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string {
	return string(id)
}

// OrderPaidEvent is a classified, redemption-triggering notification.
type OrderPaidEvent struct {
	DeliveryID string     `json:"delivery_id,omitempty"`
	Provider   string     `json:"provider"`
	Topic      enum.Topic `json:"topic"`
	Order      *Order     `json:"order"`
}
