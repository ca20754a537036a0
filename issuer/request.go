package issuer

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"goflare.io/storecredit/models"
)

type IssueRequest struct {
	ExternalCustomerID string
	PurchaseOrderRef   string
	CreditAmount       decimal.Decimal
	CartTotal          decimal.Decimal
	// ExpiresAt overrides the configured discount TTL.
	ExpiresAt *time.Time
}

type VerifyRequest struct {
	Grant     models.CreditGrant
	CartTotal decimal.Decimal
	// CreditAmount, when set, must not exceed what the ledger reports.
	CreditAmount decimal.NullDecimal
	ExpiresAt    *time.Time
}

type VerifyResult struct {
	Issued *models.IssuedCredit
	// LedgerData is the ledger's response, passed through untouched.
	LedgerData json.RawMessage
}

type CreateDiscountRequest struct {
	ExternalCustomerID string
	DiscountAmount     decimal.Decimal
	CartTotal          decimal.Decimal
	DiscountCode       string
	ExpiresAt          *time.Time
}
