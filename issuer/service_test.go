package issuer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"goflare.io/storecredit/commerce/commercetest"
	"goflare.io/storecredit/config"
	"goflare.io/storecredit/correlation"
	"goflare.io/storecredit/deadletter/deadlettertest"
	"goflare.io/storecredit/errs"
	"goflare.io/storecredit/models"
	"goflare.io/storecredit/models/enum"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type mockLedger struct {
	mock.Mock
}

func (m *mockLedger) CheckCredit(ctx context.Context, grant models.CreditGrant) (*models.CreditCheckResult, error) {
	args := m.Called(ctx, grant)
	result, _ := args.Get(0).(*models.CreditCheckResult)
	return result, args.Error(1)
}

func (m *mockLedger) Redeem(ctx context.Context, req models.RedemptionRequest) error {
	return m.Called(ctx, req).Error(0)
}

func (m *mockLedger) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

type fakeCorrelation struct {
	codec correlation.Codec
	puts  map[string]string
	err   error
}

func (f *fakeCorrelation) Put(_ context.Context, code, id string) error {
	if f.err != nil {
		return f.err
	}
	f.puts[code] = id
	return nil
}

func (f *fakeCorrelation) Get(_ context.Context, code string) (string, error) {
	return f.codec.Decode(code)
}

func (f *fakeCorrelation) Lookup(_ context.Context, code string) (*models.Correlation, error) {
	id, ok := f.puts[code]
	if !ok {
		return nil, errs.NotFound("no correlation recorded for %s", code)
	}
	return &models.Correlation{DiscountIdentifier: code, ExternalCustomerID: id}, nil
}

func (f *fakeCorrelation) ListByCustomer(_ context.Context, id string) ([]*models.Correlation, error) {
	var out []*models.Correlation
	for code, owner := range f.puts {
		if owner == id {
			out = append(out, &models.Correlation{DiscountIdentifier: code, ExternalCustomerID: owner})
		}
	}
	return out, nil
}

func (f *fakeCorrelation) Codec() correlation.Codec { return f.codec }

type fixture struct {
	svc         Service
	ledger      *mockLedger
	commerce    *commercetest.Client
	correlation *fakeCorrelation
	deadLetters *deadlettertest.Recorder
}

func newFixture() *fixture {
	f := &fixture{
		ledger:      new(mockLedger),
		commerce:    commercetest.NewClient(),
		correlation: &fakeCorrelation{codec: correlation.NewCodec("CREDIT_"), puts: map[string]string{}},
		deadLetters: deadlettertest.NewRecorder(),
	}

	appConfig := &config.Config{Credit: config.CreditConfig{CodePrefix: "CREDIT_", DiscountTTL: 24 * time.Hour}}
	svc := NewService(f.ledger, f.commerce, f.correlation, f.deadLetters, appConfig, zap.NewNop()).(*service)
	svc.now = func() time.Time { return fixedNow }
	svc.lookupBackOff = func() backoff.BackOff {
		return backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Millisecond), 3)
	}
	f.svc = svc
	return f
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestIssueCreditScenario(t *testing.T) {
	f := newFixture()

	issued, err := f.svc.IssueCredit(context.Background(), IssueRequest{
		ExternalCustomerID: "C1",
		PurchaseOrderRef:   "PO-1",
		CreditAmount:       dec("25.00"),
		CartTotal:          dec("100.00"),
	})
	require.NoError(t, err)

	assert.Equal(t, "CREDIT_C1", issued.DiscountCode)
	assert.True(t, issued.AmountApplied.Equal(dec("25")))
	assert.True(t, issued.RemainingAmount.Equal(dec("75")))
	assert.False(t, issued.Existing)

	assert.Equal(t, 1, issued.Discount.UsageLimit)
	assert.True(t, issued.Discount.AppliesOnce)
	assert.Equal(t, enum.ValueTypeFixedAmount, issued.Discount.ValueType)
	assert.Equal(t, fixedNow.Add(24*time.Hour), issued.Discount.ExpiresAt)

	id, err := f.correlation.Get(context.Background(), issued.DiscountCode)
	require.NoError(t, err)
	assert.Equal(t, "C1", id)
	assert.Equal(t, "C1", f.correlation.puts["CREDIT_C1"])
}

func TestIssueCreditValidation(t *testing.T) {
	tests := []struct {
		name string
		req  IssueRequest
		kind errs.Kind
	}{
		{"credit exceeds cart", IssueRequest{ExternalCustomerID: "C1", CreditAmount: dec("150"), CartTotal: dec("100")}, errs.KindInvalidAmount},
		{"zero credit", IssueRequest{ExternalCustomerID: "C1", CreditAmount: dec("0"), CartTotal: dec("100")}, errs.KindInvalidAmount},
		{"negative credit", IssueRequest{ExternalCustomerID: "C1", CreditAmount: dec("-5"), CartTotal: dec("100")}, errs.KindInvalidAmount},
		{"zero cart", IssueRequest{ExternalCustomerID: "C1", CreditAmount: dec("5"), CartTotal: dec("0")}, errs.KindInvalidAmount},
		{"sub-cent credit", IssueRequest{ExternalCustomerID: "C1", CreditAmount: dec("0.001"), CartTotal: dec("1")}, errs.KindInvalidAmount},
		{"half-cent credit", IssueRequest{ExternalCustomerID: "C1", CreditAmount: dec("0.005"), CartTotal: dec("1")}, errs.KindInvalidAmount},
		{"missing customer", IssueRequest{CreditAmount: dec("5"), CartTotal: dec("10")}, errs.KindInvalidInput},
		{"whitespace customer", IssueRequest{ExternalCustomerID: "C 1", CreditAmount: dec("5"), CartTotal: dec("10")}, errs.KindInvalidInput},
		{"past expiry", IssueRequest{ExternalCustomerID: "C1", CreditAmount: dec("5"), CartTotal: dec("10"), ExpiresAt: ptr(fixedNow.Add(-time.Minute))}, errs.KindInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			_, err := f.svc.IssueCredit(context.Background(), tt.req)
			assert.Equal(t, tt.kind, errs.KindOf(err))
			assert.Zero(t, f.commerce.Creates, "no discount may be created")
		})
	}
}

func TestIssueCreditNeverAppliesMoreThanCart(t *testing.T) {
	tests := []struct {
		credit, cart, applied, remaining string
	}{
		{"10.005", "10.005", "10.00", "0.005"},
		{"10.009", "20", "10.00", "10.00"},
		{"7.499", "7.499", "7.49", "0.009"},
	}

	for _, tt := range tests {
		t.Run(tt.credit+"/"+tt.cart, func(t *testing.T) {
			f := newFixture()
			issued, err := f.svc.IssueCredit(context.Background(), IssueRequest{ExternalCustomerID: "C1", CreditAmount: dec(tt.credit), CartTotal: dec(tt.cart)})
			require.NoError(t, err)

			assert.True(t, issued.AmountApplied.Equal(dec(tt.applied)), "applied %s", issued.AmountApplied)
			assert.True(t, issued.RemainingAmount.Equal(dec(tt.remaining)), "remaining %s", issued.RemainingAmount)
			assert.False(t, issued.AmountApplied.GreaterThan(dec(tt.cart)))
			assert.False(t, issued.RemainingAmount.IsNegative())
		})
	}
}

func TestIssueCreditDuplicateCode(t *testing.T) {
	seed := func(f *fixture, value string, expires time.Time) {
		f.commerce.Seed(models.Discount{
			ID:          "900",
			Code:        "CREDIT_C1",
			ValueType:   enum.ValueTypeFixedAmount,
			Value:       dec(value),
			UsageLimit:  1,
			AppliesOnce: true,
			ExpiresAt:   expires,
		})
	}
	req := IssueRequest{ExternalCustomerID: "C1", CreditAmount: dec("25"), CartTotal: dec("100")}

	t.Run("same amount is idempotent", func(t *testing.T) {
		f := newFixture()
		seed(f, "25.00", fixedNow.Add(time.Hour))
		f.commerce.HideFinds = 2

		issued, err := f.svc.IssueCredit(context.Background(), req)
		require.NoError(t, err)
		assert.True(t, issued.Existing)
		assert.Equal(t, "900", issued.Discount.ID)
		assert.Equal(t, 1, f.commerce.Count())
		assert.Equal(t, "C1", f.correlation.puts["CREDIT_C1"])
	})

	t.Run("different amount conflicts", func(t *testing.T) {
		f := newFixture()
		seed(f, "10.00", fixedNow.Add(time.Hour))

		_, err := f.svc.IssueCredit(context.Background(), req)
		assert.ErrorIs(t, err, errs.ErrDiscountConflict)
		assert.Equal(t, 409, errs.HTTPStatus(err))
	})

	t.Run("expired discount conflicts", func(t *testing.T) {
		f := newFixture()
		seed(f, "25.00", fixedNow.Add(-time.Hour))

		_, err := f.svc.IssueCredit(context.Background(), req)
		assert.ErrorIs(t, err, errs.ErrDiscountConflict)
	})

	t.Run("used discount conflicts", func(t *testing.T) {
		f := newFixture()
		f.commerce.Seed(models.Discount{
			ID:          "900",
			Code:        "CREDIT_C1",
			ValueType:   enum.ValueTypeFixedAmount,
			Value:       dec("25.00"),
			UsageLimit:  1,
			UsageCount:  1,
			AppliesOnce: true,
			ExpiresAt:   fixedNow.Add(time.Hour),
		})

		_, err := f.svc.IssueCredit(context.Background(), req)
		assert.ErrorIs(t, err, errs.ErrDiscountConflict)
		assert.Contains(t, errs.Message(err), "already been used")
	})

	t.Run("never readable conflicts", func(t *testing.T) {
		f := newFixture()
		seed(f, "25.00", fixedNow.Add(time.Hour))
		f.commerce.HideFinds = 100

		_, err := f.svc.IssueCredit(context.Background(), req)
		assert.ErrorIs(t, err, errs.ErrDiscountConflict)
	})
}

func TestIssueCreditMirrorFailureKeepsDiscount(t *testing.T) {
	f := newFixture()
	f.correlation.err = errors.New("connection refused")

	issued, err := f.svc.IssueCredit(context.Background(), IssueRequest{ExternalCustomerID: "C1", CreditAmount: dec("5"), CartTotal: dec("10")})
	require.NoError(t, err)

	assert.Equal(t, "CREDIT_C1", issued.DiscountCode)
	assert.Equal(t, 1, f.commerce.Count())
	assert.Zero(t, f.commerce.Deletes)
	assert.Equal(t, []enum.DeadLetterKind{enum.DeadLetterKindCorrelationWriteFailed}, f.deadLetters.Kinds())
}

func TestIssueCreditPlatformErrorPropagates(t *testing.T) {
	f := newFixture()
	f.commerce.CreateErr = errs.RemoteRejected(401, "Invalid API key or access token")

	_, err := f.svc.IssueCredit(context.Background(), IssueRequest{ExternalCustomerID: "C1", CreditAmount: dec("5"), CartTotal: dec("10")})
	assert.Equal(t, 401, errs.HTTPStatus(err))
	assert.Empty(t, f.correlation.puts)
}

func TestVerifyCredit(t *testing.T) {
	grant := models.CreditGrant{ExternalCustomerID: "C1", PurchaseOrderRef: "PO-1"}
	raw := json.RawMessage(`{"success":true,"amount":40}`)

	t.Run("ledger amount capped at cart total", func(t *testing.T) {
		f := newFixture()
		f.ledger.On("CheckCredit", mock.Anything, grant).Return(&models.CreditCheckResult{Eligible: true, Amount: dec("40"), Raw: raw}, nil)

		result, err := f.svc.VerifyCredit(context.Background(), VerifyRequest{Grant: grant, CartTotal: dec("30")})
		require.NoError(t, err)
		assert.True(t, result.Issued.AmountApplied.Equal(dec("30")))
		assert.True(t, result.Issued.RemainingAmount.IsZero())
		assert.JSONEq(t, string(raw), string(result.LedgerData))
	})

	t.Run("requested amount within ledger amount", func(t *testing.T) {
		f := newFixture()
		f.ledger.On("CheckCredit", mock.Anything, grant).Return(&models.CreditCheckResult{Eligible: true, Amount: dec("40"), Raw: raw}, nil)

		result, err := f.svc.VerifyCredit(context.Background(), VerifyRequest{
			Grant:        grant,
			CartTotal:    dec("100"),
			CreditAmount: decimal.NewNullDecimal(dec("25")),
		})
		require.NoError(t, err)
		assert.True(t, result.Issued.AmountApplied.Equal(dec("25")))
	})

	t.Run("requested amount above ledger amount", func(t *testing.T) {
		f := newFixture()
		f.ledger.On("CheckCredit", mock.Anything, grant).Return(&models.CreditCheckResult{Eligible: true, Amount: dec("20"), Raw: raw}, nil)

		_, err := f.svc.VerifyCredit(context.Background(), VerifyRequest{
			Grant:        grant,
			CartTotal:    dec("100"),
			CreditAmount: decimal.NewNullDecimal(dec("25")),
		})
		assert.ErrorIs(t, err, errs.ErrInvalidAmount)
		assert.Zero(t, f.commerce.Creates)
	})

	t.Run("ledger rejection passes through", func(t *testing.T) {
		f := newFixture()
		f.ledger.On("CheckCredit", mock.Anything, grant).Return(nil, errs.RemoteRejected(404, "customer not found"))

		_, err := f.svc.VerifyCredit(context.Background(), VerifyRequest{Grant: grant, CartTotal: dec("100")})
		assert.Equal(t, 404, errs.HTTPStatus(err))
		assert.Equal(t, "customer not found", errs.Message(err))
		assert.Zero(t, f.commerce.Creates)
	})

	t.Run("ineligible customer", func(t *testing.T) {
		f := newFixture()
		f.ledger.On("CheckCredit", mock.Anything, grant).Return(&models.CreditCheckResult{Eligible: false, Raw: raw}, nil)

		_, err := f.svc.VerifyCredit(context.Background(), VerifyRequest{Grant: grant, CartTotal: dec("100")})
		assert.Equal(t, errs.KindRemoteRejected, errs.KindOf(err))
		assert.Zero(t, f.commerce.Creates)
	})

	t.Run("invalid input skips the ledger", func(t *testing.T) {
		f := newFixture()

		_, err := f.svc.VerifyCredit(context.Background(), VerifyRequest{Grant: grant, CartTotal: dec("0")})
		assert.ErrorIs(t, err, errs.ErrInvalidAmount)
		f.ledger.AssertNotCalled(t, "CheckCredit", mock.Anything, mock.Anything)
	})
}

func TestCreateDiscount(t *testing.T) {
	f := newFixture()

	_, err := f.svc.CreateDiscount(context.Background(), CreateDiscountRequest{
		ExternalCustomerID: "C1",
		DiscountAmount:     dec("5"),
		CartTotal:          dec("50"),
		DiscountCode:       "CREDIT_1700000000000",
	})
	assert.Equal(t, errs.KindInvalidInput, errs.KindOf(err))

	issued, err := f.svc.CreateDiscount(context.Background(), CreateDiscountRequest{
		ExternalCustomerID: "C1",
		DiscountAmount:     dec("5"),
		CartTotal:          dec("50"),
		DiscountCode:       "CREDIT_C1",
		ExpiresAt:          ptr(fixedNow.Add(2 * time.Hour)),
	})
	require.NoError(t, err)
	assert.True(t, issued.RemainingAmount.Equal(dec("45")))
	assert.Equal(t, fixedNow.Add(2*time.Hour), issued.Discount.ExpiresAt)
}

func TestDeleteDiscount(t *testing.T) {
	f := newFixture()
	issued, err := f.svc.IssueCredit(context.Background(), IssueRequest{ExternalCustomerID: "C1", CreditAmount: dec("5"), CartTotal: dec("10")})
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteDiscount(context.Background(), issued.Discount.ID))
	assert.Zero(t, f.commerce.Count())

	err = f.svc.DeleteDiscount(context.Background(), issued.Discount.ID)
	assert.Equal(t, 404, errs.HTTPStatus(err))
}

func ptr[T any](v T) *T {
	return &v
}
