// Package ledger talks to the external credit ledger: the eligibility check,
// the redemption debit and a connectivity probe.
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"goflare.io/storecredit/config"
	"goflare.io/storecredit/errs"
	"goflare.io/storecredit/models"
)

type Client interface {
	CheckCredit(ctx context.Context, grant models.CreditGrant) (*models.CreditCheckResult, error)
	Redeem(ctx context.Context, req models.RedemptionRequest) error
	Ping(ctx context.Context) error
}

type client struct {
	baseURL      string
	checkPath    string
	redeemPath   string
	healthPath   string
	httpClient   *http.Client
	healthClient *http.Client
	breaker      *gobreaker.CircuitBreaker
	logger       *zap.Logger
}

func NewClient(appConfig *config.Config, logger *zap.Logger) Client {
	cfg := appConfig.Ledger

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	healthTimeout := cfg.HealthTimeout
	if healthTimeout <= 0 {
		healthTimeout = 5 * time.Second
	}

	logger = logger.Named("ledger")

	return &client{
		baseURL:      strings.TrimSuffix(cfg.BaseURL, "/"),
		checkPath:    cfg.CheckPath,
		redeemPath:   cfg.RedeemPath,
		healthPath:   cfg.HealthPath,
		httpClient:   &http.Client{Timeout: timeout},
		healthClient: &http.Client{Timeout: healthTimeout},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "ledger",
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			// Rejections are answers; only transport failures and 5xx trip the breaker.
			IsSuccessful: func(err error) bool {
				if err == nil {
					return true
				}
				var e *errs.Error
				if errors.As(err, &e) && e.Kind == errs.KindRemoteRejected {
					return e.StatusCode < 500
				}
				return errs.KindOf(err) != errs.KindRemoteUnreachable
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("circuit breaker state changed",
					zap.String("breaker", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()))
			},
		}),
		logger: logger,
	}
}

type checkRequest struct {
	CustomerID    string `json:"customer_id"`
	PurchaseOrder string `json:"purchase_order"`
}

type redeemRequest struct {
	CustomerID string      `json:"customer_id"`
	Amount     json.Number `json:"amount"`
	UserID     string      `json:"user_id"`
	ClientID   string      `json:"client_id"`
}

// ledgerResponse covers the fields the ledger has been seen to answer with.
type ledgerResponse struct {
	Success         *bool               `json:"success"`
	Amount          decimal.NullDecimal `json:"amount"`
	AvailableCredit decimal.NullDecimal `json:"available_credit"`
	CreditAmount    decimal.NullDecimal `json:"credit_amount"`
	Message         string              `json:"message"`
	Error           string              `json:"error"`
}

func (r *ledgerResponse) amount() decimal.Decimal {
	for _, v := range []decimal.NullDecimal{r.Amount, r.AvailableCredit, r.CreditAmount} {
		if v.Valid {
			return v.Decimal
		}
	}
	return decimal.Zero
}

func (c *client) CheckCredit(ctx context.Context, grant models.CreditGrant) (*models.CreditCheckResult, error) {
	body, err := c.post(ctx, c.checkPath, checkRequest{
		CustomerID:    grant.ExternalCustomerID,
		PurchaseOrder: grant.PurchaseOrderRef,
	})
	if err != nil {
		return nil, err
	}

	var resp ledgerResponse
	if err = json.Unmarshal(body, &resp); err != nil {
		c.logger.Warn("malformed credit check response", zap.ByteString("body", body), zap.Error(err))
		return nil, errs.RemoteRejected(http.StatusBadGateway, "malformed credit check response")
	}

	return &models.CreditCheckResult{
		Eligible: resp.Success == nil || *resp.Success,
		Amount:   resp.amount(),
		Raw:      json.RawMessage(body),
	}, nil
}

func (c *client) Redeem(ctx context.Context, req models.RedemptionRequest) error {
	if !req.Amount.IsNegative() {
		return errs.InvalidAmount("redemption amount must be negative, got %s", req.Amount)
	}

	body, err := c.post(ctx, c.redeemPath, redeemRequest{
		CustomerID: req.ExternalCustomerID,
		Amount:     json.Number(req.Amount.StringFixed(2)),
		UserID:     req.ExternalCustomerID,
		ClientID:   req.OrderRef,
	})
	if err != nil {
		return err
	}

	var resp ledgerResponse
	if err = json.Unmarshal(body, &resp); err != nil {
		c.logger.Warn("malformed redemption response", zap.ByteString("body", body), zap.Error(err))
		return errs.RemoteRejected(http.StatusBadGateway, "malformed redemption response")
	}
	if resp.Success == nil || !*resp.Success {
		return errs.RemoteRejected(http.StatusOK, firstNonEmpty(resp.Message, resp.Error, "ledger did not confirm redemption"))
	}

	return nil
}

// Ping reports whether the ledger answers at all; any HTTP status counts.
func (c *client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+c.healthPath, nil)
	if err != nil {
		return errs.Internal("failed to build health request", err)
	}

	resp, err := c.healthClient.Do(req)
	if err != nil {
		return errs.RemoteUnreachable("credit ledger unreachable", err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()

	return nil
}

func (c *client) post(ctx context.Context, path string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, errs.Internal("failed to marshal ledger request", err)
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.do(ctx, path, raw)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, errs.RemoteUnreachable("credit ledger circuit open", err)
		}
		return nil, err
	}

	return result.([]byte), nil
}

func (c *client) do(ctx context.Context, path string, raw []byte) ([]byte, error) {
	start := time.Now()
	url := c.baseURL + path

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return nil, errs.Internal("failed to build ledger request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("ledger request failed",
			zap.String("url", url),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err))
		return nil, errs.RemoteUnreachable("credit ledger unreachable", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.RemoteUnreachable("failed to read ledger response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn("ledger rejected request",
			zap.String("url", url),
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", body),
			zap.Duration("duration", time.Since(start)))
		return nil, errs.RemoteRejected(resp.StatusCode, rejectionMessage(resp.StatusCode, body))
	}

	c.logger.Debug("ledger request succeeded",
		zap.String("url", url),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)))

	return body, nil
}

func rejectionMessage(status int, body []byte) string {
	var resp ledgerResponse
	if err := json.Unmarshal(body, &resp); err == nil {
		if msg := firstNonEmpty(resp.Message, resp.Error); msg != "" {
			return msg
		}
	}
	if text := strings.TrimSpace(string(body)); text != "" {
		return text
	}
	return fmt.Sprintf("credit ledger returned %d", status)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
