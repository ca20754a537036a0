package commerce

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"goflare.io/storecredit/config"
	"goflare.io/storecredit/errs"
	"goflare.io/storecredit/models"
	"goflare.io/storecredit/models/enum"
)

const shopifyTokenHeader = "X-Shopify-Access-Token"

// ShopifyClient speaks the Shopify Admin REST API. A discount is a price rule
// plus one discount code; Discount.ID is the price rule id.
type ShopifyClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewShopifyClient(appConfig *config.Config, logger *zap.Logger) *ShopifyClient {
	shop := strings.TrimSuffix(appConfig.Shopify.ShopURL, "/")
	if !strings.HasPrefix(shop, "http://") && !strings.HasPrefix(shop, "https://") {
		shop = "https://" + shop
	}

	return &ShopifyClient{
		baseURL:    fmt.Sprintf("%s/admin/api/%s", shop, appConfig.Shopify.APIVersion),
		token:      appConfig.Shopify.AccessToken,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger.Named("shopify"),
	}
}

func (s *ShopifyClient) Name() string { return config.ProviderShopify }

type shopifyPriceRule struct {
	ID                int64     `json:"id,omitempty"`
	Title             string    `json:"title"`
	TargetType        string    `json:"target_type"`
	TargetSelection   string    `json:"target_selection"`
	AllocationMethod  string    `json:"allocation_method"`
	ValueType         string    `json:"value_type"`
	Value             string    `json:"value"`
	CustomerSelection string    `json:"customer_selection"`
	StartsAt          time.Time `json:"starts_at"`
	EndsAt            time.Time `json:"ends_at"`
	UsageLimit        *int      `json:"usage_limit"`
	OncePerCustomer   bool      `json:"once_per_customer"`
}

type shopifyDiscountCode struct {
	ID          int64  `json:"id,omitempty"`
	PriceRuleID int64  `json:"price_rule_id,omitempty"`
	Code        string `json:"code"`
	UsageCount  int    `json:"usage_count,omitempty"`
}

func (s *ShopifyClient) CreateDiscount(ctx context.Context, spec models.DiscountSpec) (*models.Discount, error) {
	usageLimit := 1
	rule := shopifyPriceRule{
		Title:             spec.Title,
		TargetType:        "line_item",
		TargetSelection:   "all",
		AllocationMethod:  "across",
		ValueType:         string(enum.ValueTypeFixedAmount),
		Value:             spec.Amount.Neg().StringFixed(2),
		CustomerSelection: "all",
		StartsAt:          spec.StartsAt.UTC(),
		EndsAt:            spec.ExpiresAt.UTC(),
		UsageLimit:        &usageLimit,
		OncePerCustomer:   true,
	}

	var created struct {
		PriceRule shopifyPriceRule `json:"price_rule"`
	}
	if err := s.do(ctx, http.MethodPost, "/price_rules.json", map[string]any{"price_rule": rule}, &created); err != nil {
		return nil, err
	}

	var code struct {
		DiscountCode shopifyDiscountCode `json:"discount_code"`
	}
	path := fmt.Sprintf("/price_rules/%d/discount_codes.json", created.PriceRule.ID)
	if err := s.do(ctx, http.MethodPost, path, map[string]any{"discount_code": shopifyDiscountCode{Code: spec.Code}}, &code); err != nil {
		s.deleteOrphan(ctx, created.PriceRule.ID)
		if errs.HTTPStatus(err) == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(errs.Message(err)), "unique") {
			return nil, errs.Conflict("discount code %s already exists", spec.Code)
		}
		return nil, err
	}

	discount := toDiscount(created.PriceRule, code.DiscountCode)
	discount.ExternalCustomerID = spec.ExternalCustomerID
	return discount, nil
}

// deleteOrphan removes a price rule whose code could not be attached.
func (s *ShopifyClient) deleteOrphan(ctx context.Context, priceRuleID int64) {
	if err := s.DeleteDiscount(ctx, strconv.FormatInt(priceRuleID, 10)); err != nil {
		s.logger.Warn("failed to delete orphan price rule",
			zap.Int64("price_rule_id", priceRuleID),
			zap.Error(err))
	}
}

func (s *ShopifyClient) FindDiscountByCode(ctx context.Context, code string) (*models.Discount, error) {
	var found struct {
		DiscountCode shopifyDiscountCode `json:"discount_code"`
	}
	if err := s.do(ctx, http.MethodGet, "/discount_codes/lookup.json?code="+url.QueryEscape(code), nil, &found); err != nil {
		if errs.HTTPStatus(err) == http.StatusNotFound {
			return nil, errs.NotFound("discount code %s not found", code)
		}
		return nil, err
	}

	var rule struct {
		PriceRule shopifyPriceRule `json:"price_rule"`
	}
	if err := s.do(ctx, http.MethodGet, fmt.Sprintf("/price_rules/%d.json", found.DiscountCode.PriceRuleID), nil, &rule); err != nil {
		return nil, err
	}

	return toDiscount(rule.PriceRule, found.DiscountCode), nil
}

func (s *ShopifyClient) DeleteDiscount(ctx context.Context, id string) error {
	return s.do(ctx, http.MethodDelete, fmt.Sprintf("/price_rules/%s.json", url.PathEscape(id)), nil, nil)
}

type shopifyMetafield struct {
	ID        int64  `json:"id,omitempty"`
	Namespace string `json:"namespace"`
	Key       string `json:"key"`
	Value     string `json:"value"`
	Type      string `json:"type"`
}

type shopifyCustomer struct {
	ID         int64              `json:"id,omitempty"`
	Email      string             `json:"email"`
	FirstName  string             `json:"first_name,omitempty"`
	LastName   string             `json:"last_name,omitempty"`
	Tags       string             `json:"tags,omitempty"`
	Metafields []shopifyMetafield `json:"metafields,omitempty"`
}

func (s *ShopifyClient) TagCustomer(ctx context.Context, externalCustomerID string) error {
	email := CustomerEmail(externalCustomerID)
	metafield := shopifyMetafield{
		Namespace: MetafieldNamespace,
		Key:       MetafieldKey,
		Value:     externalCustomerID,
		Type:      "single_line_text_field",
	}

	var search struct {
		Customers []shopifyCustomer `json:"customers"`
	}
	if err := s.do(ctx, http.MethodGet, "/customers/search.json?query="+url.QueryEscape("email:"+email), nil, &search); err != nil {
		return err
	}

	if len(search.Customers) == 0 {
		customer := shopifyCustomer{
			Email:      email,
			FirstName:  "Credit",
			LastName:   externalCustomerID,
			Tags:       "credit-system",
			Metafields: []shopifyMetafield{metafield},
		}
		return s.do(ctx, http.MethodPost, "/customers.json", map[string]any{"customer": customer}, nil)
	}

	customerID := search.Customers[0].ID
	path := fmt.Sprintf("/customers/%d/metafields.json", customerID)
	err := s.do(ctx, http.MethodPost, path, map[string]any{"metafield": metafield}, nil)
	if err == nil || errs.HTTPStatus(err) != http.StatusUnprocessableEntity {
		return err
	}

	// The metafield already exists; overwrite it in place.
	var existing struct {
		Metafields []shopifyMetafield `json:"metafields"`
	}
	query := fmt.Sprintf("%s?namespace=%s&key=%s", path, MetafieldNamespace, MetafieldKey)
	if err = s.do(ctx, http.MethodGet, query, nil, &existing); err != nil {
		return err
	}
	if len(existing.Metafields) == 0 {
		return errs.NotFound("metafield %s.%s not found on customer %d", MetafieldNamespace, MetafieldKey, customerID)
	}

	metafield.ID = existing.Metafields[0].ID
	return s.do(ctx, http.MethodPut, fmt.Sprintf("/metafields/%d.json", metafield.ID), map[string]any{"metafield": metafield}, nil)
}

func toDiscount(rule shopifyPriceRule, code shopifyDiscountCode) *models.Discount {
	value, err := decimal.NewFromString(rule.Value)
	if err != nil {
		value = decimal.Zero
	}
	usageLimit := 0
	if rule.UsageLimit != nil {
		usageLimit = *rule.UsageLimit
	}

	return &models.Discount{
		ID:          strconv.FormatInt(rule.ID, 10),
		CodeID:      strconv.FormatInt(code.ID, 10),
		Code:        code.Code,
		Title:       rule.Title,
		ValueType:   enum.ValueType(rule.ValueType),
		Value:       value.Abs(),
		UsageLimit:  usageLimit,
		UsageCount:  code.UsageCount,
		AppliesOnce: rule.OncePerCustomer,
		StartsAt:    rule.StartsAt,
		ExpiresAt:   rule.EndsAt,
	}
}

func (s *ShopifyClient) do(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return errs.Internal("failed to marshal shopify request", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return errs.Internal("failed to build shopify request", err)
	}
	req.Header.Set(shopifyTokenHeader, s.token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.logger.Error("shopify request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err))
		return errs.RemoteUnreachable("shopify unreachable", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return errs.RemoteUnreachable("failed to read shopify response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		s.logger.Warn("shopify rejected request",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", raw))
		return errs.RemoteRejected(resp.StatusCode, shopifyErrorMessage(resp.StatusCode, raw))
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	if err = json.Unmarshal(raw, out); err != nil {
		return errs.Internal("malformed shopify response", err)
	}
	return nil
}

// shopifyErrorMessage flattens the "errors" member, which Shopify sends as a
// string, a list or a field map depending on the endpoint.
func shopifyErrorMessage(status int, raw []byte) string {
	var envelope struct {
		Errors json.RawMessage `json:"errors"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil || len(envelope.Errors) == 0 {
		return fmt.Sprintf("shopify returned %d", status)
	}

	var text string
	if json.Unmarshal(envelope.Errors, &text) == nil {
		return text
	}

	var list []string
	if json.Unmarshal(envelope.Errors, &list) == nil {
		return strings.Join(list, "; ")
	}

	var fields map[string][]string
	if json.Unmarshal(envelope.Errors, &fields) == nil {
		parts := make([]string, 0, len(fields))
		for field, messages := range fields {
			parts = append(parts, field+" "+strings.Join(messages, ", "))
		}
		sort.Strings(parts)
		return strings.Join(parts, "; ")
	}

	return string(envelope.Errors)
}
