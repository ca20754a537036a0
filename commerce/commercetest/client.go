// Package commercetest provides an in-memory commerce.Client.
package commercetest

import (
	"context"
	"strconv"
	"sync"

	"goflare.io/storecredit/errs"
	"goflare.io/storecredit/models"
	"goflare.io/storecredit/models/enum"
)

type Client struct {
	mu        sync.Mutex
	nextID    int
	byID      map[string]*models.Discount
	byCode    map[string]string
	Tagged    []string
	Creates   int
	Deletes   int
	CreateErr error
	FindErr   error
	TagErr    error
	// HideFinds makes the first n lookups miss, like a stale platform read.
	HideFinds int
}

func NewClient() *Client {
	return &Client{
		byID:   make(map[string]*models.Discount),
		byCode: make(map[string]string),
	}
}

func (c *Client) Name() string { return "memory" }

func (c *Client) CreateDiscount(_ context.Context, spec models.DiscountSpec) (*models.Discount, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Creates++
	if c.CreateErr != nil {
		return nil, c.CreateErr
	}
	if _, ok := c.byCode[spec.Code]; ok {
		return nil, errs.Conflict("discount code %s already exists", spec.Code)
	}

	c.nextID++
	discount := &models.Discount{
		ID:                 strconv.Itoa(c.nextID),
		Code:               spec.Code,
		Title:              spec.Title,
		ValueType:          enum.ValueTypeFixedAmount,
		Value:              spec.Amount,
		UsageLimit:         1,
		AppliesOnce:        true,
		StartsAt:           spec.StartsAt,
		ExpiresAt:          spec.ExpiresAt,
		ExternalCustomerID: spec.ExternalCustomerID,
	}
	c.byID[discount.ID] = discount
	c.byCode[discount.Code] = discount.ID

	result := *discount
	return &result, nil
}

func (c *Client) FindDiscountByCode(_ context.Context, code string) (*models.Discount, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.FindErr != nil {
		return nil, c.FindErr
	}
	if c.HideFinds > 0 {
		c.HideFinds--
		return nil, errs.NotFound("discount code %s not found", code)
	}
	id, ok := c.byCode[code]
	if !ok {
		return nil, errs.NotFound("discount code %s not found", code)
	}
	result := *c.byID[id]
	return &result, nil
}

func (c *Client) DeleteDiscount(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	discount, ok := c.byID[id]
	if !ok {
		return errs.RemoteRejected(404, "Not Found")
	}
	c.Deletes++
	delete(c.byCode, discount.Code)
	delete(c.byID, id)
	return nil
}

func (c *Client) TagCustomer(_ context.Context, externalCustomerID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.TagErr != nil {
		return c.TagErr
	}
	c.Tagged = append(c.Tagged, externalCustomerID)
	return nil
}

// Seed stores a discount as if an earlier attempt had created it.
func (c *Client) Seed(discount models.Discount) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if discount.ID == "" {
		c.nextID++
		discount.ID = strconv.Itoa(c.nextID)
	}
	c.byID[discount.ID] = &discount
	c.byCode[discount.Code] = discount.ID
}

func (c *Client) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.byID)
}
