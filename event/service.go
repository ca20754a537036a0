// Package event remembers platform webhook delivery ids so a redelivered
// notification that was already handled is dropped early.
package event

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"goflare.io/storecredit/driver"
	"goflare.io/storecredit/errs"
	"goflare.io/storecredit/models"
)

type Service interface {
	Create(ctx context.Context, event *models.WebhookEvent) error
	// IsEventProcessed is false for unknown ids.
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventAsProcessed(ctx context.Context, eventID string) error
}

type service struct {
	repo               Repository
	transactionManager *driver.TransactionManager
}

func NewService(repo Repository, tm *driver.TransactionManager) Service {
	return &service{repo: repo, transactionManager: tm}
}

func (s *service) Create(ctx context.Context, event *models.WebhookEvent) error {
	return s.transactionManager.ExecuteTransaction(ctx, func(tx pgx.Tx) error {
		return s.repo.Create(ctx, tx, event)
	})
}

func (s *service) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var processed bool
	err := s.transactionManager.ExecuteTransaction(ctx, func(tx pgx.Tx) error {
		event, err := s.repo.GetByID(ctx, tx, eventID)
		if err != nil {
			return err
		}
		processed = event.Processed
		return nil
	})
	if errors.Is(err, errs.ErrNotFound) {
		return false, nil
	}
	return processed, err
}

func (s *service) MarkEventAsProcessed(ctx context.Context, eventID string) error {
	return s.transactionManager.ExecuteTransaction(ctx, func(tx pgx.Tx) error {
		return s.repo.MarkAsProcessed(ctx, tx, eventID)
	})
}
