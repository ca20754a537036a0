// Package deadletter keeps the reconciliation log: partial failures that
// need an operator, such as a debit the ledger refused.
package deadletter

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"goflare.io/storecredit/driver"
	"goflare.io/storecredit/models"
	"goflare.io/storecredit/models/enum"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

type Service interface {
	// Record never fails the caller's flow; persistence errors are logged
	// with the full entry and returned for the caller to log.
	Record(ctx context.Context, entry *models.DeadLetter) error
	List(ctx context.Context, status enum.DeadLetterStatus, limit, offset uint64) ([]*models.DeadLetter, error)
	Resolve(ctx context.Context, id, note string) (*models.DeadLetter, error)
}

type service struct {
	repo               Repository
	publisher          Publisher
	transactionManager *driver.TransactionManager
	logger             *zap.Logger
}

func NewService(repo Repository, publisher Publisher, tm *driver.TransactionManager, logger *zap.Logger) Service {
	return &service{
		repo:               repo,
		publisher:          publisher,
		transactionManager: tm,
		logger:             logger.Named("deadletter"),
	}
}

func (s *service) Record(ctx context.Context, entry *models.DeadLetter) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Status == "" {
		entry.Status = enum.DeadLetterStatusOpen
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	fields := []zap.Field{
		zap.String("dead_letter_id", entry.ID),
		zap.String("kind", string(entry.Kind)),
		zap.String("order_ref", entry.OrderRef),
		zap.String("discount_code", entry.DiscountCode),
		zap.String("external_customer_id", entry.ExternalCustomerID),
		zap.String("error", entry.Error),
		zap.ByteString("payload", entry.Payload),
	}
	if entry.Amount.Valid {
		fields = append(fields, zap.String("amount", entry.Amount.Decimal.StringFixed(2)))
	}
	s.logger.Warn("recording dead letter", fields...)

	persistErr := s.transactionManager.ExecuteTransaction(ctx, func(tx pgx.Tx) error {
		return s.repo.Create(ctx, tx, entry)
	})
	if persistErr != nil {
		s.logger.Error("failed to persist dead letter", append(fields, zap.Error(persistErr))...)
	}

	// Published even when the insert failed.
	if err := s.publisher.Publish(ctx, entry); err != nil {
		s.logger.Error("failed to publish dead letter", zap.String("dead_letter_id", entry.ID), zap.Error(err))
	}

	if persistErr != nil {
		return fmt.Errorf("failed to record dead letter: %w", persistErr)
	}
	return nil
}

func (s *service) List(ctx context.Context, status enum.DeadLetterStatus, limit, offset uint64) ([]*models.DeadLetter, error) {
	if limit == 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	var entries []*models.DeadLetter
	if err := s.transactionManager.ExecuteTransaction(ctx, func(tx pgx.Tx) error {
		var err error
		entries, err = s.repo.List(ctx, tx, status, limit, offset)
		return err
	}); err != nil {
		return nil, fmt.Errorf("failed to list dead letters: %w", err)
	}
	return entries, nil
}

func (s *service) Resolve(ctx context.Context, id, note string) (*models.DeadLetter, error) {
	var entry *models.DeadLetter
	if err := s.transactionManager.ExecuteTransaction(ctx, func(tx pgx.Tx) error {
		var err error
		entry, err = s.repo.Resolve(ctx, tx, id, note)
		return err
	}); err != nil {
		return nil, fmt.Errorf("failed to resolve dead letter: %w", err)
	}

	s.logger.Info("dead letter resolved", zap.String("dead_letter_id", id))
	return entry, nil
}
