package deadletter

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"goflare.io/storecredit/driver"
	"goflare.io/storecredit/driver/drivertest"
	"goflare.io/storecredit/errs"
	"goflare.io/storecredit/models"
	"goflare.io/storecredit/models/enum"
)

type mockRepository struct {
	mock.Mock
}

func (m *mockRepository) Create(ctx context.Context, tx pgx.Tx, entry *models.DeadLetter) error {
	return m.Called(ctx, tx, entry).Error(0)
}

func (m *mockRepository) List(ctx context.Context, tx pgx.Tx, status enum.DeadLetterStatus, limit, offset uint64) ([]*models.DeadLetter, error) {
	args := m.Called(ctx, tx, status, limit, offset)
	entries, _ := args.Get(0).([]*models.DeadLetter)
	return entries, args.Error(1)
}

func (m *mockRepository) Resolve(ctx context.Context, tx pgx.Tx, id, note string) (*models.DeadLetter, error) {
	args := m.Called(ctx, tx, id, note)
	entry, _ := args.Get(0).(*models.DeadLetter)
	return entry, args.Error(1)
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, entry *models.DeadLetter) error {
	return m.Called(ctx, entry).Error(0)
}

func (m *mockPublisher) Close() error { return nil }

func newTestService(repo Repository, publisher Publisher) (Service, *drivertest.Pool) {
	pool := drivertest.NewPool()
	return NewService(repo, publisher, driver.NewTransactionManager(pool, zap.NewNop()), zap.NewNop()), pool
}

func TestRecordFillsDefaultsAndPublishes(t *testing.T) {
	repo := new(mockRepository)
	publisher := new(mockPublisher)
	repo.On("Create", mock.Anything, mock.Anything, mock.AnythingOfType("*models.DeadLetter")).Return(nil)
	publisher.On("Publish", mock.Anything, mock.AnythingOfType("*models.DeadLetter")).Return(errors.New("broker down"))

	svc, pool := newTestService(repo, publisher)
	entry := &models.DeadLetter{
		Kind:     enum.DeadLetterKindDebitFailed,
		OrderRef: "1001",
		Amount:   decimal.NewNullDecimal(decimal.RequireFromString("-25")),
	}

	require.NoError(t, svc.Record(context.Background(), entry))

	assert.NotEmpty(t, entry.ID)
	assert.Equal(t, enum.DeadLetterStatusOpen, entry.Status)
	assert.False(t, entry.CreatedAt.IsZero())
	assert.Equal(t, 1, pool.Commits)
	repo.AssertExpectations(t)
	publisher.AssertExpectations(t)
}

func TestRecordPersistenceFailure(t *testing.T) {
	repo := new(mockRepository)
	publisher := new(mockPublisher)
	repo.On("Create", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("postgres down"))
	publisher.On("Publish", mock.Anything, mock.AnythingOfType("*models.DeadLetter")).Return(nil).Once()

	svc, pool := newTestService(repo, publisher)
	entry := &models.DeadLetter{Kind: enum.DeadLetterKindDeferred, OrderRef: "1001"}
	err := svc.Record(context.Background(), entry)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres down")
	assert.Equal(t, 1, pool.Rollbacks)
	publisher.AssertCalled(t, "Publish", mock.Anything, entry)
	publisher.AssertExpectations(t)
}

func TestListClampsLimit(t *testing.T) {
	repo := new(mockRepository)
	repo.On("List", mock.Anything, mock.Anything, enum.DeadLetterStatusOpen, uint64(defaultListLimit), uint64(0)).
		Return([]*models.DeadLetter{{ID: "a"}}, nil).Once()
	repo.On("List", mock.Anything, mock.Anything, enum.DeadLetterStatus(""), uint64(maxListLimit), uint64(10)).
		Return([]*models.DeadLetter{}, nil).Once()

	svc, _ := newTestService(repo, new(mockPublisher))

	entries, err := svc.List(context.Background(), enum.DeadLetterStatusOpen, 0, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	_, err = svc.List(context.Background(), "", 10_000, 10)
	require.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestResolveNotFound(t *testing.T) {
	repo := new(mockRepository)
	repo.On("Resolve", mock.Anything, mock.Anything, "missing", "done").Return(nil, errs.NotFound("no open dead letter missing"))

	svc, _ := newTestService(repo, new(mockPublisher))
	_, err := svc.Resolve(context.Background(), "missing", "done")

	assert.ErrorIs(t, err, errs.ErrNotFound)
	assert.Equal(t, 404, errs.HTTPStatus(err))
}
