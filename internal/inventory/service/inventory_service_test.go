package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/ridloal/e-commerce-order-engine/internal/inventory/domain"
	"github.com/ridloal/e-commerce-order-engine/internal/inventory/repository"
	"github.com/ridloal/e-commerce-order-engine/internal/inventory/repository/mocks"
)

func strPtr(s string) *string { return &s }

func activeLock() *repository.LockedProduct {
	return &repository.LockedProduct{ID: "locked", IsActive: true}
}

func TestInventoryLedger_Reserve(t *testing.T) {
	ctx := context.TODO()

	t.Run("Plain product decrement", func(t *testing.T) {
		mockRepo := new(mocks.MockInventoryRepository)
		mockTx := new(mocks.MockDBTX)
		ledger := NewInventoryLedger(mockRepo)

		mockRepo.On("LockProductForUpdate", ctx, mockTx, "prod1").Return(activeLock(), nil).Once()
		mockRepo.On("DecrementProductStock", ctx, mockTx, "prod1", 3).Return(nil).Once()

		err := ledger.Reserve(ctx, mockTx, []domain.StockItem{{ProductID: "prod1", Quantity: 3}})

		assert.NoError(t, err)
		mockRepo.AssertExpectations(t)
		mockRepo.AssertNotCalled(t, "IncrementSoldCount")
	})

	t.Run("Locks are taken in product ID order", func(t *testing.T) {
		mockRepo := new(mocks.MockInventoryRepository)
		mockTx := new(mocks.MockDBTX)
		ledger := NewInventoryLedger(mockRepo)

		var lockOrder []string
		mockRepo.On("LockProductForUpdate", ctx, mockTx, mock.AnythingOfType("string")).
			Run(func(args mock.Arguments) {
				lockOrder = append(lockOrder, args.String(2))
			}).
			Return(activeLock(), nil).Times(3)
		mockRepo.On("DecrementProductStock", ctx, mockTx, mock.AnythingOfType("string"), 1).Return(nil).Times(3)

		err := ledger.Reserve(ctx, mockTx, []domain.StockItem{
			{ProductID: "prodC", Quantity: 1},
			{ProductID: "prodA", Quantity: 1},
			{ProductID: "prodB", Quantity: 1},
		})

		assert.NoError(t, err)
		assert.Equal(t, []string{"prodA", "prodB", "prodC"}, lockOrder)
	})

	t.Run("Variant with its own pool bumps sold count", func(t *testing.T) {
		mockRepo := new(mocks.MockInventoryRepository)
		mockTx := new(mocks.MockDBTX)
		ledger := NewInventoryLedger(mockRepo)

		mockRepo.On("LockProductForUpdate", ctx, mockTx, "prod1").Return(activeLock(), nil).Once()
		mockRepo.On("DecrementVariantStock", ctx, mockTx, "prod1", "var1", 2).Return(nil).Once()
		mockRepo.On("IncrementSoldCount", ctx, mockTx, "prod1", 2).Return(nil).Once()

		err := ledger.Reserve(ctx, mockTx, []domain.StockItem{{ProductID: "prod1", VariantID: strPtr("var1"), Quantity: 2}})

		assert.NoError(t, err)
		mockRepo.AssertExpectations(t)
		mockRepo.AssertNotCalled(t, "DecrementProductStock")
	})

	t.Run("Shared-pool variant falls back to the product counter", func(t *testing.T) {
		mockRepo := new(mocks.MockInventoryRepository)
		mockTx := new(mocks.MockDBTX)
		ledger := NewInventoryLedger(mockRepo)

		mockRepo.On("LockProductForUpdate", ctx, mockTx, "prod1").Return(activeLock(), nil).Once()
		mockRepo.On("DecrementVariantStock", ctx, mockTx, "prod1", "var1", 2).Return(repository.ErrVariantPoolShared).Once()
		mockRepo.On("DecrementProductStock", ctx, mockTx, "prod1", 2).Return(nil).Once()

		err := ledger.Reserve(ctx, mockTx, []domain.StockItem{{ProductID: "prod1", VariantID: strPtr("var1"), Quantity: 2}})

		assert.NoError(t, err)
		mockRepo.AssertExpectations(t)
		// The product counter already tracks sold count on its own path.
		mockRepo.AssertNotCalled(t, "IncrementSoldCount")
	})

	t.Run("Inactive product rejected before any decrement", func(t *testing.T) {
		mockRepo := new(mocks.MockInventoryRepository)
		mockTx := new(mocks.MockDBTX)
		ledger := NewInventoryLedger(mockRepo)

		mockRepo.On("LockProductForUpdate", ctx, mockTx, "prod1").
			Return(&repository.LockedProduct{ID: "prod1", IsActive: false}, nil).Once()

		err := ledger.Reserve(ctx, mockTx, []domain.StockItem{{ProductID: "prod1", Quantity: 1}})

		assert.ErrorIs(t, err, ErrReserveFailed)
		assert.ErrorIs(t, err, repository.ErrProductInactive)
		mockRepo.AssertNotCalled(t, "DecrementProductStock")
	})

	t.Run("Insufficient stock surfaces both sentinels", func(t *testing.T) {
		mockRepo := new(mocks.MockInventoryRepository)
		mockTx := new(mocks.MockDBTX)
		ledger := NewInventoryLedger(mockRepo)

		mockRepo.On("LockProductForUpdate", ctx, mockTx, "prod1").Return(activeLock(), nil).Once()
		mockRepo.On("DecrementProductStock", ctx, mockTx, "prod1", 5).Return(repository.ErrInsufficientStock).Once()

		err := ledger.Reserve(ctx, mockTx, []domain.StockItem{{ProductID: "prod1", Quantity: 5}})

		assert.ErrorIs(t, err, ErrReserveFailed)
		assert.ErrorIs(t, err, repository.ErrInsufficientStock)
	})

	t.Run("Empty and non-positive items rejected", func(t *testing.T) {
		ledger := NewInventoryLedger(new(mocks.MockInventoryRepository))
		mockTx := new(mocks.MockDBTX)

		assert.ErrorIs(t, ledger.Reserve(ctx, mockTx, nil), ErrReserveFailed)
		assert.ErrorIs(t, ledger.Reserve(ctx, mockTx, []domain.StockItem{{ProductID: "prod1", Quantity: 0}}), ErrReserveFailed)
	})
}

func TestInventoryLedger_Restore(t *testing.T) {
	ctx := context.TODO()

	t.Run("Plain product increment", func(t *testing.T) {
		mockRepo := new(mocks.MockInventoryRepository)
		mockTx := new(mocks.MockDBTX)
		ledger := NewInventoryLedger(mockRepo)

		mockRepo.On("LockProductForUpdate", ctx, mockTx, "prod1").Return(activeLock(), nil).Once()
		mockRepo.On("IncrementProductStock", ctx, mockTx, "prod1", 3).Return(nil).Once()

		err := ledger.Restore(ctx, mockTx, []domain.StockItem{{ProductID: "prod1", Quantity: 3}})

		assert.NoError(t, err)
		mockRepo.AssertExpectations(t)
	})

	t.Run("Variant restore mirrors the reserve path", func(t *testing.T) {
		mockRepo := new(mocks.MockInventoryRepository)
		mockTx := new(mocks.MockDBTX)
		ledger := NewInventoryLedger(mockRepo)

		mockRepo.On("LockProductForUpdate", ctx, mockTx, "prod1").Return(activeLock(), nil).Once()
		mockRepo.On("IncrementVariantStock", ctx, mockTx, "prod1", "var1", 2).Return(nil).Once()
		mockRepo.On("DecrementSoldCount", ctx, mockTx, "prod1", 2).Return(nil).Once()

		err := ledger.Restore(ctx, mockTx, []domain.StockItem{{ProductID: "prod1", VariantID: strPtr("var1"), Quantity: 2}})

		assert.NoError(t, err)
		mockRepo.AssertExpectations(t)
	})

	t.Run("Shared-pool variant restores the product counter", func(t *testing.T) {
		mockRepo := new(mocks.MockInventoryRepository)
		mockTx := new(mocks.MockDBTX)
		ledger := NewInventoryLedger(mockRepo)

		mockRepo.On("LockProductForUpdate", ctx, mockTx, "prod1").Return(activeLock(), nil).Once()
		mockRepo.On("IncrementVariantStock", ctx, mockTx, "prod1", "var1", 2).Return(repository.ErrVariantPoolShared).Once()
		mockRepo.On("IncrementProductStock", ctx, mockTx, "prod1", 2).Return(nil).Once()

		err := ledger.Restore(ctx, mockTx, []domain.StockItem{{ProductID: "prod1", VariantID: strPtr("var1"), Quantity: 2}})

		assert.NoError(t, err)
		mockRepo.AssertNotCalled(t, "DecrementSoldCount")
	})

	t.Run("Sold count underflow surfaces ErrRestoreFailed", func(t *testing.T) {
		mockRepo := new(mocks.MockInventoryRepository)
		mockTx := new(mocks.MockDBTX)
		ledger := NewInventoryLedger(mockRepo)

		mockRepo.On("LockProductForUpdate", ctx, mockTx, "prod1").Return(activeLock(), nil).Once()
		mockRepo.On("IncrementVariantStock", ctx, mockTx, "prod1", "var1", 1).Return(nil).Once()
		mockRepo.On("DecrementSoldCount", ctx, mockTx, "prod1", 1).Return(repository.ErrStockOutOfBounds).Once()

		err := ledger.Restore(ctx, mockTx, []domain.StockItem{{ProductID: "prod1", VariantID: strPtr("var1"), Quantity: 1}})

		assert.ErrorIs(t, err, ErrRestoreFailed)
		assert.ErrorIs(t, err, repository.ErrStockOutOfBounds)
	})
}

func TestInventoryLedger_RetryFailedRestorations(t *testing.T) {
	ctx := context.TODO()
	queued := []domain.RestorationFailure{
		{ID: 7, OrderID: "order-1", Items: []domain.StockItem{{ProductID: "prod1", Quantity: 2}}},
	}

	t.Run("Queued restoration applied and resolved", func(t *testing.T) {
		mockRepo := new(mocks.MockInventoryRepository)
		mockTx := new(mocks.MockDBTX)
		ledger := NewInventoryLedger(mockRepo)

		mockRepo.On("ListUnresolvedRestorations", ctx, restorationBatchSize).Return(queued, nil).Once()
		mockRepo.On("BeginTx", ctx).Return(mockTx, nil).Once()
		mockRepo.On("LockProductForUpdate", ctx, mockTx, "prod1").Return(activeLock(), nil).Once()
		mockRepo.On("IncrementProductStock", ctx, mockTx, "prod1", 2).Return(nil).Once()
		mockTx.On("Commit").Return(nil).Once()
		mockRepo.On("MarkRestorationResolved", ctx, int64(7)).Return(nil).Once()

		ledger.RetryFailedRestorations(ctx)

		mockRepo.AssertExpectations(t)
		mockTx.AssertExpectations(t)
		mockRepo.AssertNotCalled(t, "BumpRestorationAttempt")
	})

	t.Run("Still-failing restoration bumps the attempt counter", func(t *testing.T) {
		mockRepo := new(mocks.MockInventoryRepository)
		mockTx := new(mocks.MockDBTX)
		ledger := NewInventoryLedger(mockRepo)

		stillBroken := errors.New("product row gone")
		mockRepo.On("ListUnresolvedRestorations", ctx, restorationBatchSize).Return(queued, nil).Once()
		mockRepo.On("BeginTx", ctx).Return(mockTx, nil).Once()
		mockRepo.On("LockProductForUpdate", ctx, mockTx, "prod1").Return(nil, stillBroken).Once()
		mockTx.On("Rollback").Return(nil).Once()
		mockRepo.On("BumpRestorationAttempt", ctx, int64(7), mock.AnythingOfType("string")).Return(nil).Once()

		ledger.RetryFailedRestorations(ctx)

		mockRepo.AssertExpectations(t)
		mockTx.AssertExpectations(t)
		mockRepo.AssertNotCalled(t, "MarkRestorationResolved")
	})

	t.Run("Nothing queued means no transactions", func(t *testing.T) {
		mockRepo := new(mocks.MockInventoryRepository)
		ledger := NewInventoryLedger(mockRepo)

		mockRepo.On("ListUnresolvedRestorations", ctx, restorationBatchSize).Return([]domain.RestorationFailure{}, nil).Once()

		ledger.RetryFailedRestorations(ctx)

		mockRepo.AssertExpectations(t)
		mockRepo.AssertNotCalled(t, "BeginTx")
	})
}
