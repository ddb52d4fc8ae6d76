package mocks

import (
	"context"

	"github.com/ridloal/e-commerce-order-engine/internal/inventory/domain"
	"github.com/ridloal/e-commerce-order-engine/internal/inventory/repository"
	"github.com/stretchr/testify/mock"
)

type MockInventoryRepository struct {
	mock.Mock
}

func (m *MockInventoryRepository) BeginTx(ctx context.Context) (repository.DBTX, error) {
	args := m.Called(ctx)
	if tx := args.Get(0); tx != nil {
		return tx.(repository.DBTX), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockInventoryRepository) LockProductForUpdate(ctx context.Context, dbops repository.DBTX, productID string) (*repository.LockedProduct, error) {
	args := m.Called(ctx, dbops, productID)
	if lp := args.Get(0); lp != nil {
		return lp.(*repository.LockedProduct), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockInventoryRepository) DecrementProductStock(ctx context.Context, dbops repository.DBTX, productID string, qty int) error {
	args := m.Called(ctx, dbops, productID, qty)
	return args.Error(0)
}

func (m *MockInventoryRepository) IncrementProductStock(ctx context.Context, dbops repository.DBTX, productID string, qty int) error {
	args := m.Called(ctx, dbops, productID, qty)
	return args.Error(0)
}

func (m *MockInventoryRepository) DecrementVariantStock(ctx context.Context, dbops repository.DBTX, productID, variantID string, qty int) error {
	args := m.Called(ctx, dbops, productID, variantID, qty)
	return args.Error(0)
}

func (m *MockInventoryRepository) IncrementVariantStock(ctx context.Context, dbops repository.DBTX, productID, variantID string, qty int) error {
	args := m.Called(ctx, dbops, productID, variantID, qty)
	return args.Error(0)
}

func (m *MockInventoryRepository) IncrementSoldCount(ctx context.Context, dbops repository.DBTX, productID string, qty int) error {
	args := m.Called(ctx, dbops, productID, qty)
	return args.Error(0)
}

func (m *MockInventoryRepository) DecrementSoldCount(ctx context.Context, dbops repository.DBTX, productID string, qty int) error {
	args := m.Called(ctx, dbops, productID, qty)
	return args.Error(0)
}

func (m *MockInventoryRepository) QueueRestorationFailure(ctx context.Context, orderID string, items []domain.StockItem, cause string) error {
	args := m.Called(ctx, orderID, items, cause)
	return args.Error(0)
}

func (m *MockInventoryRepository) ListUnresolvedRestorations(ctx context.Context, limit int) ([]domain.RestorationFailure, error) {
	args := m.Called(ctx, limit)
	if f := args.Get(0); f != nil {
		return f.([]domain.RestorationFailure), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockInventoryRepository) MarkRestorationResolved(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockInventoryRepository) BumpRestorationAttempt(ctx context.Context, id int64, lastErr string) error {
	args := m.Called(ctx, id, lastErr)
	return args.Error(0)
}
