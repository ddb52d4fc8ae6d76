package mocks

import (
	"context"
	"time"

	"github.com/ridloal/e-commerce-order-engine/internal/order/domain"
	"github.com/ridloal/e-commerce-order-engine/internal/order/repository"
	"github.com/stretchr/testify/mock"
)

type MockOrderRepository struct {
	mock.Mock
}

func (m *MockOrderRepository) BeginTx(ctx context.Context) (repository.DBTX, error) {
	args := m.Called(ctx)
	if tx := args.Get(0); tx != nil {
		return tx.(repository.DBTX), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockOrderRepository) CreateOrderWithItems(ctx context.Context, dbops repository.DBTX, order *domain.Order) error {
	args := m.Called(ctx, dbops, order)
	if order != nil && args.Error(0) == nil {
		order.ID = "mock-order-id"
		order.CreatedAt = time.Now()
		order.UpdatedAt = order.CreatedAt
	}
	return args.Error(0)
}

func (m *MockOrderRepository) GetOrderByID(ctx context.Context, id string) (*domain.Order, error) {
	args := m.Called(ctx, id)
	if o := args.Get(0); o != nil {
		return o.(*domain.Order), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockOrderRepository) GetOrderByNumber(ctx context.Context, orderNumber string) (*domain.Order, error) {
	args := m.Called(ctx, orderNumber)
	if o := args.Get(0); o != nil {
		return o.(*domain.Order), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockOrderRepository) GetOrderItemsByOrderID(ctx context.Context, orderID string) ([]domain.OrderItem, error) {
	args := m.Called(ctx, orderID)
	if oi := args.Get(0); oi != nil {
		return oi.([]domain.OrderItem), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockOrderRepository) ListOrdersByUserID(ctx context.Context, userID string) ([]domain.Order, error) {
	args := m.Called(ctx, userID)
	if o := args.Get(0); o != nil {
		return o.([]domain.Order), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockOrderRepository) GetStatusHistory(ctx context.Context, orderID string) ([]domain.StatusHistoryEntry, error) {
	args := m.Called(ctx, orderID)
	if h := args.Get(0); h != nil {
		return h.([]domain.StatusHistoryEntry), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockOrderRepository) UpdateOrderStatus(ctx context.Context, dbops repository.DBTX, orderID string, from, to domain.OrderStatus, actor, note string, isSystem bool) error {
	args := m.Called(ctx, dbops, orderID, from, to, actor, note, isSystem)
	return args.Error(0)
}

func (m *MockOrderRepository) MarkOrderPaid(ctx context.Context, dbops repository.DBTX, orderID string, result *domain.PaymentResult, paidAt time.Time) error {
	args := m.Called(ctx, dbops, orderID, result, paidAt)
	return args.Error(0)
}

func (m *MockOrderRepository) RecordCancellation(ctx context.Context, dbops repository.DBTX, orderID string, details *domain.CancellationDetails) error {
	args := m.Called(ctx, dbops, orderID, details)
	return args.Error(0)
}

func (m *MockOrderRepository) SetTrackingInfo(ctx context.Context, dbops repository.DBTX, orderID string, info *domain.TrackingInfo) error {
	args := m.Called(ctx, dbops, orderID, info)
	return args.Error(0)
}

func (m *MockOrderRepository) AddAdminNote(ctx context.Context, orderID string, note *domain.AdminNote) error {
	args := m.Called(ctx, orderID, note)
	if note != nil && args.Error(0) == nil {
		note.ID = "mock-note-id"
	}
	return args.Error(0)
}

func (m *MockOrderRepository) GetPendingUnpaidOlderThan(ctx context.Context, olderThan time.Duration) ([]domain.Order, error) {
	args := m.Called(ctx, olderThan)
	if o := args.Get(0); o != nil {
		return o.([]domain.Order), args.Error(1)
	}
	return nil, args.Error(1)
}
