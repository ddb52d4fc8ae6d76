package mocks

import (
	"context"

	invDomain "github.com/ridloal/e-commerce-order-engine/internal/inventory/domain"
	invRepo "github.com/ridloal/e-commerce-order-engine/internal/inventory/repository"
	"github.com/ridloal/e-commerce-order-engine/internal/order/domain"
	pricingService "github.com/ridloal/e-commerce-order-engine/internal/pricing/service"
	"github.com/stretchr/testify/mock"
)

type MockInventoryLedger struct {
	mock.Mock
}

func (m *MockInventoryLedger) Reserve(ctx context.Context, dbops invRepo.DBTX, items []invDomain.StockItem) error {
	args := m.Called(ctx, dbops, items)
	return args.Error(0)
}

func (m *MockInventoryLedger) Restore(ctx context.Context, dbops invRepo.DBTX, items []invDomain.StockItem) error {
	args := m.Called(ctx, dbops, items)
	return args.Error(0)
}

func (m *MockInventoryLedger) QueueRestoration(ctx context.Context, orderID string, items []invDomain.StockItem, cause string) {
	m.Called(ctx, orderID, items, cause)
}

func (m *MockInventoryLedger) RetryFailedRestorations(ctx context.Context) {
	m.Called(ctx)
}

type MockPricingEngine struct {
	mock.Mock
}

func (m *MockPricingEngine) PriceCart(ctx context.Context, userID string, items []pricingService.CartItem, couponCode *string) (*pricingService.Quote, error) {
	args := m.Called(ctx, userID, items, couponCode)
	if q := args.Get(0); q != nil {
		return q.(*pricingService.Quote), args.Error(1)
	}
	return nil, args.Error(1)
}

type MockPaymentGatewayClient struct {
	mock.Mock
}

func (m *MockPaymentGatewayClient) VerifyTransaction(ctx context.Context, transactionRef string) (*domain.PaymentResult, error) {
	args := m.Called(ctx, transactionRef)
	if r := args.Get(0); r != nil {
		return r.(*domain.PaymentResult), args.Error(1)
	}
	return nil, args.Error(1)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishEvent(ctx context.Context, topic string, key string, event any) error {
	args := m.Called(ctx, topic, key, event)
	return args.Error(0)
}

func (m *MockPublisher) Close() error {
	args := m.Called()
	return args.Error(0)
}

type MockInvalidator struct {
	mock.Mock
}

func (m *MockInvalidator) InvalidatePattern(ctx context.Context, pattern string) error {
	args := m.Called(ctx, pattern)
	return args.Error(0)
}
