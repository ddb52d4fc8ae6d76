package mocks

import (
	"context"

	"github.com/ridloal/e-commerce-order-engine/internal/catalog/domain"
	"github.com/ridloal/e-commerce-order-engine/internal/catalog/repository"
	"github.com/stretchr/testify/mock"
)

type MockCatalogRepository struct {
	mock.Mock
}

func (m *MockCatalogRepository) GetProductByID(ctx context.Context, id string) (*domain.Product, error) {
	args := m.Called(ctx, id)
	if p := args.Get(0); p != nil {
		return p.(*domain.Product), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockCatalogRepository) GetVariantByID(ctx context.Context, productID, variantID string) (*domain.ProductVariant, error) {
	args := m.Called(ctx, productID, variantID)
	if v := args.Get(0); v != nil {
		return v.(*domain.ProductVariant), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockCatalogRepository) GetCouponByCode(ctx context.Context, code string) (*domain.Coupon, error) {
	args := m.Called(ctx, code)
	if c := args.Get(0); c != nil {
		return c.(*domain.Coupon), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockCatalogRepository) CountCouponUsages(ctx context.Context, couponID string) (int, error) {
	args := m.Called(ctx, couponID)
	return args.Int(0), args.Error(1)
}

func (m *MockCatalogRepository) CountCouponUsagesByUser(ctx context.Context, couponID, userID string) (int, error) {
	args := m.Called(ctx, couponID, userID)
	return args.Int(0), args.Error(1)
}

func (m *MockCatalogRepository) RecordCouponUsage(ctx context.Context, dbops repository.DBTX, usage *domain.CouponUsage) error {
	args := m.Called(ctx, dbops, usage)
	return args.Error(0)
}
