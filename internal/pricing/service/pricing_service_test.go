package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ridloal/e-commerce-order-engine/internal/catalog/domain"
	catalogRepo "github.com/ridloal/e-commerce-order-engine/internal/catalog/repository"
	"github.com/ridloal/e-commerce-order-engine/internal/catalog/repository/mocks"
)

var testCfg = Config{
	TaxRate:               0.09,
	ShippingFlatFee:       50000,
	FreeShippingThreshold: 500000,
}

func strPtr(s string) *string { return &s }

func intPtr(i int) *int { return &i }

func floatPtr(f float64) *float64 { return &f }

func activeProduct(id string, price float64, stock int) *domain.Product {
	return &domain.Product{
		ID:            id,
		Name:          "Product " + id,
		CategoryID:    "cat-1",
		Price:         price,
		StockQuantity: stock,
		IsActive:      true,
	}
}

func TestPricingEngine_PriceCart(t *testing.T) {
	ctx := context.TODO()

	t.Run("Flat shipping and tax on a small cart", func(t *testing.T) {
		mockCatalog := new(mocks.MockCatalogRepository)
		engine := NewPricingEngine(mockCatalog, testCfg)

		mockCatalog.On("GetProductByID", ctx, "prod1").Return(activeProduct("prod1", 100000, 10), nil).Once()

		quote, err := engine.PriceCart(ctx, "user1", []CartItem{{ProductID: "prod1", Quantity: 2}}, nil)

		assert.NoError(t, err)
		assert.Equal(t, 200000.0, quote.ItemsPrice)
		assert.Equal(t, 50000.0, quote.ShippingPrice)
		assert.Equal(t, 18000.0, quote.TaxPrice)
		assert.Equal(t, 0.0, quote.DiscountAmount)
		assert.Equal(t, 268000.0, quote.TotalPrice)
		assert.Len(t, quote.Lines, 1)
		assert.Equal(t, 100000.0, quote.Lines[0].UnitPrice)
		mockCatalog.AssertExpectations(t)
	})

	t.Run("Shipping waived at the free-shipping threshold", func(t *testing.T) {
		mockCatalog := new(mocks.MockCatalogRepository)
		engine := NewPricingEngine(mockCatalog, testCfg)

		mockCatalog.On("GetProductByID", ctx, "prod1").Return(activeProduct("prod1", 500000, 5), nil).Once()

		quote, err := engine.PriceCart(ctx, "user1", []CartItem{{ProductID: "prod1", Quantity: 1}}, nil)

		assert.NoError(t, err)
		assert.Equal(t, 0.0, quote.ShippingPrice)
		assert.Equal(t, 45000.0, quote.TaxPrice)
		assert.Equal(t, 545000.0, quote.TotalPrice)
	})

	t.Run("Product discount applied to unit price", func(t *testing.T) {
		mockCatalog := new(mocks.MockCatalogRepository)
		engine := NewPricingEngine(mockCatalog, testCfg)

		p := activeProduct("prod1", 100000, 10)
		p.DiscountPercent = 25
		mockCatalog.On("GetProductByID", ctx, "prod1").Return(p, nil).Once()

		quote, err := engine.PriceCart(ctx, "user1", []CartItem{{ProductID: "prod1", Quantity: 2}}, nil)

		assert.NoError(t, err)
		assert.Equal(t, 75000.0, quote.Lines[0].UnitPrice)
		assert.Equal(t, 150000.0, quote.ItemsPrice)
	})

	t.Run("Variant price modifier and own stock pool", func(t *testing.T) {
		mockCatalog := new(mocks.MockCatalogRepository)
		engine := NewPricingEngine(mockCatalog, testCfg)

		p := activeProduct("prod1", 100000, 0) // base pool empty, variant has its own
		variant := &domain.ProductVariant{
			ID:            "var1",
			ProductID:     "prod1",
			Name:          "XL",
			PriceModifier: 20000,
			StockQuantity: intPtr(3),
			IsActive:      true,
		}
		mockCatalog.On("GetProductByID", ctx, "prod1").Return(p, nil).Once()
		mockCatalog.On("GetVariantByID", ctx, "prod1", "var1").Return(variant, nil).Once()

		quote, err := engine.PriceCart(ctx, "user1", []CartItem{{ProductID: "prod1", VariantID: strPtr("var1"), Quantity: 2}}, nil)

		assert.NoError(t, err)
		assert.Equal(t, 120000.0, quote.Lines[0].UnitPrice)
		assert.True(t, quote.Lines[0].VariantHasOwnStock)
		assert.Equal(t, "XL", *quote.Lines[0].VariantName)
	})

	t.Run("Empty cart rejected", func(t *testing.T) {
		engine := NewPricingEngine(new(mocks.MockCatalogRepository), testCfg)

		_, err := engine.PriceCart(ctx, "user1", nil, nil)
		assert.ErrorIs(t, err, ErrEmptyCart)
	})

	t.Run("Non-positive quantity rejected", func(t *testing.T) {
		engine := NewPricingEngine(new(mocks.MockCatalogRepository), testCfg)

		_, err := engine.PriceCart(ctx, "user1", []CartItem{{ProductID: "prod1", Quantity: 0}}, nil)
		assert.ErrorIs(t, err, ErrEmptyCart)
	})

	t.Run("Unknown product rejected", func(t *testing.T) {
		mockCatalog := new(mocks.MockCatalogRepository)
		engine := NewPricingEngine(mockCatalog, testCfg)

		mockCatalog.On("GetProductByID", ctx, "ghost").Return(nil, catalogRepo.ErrProductNotFound).Once()

		_, err := engine.PriceCart(ctx, "user1", []CartItem{{ProductID: "ghost", Quantity: 1}}, nil)
		assert.ErrorIs(t, err, ErrProductNotFound)
	})

	t.Run("Inactive product rejected", func(t *testing.T) {
		mockCatalog := new(mocks.MockCatalogRepository)
		engine := NewPricingEngine(mockCatalog, testCfg)

		p := activeProduct("prod1", 100000, 10)
		p.IsActive = false
		mockCatalog.On("GetProductByID", ctx, "prod1").Return(p, nil).Once()

		_, err := engine.PriceCart(ctx, "user1", []CartItem{{ProductID: "prod1", Quantity: 1}}, nil)
		assert.ErrorIs(t, err, ErrProductInactive)
	})

	t.Run("Insufficient stock rejected", func(t *testing.T) {
		mockCatalog := new(mocks.MockCatalogRepository)
		engine := NewPricingEngine(mockCatalog, testCfg)

		mockCatalog.On("GetProductByID", ctx, "prod1").Return(activeProduct("prod1", 100000, 1), nil).Once()

		_, err := engine.PriceCart(ctx, "user1", []CartItem{{ProductID: "prod1", Quantity: 2}}, nil)
		assert.ErrorIs(t, err, ErrInsufficientStock)
	})

	t.Run("Shared-pool variant checks the product stock", func(t *testing.T) {
		mockCatalog := new(mocks.MockCatalogRepository)
		engine := NewPricingEngine(mockCatalog, testCfg)

		p := activeProduct("prod1", 100000, 1)
		variant := &domain.ProductVariant{ID: "var1", ProductID: "prod1", Name: "M", IsActive: true}
		mockCatalog.On("GetProductByID", ctx, "prod1").Return(p, nil).Once()
		mockCatalog.On("GetVariantByID", ctx, "prod1", "var1").Return(variant, nil).Once()

		_, err := engine.PriceCart(ctx, "user1", []CartItem{{ProductID: "prod1", VariantID: strPtr("var1"), Quantity: 2}}, nil)
		assert.ErrorIs(t, err, ErrInsufficientStock)
	})
}

func validCoupon() *domain.Coupon {
	return &domain.Coupon{
		ID:          "coupon-1",
		Code:        "SAVE10",
		Type:        domain.CouponTypePercentage,
		Value:       10,
		MaxDiscount: floatPtr(50000),
		MinPurchase: 500000,
		ValidFrom:   time.Now().Add(-24 * time.Hour),
		ValidUntil:  time.Now().Add(24 * time.Hour),
		IsActive:    true,
	}
}

func TestPricingEngine_Coupons(t *testing.T) {
	ctx := context.TODO()
	code := strPtr("SAVE10")

	t.Run("Percentage coupon capped at max discount", func(t *testing.T) {
		mockCatalog := new(mocks.MockCatalogRepository)
		engine := NewPricingEngine(mockCatalog, testCfg)

		mockCatalog.On("GetProductByID", ctx, "prod1").Return(activeProduct("prod1", 1000000, 10), nil).Once()
		mockCatalog.On("GetCouponByCode", ctx, "SAVE10").Return(validCoupon(), nil).Once()

		quote, err := engine.PriceCart(ctx, "user1", []CartItem{{ProductID: "prod1", Quantity: 1}}, code)

		assert.NoError(t, err)
		// 10% of 1,000,000 would be 100,000; the cap brings it to 50,000.
		assert.Equal(t, 50000.0, quote.DiscountAmount)
		assert.Equal(t, 0.0, quote.ShippingPrice)
		assert.Equal(t, 90000.0, quote.TaxPrice)
		assert.Equal(t, 1040000.0, quote.TotalPrice)
		assert.Equal(t, "SAVE10", quote.Coupon.Code)
		mockCatalog.AssertExpectations(t)
	})

	t.Run("Fixed coupon clamped to the cart total", func(t *testing.T) {
		mockCatalog := new(mocks.MockCatalogRepository)
		engine := NewPricingEngine(mockCatalog, testCfg)

		coupon := validCoupon()
		coupon.Type = domain.CouponTypeFixed
		coupon.Value = 2000000
		coupon.MaxDiscount = nil
		coupon.MinPurchase = 0
		mockCatalog.On("GetProductByID", ctx, "prod1").Return(activeProduct("prod1", 600000, 10), nil).Once()
		mockCatalog.On("GetCouponByCode", ctx, "SAVE10").Return(coupon, nil).Once()

		quote, err := engine.PriceCart(ctx, "user1", []CartItem{{ProductID: "prod1", Quantity: 1}}, code)

		assert.NoError(t, err)
		assert.Equal(t, 600000.0, quote.DiscountAmount)
		// items 600,000 + tax 54,000 - discount 600,000, never below zero
		assert.Equal(t, 54000.0, quote.TotalPrice)
	})

	t.Run("Unknown coupon code", func(t *testing.T) {
		mockCatalog := new(mocks.MockCatalogRepository)
		engine := NewPricingEngine(mockCatalog, testCfg)

		mockCatalog.On("GetProductByID", ctx, "prod1").Return(activeProduct("prod1", 1000000, 10), nil).Once()
		mockCatalog.On("GetCouponByCode", ctx, "SAVE10").Return(nil, catalogRepo.ErrCouponNotFound).Once()

		_, err := engine.PriceCart(ctx, "user1", []CartItem{{ProductID: "prod1", Quantity: 1}}, code)
		assert.ErrorIs(t, err, ErrCouponNotFound)
	})

	t.Run("Inactive coupon", func(t *testing.T) {
		mockCatalog := new(mocks.MockCatalogRepository)
		engine := NewPricingEngine(mockCatalog, testCfg)

		coupon := validCoupon()
		coupon.IsActive = false
		mockCatalog.On("GetProductByID", ctx, "prod1").Return(activeProduct("prod1", 1000000, 10), nil).Once()
		mockCatalog.On("GetCouponByCode", ctx, "SAVE10").Return(coupon, nil).Once()

		_, err := engine.PriceCart(ctx, "user1", []CartItem{{ProductID: "prod1", Quantity: 1}}, code)
		assert.ErrorIs(t, err, ErrCouponInactive)
	})

	t.Run("Coupon outside its validity window", func(t *testing.T) {
		mockCatalog := new(mocks.MockCatalogRepository)
		engine := NewPricingEngine(mockCatalog, testCfg)

		notStarted := validCoupon()
		notStarted.ValidFrom = time.Now().Add(time.Hour)
		mockCatalog.On("GetProductByID", ctx, "prod1").Return(activeProduct("prod1", 1000000, 10), nil).Twice()
		mockCatalog.On("GetCouponByCode", ctx, "SAVE10").Return(notStarted, nil).Once()

		_, err := engine.PriceCart(ctx, "user1", []CartItem{{ProductID: "prod1", Quantity: 1}}, code)
		assert.ErrorIs(t, err, ErrCouponNotStarted)

		expired := validCoupon()
		expired.ValidUntil = time.Now().Add(-time.Hour)
		mockCatalog.On("GetCouponByCode", ctx, "SAVE10").Return(expired, nil).Once()

		_, err = engine.PriceCart(ctx, "user1", []CartItem{{ProductID: "prod1", Quantity: 1}}, code)
		assert.ErrorIs(t, err, ErrCouponExpired)
	})

	t.Run("Cart below minimum purchase", func(t *testing.T) {
		mockCatalog := new(mocks.MockCatalogRepository)
		engine := NewPricingEngine(mockCatalog, testCfg)

		mockCatalog.On("GetProductByID", ctx, "prod1").Return(activeProduct("prod1", 100000, 10), nil).Once()
		mockCatalog.On("GetCouponByCode", ctx, "SAVE10").Return(validCoupon(), nil).Once()

		_, err := engine.PriceCart(ctx, "user1", []CartItem{{ProductID: "prod1", Quantity: 1}}, code)
		assert.ErrorIs(t, err, ErrCouponMinPurchase)
	})

	t.Run("Global usage limit exhausted", func(t *testing.T) {
		mockCatalog := new(mocks.MockCatalogRepository)
		engine := NewPricingEngine(mockCatalog, testCfg)

		coupon := validCoupon()
		coupon.MaxUses = intPtr(100)
		mockCatalog.On("GetProductByID", ctx, "prod1").Return(activeProduct("prod1", 1000000, 10), nil).Once()
		mockCatalog.On("GetCouponByCode", ctx, "SAVE10").Return(coupon, nil).Once()
		mockCatalog.On("CountCouponUsages", ctx, "coupon-1").Return(100, nil).Once()

		_, err := engine.PriceCart(ctx, "user1", []CartItem{{ProductID: "prod1", Quantity: 1}}, code)
		assert.ErrorIs(t, err, ErrCouponExhausted)
	})

	t.Run("Per-user usage limit exhausted", func(t *testing.T) {
		mockCatalog := new(mocks.MockCatalogRepository)
		engine := NewPricingEngine(mockCatalog, testCfg)

		coupon := validCoupon()
		coupon.MaxUsesPerUser = intPtr(1)
		mockCatalog.On("GetProductByID", ctx, "prod1").Return(activeProduct("prod1", 1000000, 10), nil).Once()
		mockCatalog.On("GetCouponByCode", ctx, "SAVE10").Return(coupon, nil).Once()
		mockCatalog.On("CountCouponUsagesByUser", ctx, "coupon-1", "user1").Return(1, nil).Once()

		_, err := engine.PriceCart(ctx, "user1", []CartItem{{ProductID: "prod1", Quantity: 1}}, code)
		assert.ErrorIs(t, err, ErrCouponUserLimit)
	})

	t.Run("Coupon scoped to another user", func(t *testing.T) {
		mockCatalog := new(mocks.MockCatalogRepository)
		engine := NewPricingEngine(mockCatalog, testCfg)

		coupon := validCoupon()
		coupon.UserIDs = []string{"someone-else"}
		mockCatalog.On("GetProductByID", ctx, "prod1").Return(activeProduct("prod1", 1000000, 10), nil).Once()
		mockCatalog.On("GetCouponByCode", ctx, "SAVE10").Return(coupon, nil).Once()

		_, err := engine.PriceCart(ctx, "user1", []CartItem{{ProductID: "prod1", Quantity: 1}}, code)
		assert.ErrorIs(t, err, ErrCouponNotApplicable)
	})

	t.Run("Coupon scoped to a category in the cart", func(t *testing.T) {
		mockCatalog := new(mocks.MockCatalogRepository)
		engine := NewPricingEngine(mockCatalog, testCfg)

		coupon := validCoupon()
		coupon.CategoryIDs = []string{"cat-1"}
		mockCatalog.On("GetProductByID", ctx, "prod1").Return(activeProduct("prod1", 1000000, 10), nil).Once()
		mockCatalog.On("GetCouponByCode", ctx, "SAVE10").Return(coupon, nil).Once()

		quote, err := engine.PriceCart(ctx, "user1", []CartItem{{ProductID: "prod1", Quantity: 1}}, code)
		assert.NoError(t, err)
		assert.Equal(t, 50000.0, quote.DiscountAmount)
	})

	t.Run("Coupon scoped to a product not in the cart", func(t *testing.T) {
		mockCatalog := new(mocks.MockCatalogRepository)
		engine := NewPricingEngine(mockCatalog, testCfg)

		coupon := validCoupon()
		coupon.ProductIDs = []string{"other-product"}
		mockCatalog.On("GetProductByID", ctx, "prod1").Return(activeProduct("prod1", 1000000, 10), nil).Once()
		mockCatalog.On("GetCouponByCode", ctx, "SAVE10").Return(coupon, nil).Once()

		_, err := engine.PriceCart(ctx, "user1", []CartItem{{ProductID: "prod1", Quantity: 1}}, code)
		assert.ErrorIs(t, err, ErrCouponNotApplicable)
	})
}
