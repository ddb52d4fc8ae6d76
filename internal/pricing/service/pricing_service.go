package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	catalogDomain "github.com/ridloal/e-commerce-order-engine/internal/catalog/domain"
	catalogRepo "github.com/ridloal/e-commerce-order-engine/internal/catalog/repository"
)

var (
	ErrEmptyCart         = errors.New("cart must contain at least one item")
	ErrProductNotFound   = errors.New("product not found")
	ErrProductInactive   = errors.New("product is not active")
	ErrVariantNotFound   = errors.New("product variant not found")
	ErrInsufficientStock = errors.New("insufficient stock")

	ErrCouponNotFound      = errors.New("coupon not found")
	ErrCouponInactive      = errors.New("coupon is not active")
	ErrCouponNotStarted    = errors.New("coupon is not valid yet")
	ErrCouponExpired       = errors.New("coupon has expired")
	ErrCouponMinPurchase   = errors.New("cart total is below the coupon's minimum purchase")
	ErrCouponExhausted     = errors.New("coupon has reached its usage limit")
	ErrCouponUserLimit     = errors.New("coupon usage limit reached for this user")
	ErrCouponNotApplicable = errors.New("coupon does not apply to this cart or user")
)

type CartItem struct {
	ProductID string
	VariantID *string
	Quantity  int
}

// QuoteLine carries the priced snapshot for one cart line.
// VariantHasOwnStock tells the inventory ledger which pool to decrement.
type QuoteLine struct {
	ProductID          string
	VariantID          *string
	VariantName        *string
	VariantHasOwnStock bool
	ProductName        string
	ProductImage       string
	Quantity           int
	UnitPrice          float64
	DiscountPercent    float64
	LineTotal          float64
}

type Quote struct {
	Lines          []QuoteLine
	ItemsPrice     float64
	ShippingPrice  float64
	TaxPrice       float64
	DiscountAmount float64
	TotalPrice     float64
	Coupon         *catalogDomain.Coupon
}

type Config struct {
	TaxRate               float64
	ShippingFlatFee       float64
	FreeShippingThreshold float64
}

// PricingEngine prices a cart against current catalog data and validates a
// coupon if one is supplied. It is stateless and never writes.
type PricingEngine interface {
	PriceCart(ctx context.Context, userID string, items []CartItem, couponCode *string) (*Quote, error)
}

type pricingEngineImpl struct {
	catalog catalogRepo.CatalogRepository
	cfg     Config
}

func NewPricingEngine(catalog catalogRepo.CatalogRepository, cfg Config) PricingEngine {
	return &pricingEngineImpl{catalog: catalog, cfg: cfg}
}

// round2 keeps money arithmetic stable at two decimal places.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func (e *pricingEngineImpl) PriceCart(ctx context.Context, userID string, items []CartItem, couponCode *string) (*Quote, error) {
	if len(items) == 0 {
		return nil, ErrEmptyCart
	}

	quote := &Quote{Lines: make([]QuoteLine, 0, len(items))}
	productsSeen := make(map[string]*catalogDomain.Product, len(items))

	for _, item := range items {
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("%w: product_id %s has non-positive quantity", ErrEmptyCart, item.ProductID)
		}

		product, err := e.catalog.GetProductByID(ctx, item.ProductID)
		if err != nil {
			if errors.Is(err, catalogRepo.ErrProductNotFound) {
				return nil, fmt.Errorf("%w: product_id %s", ErrProductNotFound, item.ProductID)
			}
			return nil, err
		}
		if !product.IsActive {
			return nil, fmt.Errorf("%w: product_id %s", ErrProductInactive, item.ProductID)
		}
		productsSeen[product.ID] = product

		line := QuoteLine{
			ProductID:       product.ID,
			ProductName:     product.Name,
			ProductImage:    product.ImageURL,
			Quantity:        item.Quantity,
			DiscountPercent: product.DiscountPercent,
		}

		available := product.StockQuantity
		unitPrice := product.UnitPrice()
		if item.VariantID != nil {
			variant, err := e.catalog.GetVariantByID(ctx, product.ID, *item.VariantID)
			if err != nil {
				if errors.Is(err, catalogRepo.ErrVariantNotFound) {
					return nil, fmt.Errorf("%w: product_id %s, variant_id %s", ErrVariantNotFound, product.ID, *item.VariantID)
				}
				return nil, err
			}
			if !variant.IsActive {
				return nil, fmt.Errorf("%w: variant_id %s", ErrProductInactive, variant.ID)
			}
			available = variant.AvailableStock(product)
			unitPrice = variant.UnitPrice(product)
			line.VariantID = item.VariantID
			line.VariantName = &variant.Name
			line.VariantHasOwnStock = variant.StockQuantity != nil
		}

		if available < item.Quantity {
			return nil, fmt.Errorf("%w: product_id %s, requested %d, available %d",
				ErrInsufficientStock, product.ID, item.Quantity, available)
		}

		line.UnitPrice = round2(unitPrice)
		line.LineTotal = round2(line.UnitPrice * float64(item.Quantity))
		quote.Lines = append(quote.Lines, line)
		quote.ItemsPrice = round2(quote.ItemsPrice + line.LineTotal)
	}

	quote.ShippingPrice = e.cfg.ShippingFlatFee
	if quote.ItemsPrice >= e.cfg.FreeShippingThreshold {
		quote.ShippingPrice = 0
	}
	quote.TaxPrice = math.Round(quote.ItemsPrice * e.cfg.TaxRate)

	if couponCode != nil && *couponCode != "" {
		coupon, discount, err := e.validateCoupon(ctx, userID, *couponCode, quote, productsSeen)
		if err != nil {
			return nil, err
		}
		quote.Coupon = coupon
		quote.DiscountAmount = round2(discount)
	}

	total := quote.ItemsPrice + quote.ShippingPrice + quote.TaxPrice - quote.DiscountAmount
	if total < 0 {
		total = 0
	}
	quote.TotalPrice = round2(total)
	return quote, nil
}

// validateCoupon enforces every coupon rule and returns a specific error for
// each way a coupon can be refused. A refusal never degrades to a silent
// zero discount.
func (e *pricingEngineImpl) validateCoupon(ctx context.Context, userID, code string, quote *Quote, products map[string]*catalogDomain.Product) (*catalogDomain.Coupon, float64, error) {
	coupon, err := e.catalog.GetCouponByCode(ctx, code)
	if err != nil {
		if errors.Is(err, catalogRepo.ErrCouponNotFound) {
			return nil, 0, fmt.Errorf("%w: %s", ErrCouponNotFound, code)
		}
		return nil, 0, err
	}

	now := time.Now()
	if !coupon.IsActive {
		return nil, 0, fmt.Errorf("%w: %s", ErrCouponInactive, code)
	}
	if now.Before(coupon.ValidFrom) {
		return nil, 0, fmt.Errorf("%w: %s", ErrCouponNotStarted, code)
	}
	if now.After(coupon.ValidUntil) {
		return nil, 0, fmt.Errorf("%w: %s", ErrCouponExpired, code)
	}
	if quote.ItemsPrice < coupon.MinPurchase {
		return nil, 0, fmt.Errorf("%w: %s requires a minimum purchase of %.0f", ErrCouponMinPurchase, code, coupon.MinPurchase)
	}

	if coupon.MaxUses != nil {
		used, err := e.catalog.CountCouponUsages(ctx, coupon.ID)
		if err != nil {
			return nil, 0, err
		}
		if used >= *coupon.MaxUses {
			return nil, 0, fmt.Errorf("%w: %s", ErrCouponExhausted, code)
		}
	}
	if coupon.MaxUsesPerUser != nil {
		used, err := e.catalog.CountCouponUsagesByUser(ctx, coupon.ID, userID)
		if err != nil {
			return nil, 0, err
		}
		if used >= *coupon.MaxUsesPerUser {
			return nil, 0, fmt.Errorf("%w: %s", ErrCouponUserLimit, code)
		}
	}

	if !couponInScope(coupon, userID, products) {
		return nil, 0, fmt.Errorf("%w: %s", ErrCouponNotApplicable, code)
	}

	return coupon, coupon.Discount(quote.ItemsPrice), nil
}

// couponInScope checks user/product/category scoping. Every configured scope
// must be satisfied; an empty scope list imposes no restriction.
func couponInScope(coupon *catalogDomain.Coupon, userID string, products map[string]*catalogDomain.Product) bool {
	if len(coupon.UserIDs) > 0 && !contains(coupon.UserIDs, userID) {
		return false
	}
	if len(coupon.ProductIDs) > 0 {
		match := false
		for id := range products {
			if contains(coupon.ProductIDs, id) {
				match = true
				break
			}
		}
		if !match {
			return false
		}
	}
	if len(coupon.CategoryIDs) > 0 {
		match := false
		for _, p := range products {
			if contains(coupon.CategoryIDs, p.CategoryID) {
				match = true
				break
			}
		}
		if !match {
			return false
		}
	}
	return true
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
