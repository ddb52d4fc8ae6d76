package domain

import "time"

type CouponType string

const (
	CouponTypePercentage CouponType = "percentage"
	CouponTypeFixed      CouponType = "fixed"
)

type Coupon struct {
	ID             string     `json:"id"`
	Code           string     `json:"code"`
	Type           CouponType `json:"type"`
	Value          float64    `json:"value"`
	MaxDiscount    *float64   `json:"max_discount,omitempty"`
	MinPurchase    float64    `json:"min_purchase"`
	MaxUses        *int       `json:"max_uses,omitempty"`
	MaxUsesPerUser *int       `json:"max_uses_per_user,omitempty"`
	ValidFrom      time.Time  `json:"valid_from"`
	ValidUntil     time.Time  `json:"valid_until"`
	IsActive       bool       `json:"is_active"`
	// Empty scope slices mean "applies to everything / everyone".
	CategoryIDs []string  `json:"category_ids,omitempty"`
	ProductIDs  []string  `json:"product_ids,omitempty"`
	UserIDs     []string  `json:"user_ids,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// CouponUsage is appended only after an order that actually applied the
// coupon has been committed, never speculatively.
type CouponUsage struct {
	ID        string    `json:"id"`
	CouponID  string    `json:"coupon_id"`
	UserID    string    `json:"user_id"`
	OrderID   string    `json:"order_id"`
	Amount    float64   `json:"amount"`
	CreatedAt time.Time `json:"created_at"`
}

// Discount computes the discount amount for itemsPrice, applying the
// percentage cap or clamping a fixed value to the cart total.
func (c *Coupon) Discount(itemsPrice float64) float64 {
	switch c.Type {
	case CouponTypePercentage:
		d := itemsPrice * c.Value / 100
		if c.MaxDiscount != nil && d > *c.MaxDiscount {
			d = *c.MaxDiscount
		}
		return d
	case CouponTypeFixed:
		if c.Value > itemsPrice {
			return itemsPrice
		}
		return c.Value
	}
	return 0
}
