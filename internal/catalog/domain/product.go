package domain

import "time"

type Product struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	ImageURL        string    `json:"image_url"`
	CategoryID      string    `json:"category_id"`
	Price           float64   `json:"price"`
	DiscountPercent float64   `json:"discount_percent"`
	StockQuantity   int       `json:"stock_quantity"`
	SoldCount       int       `json:"sold_count"`
	IsActive        bool      `json:"is_active"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// ProductVariant overrides price and optionally stock for a specific option
// of the product (size, color). A nil StockQuantity means the variant shares
// the product's base stock pool.
type ProductVariant struct {
	ID            string    `json:"id"`
	ProductID     string    `json:"product_id"`
	Name          string    `json:"name"`
	PriceModifier float64   `json:"price_modifier"`
	StockQuantity *int      `json:"stock_quantity,omitempty"`
	IsActive      bool      `json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
}

// AvailableStock returns the stock pool this variant draws from.
func (v *ProductVariant) AvailableStock(p *Product) int {
	if v.StockQuantity != nil {
		return *v.StockQuantity
	}
	return p.StockQuantity
}

// UnitPrice is the effective unit price for a variant of p, with the
// product-level discount applied last.
func (v *ProductVariant) UnitPrice(p *Product) float64 {
	base := p.Price + v.PriceModifier
	return base * (1 - p.DiscountPercent/100)
}

// UnitPrice is the effective unit price of the product without a variant.
func (p *Product) UnitPrice() float64 {
	return p.Price * (1 - p.DiscountPercent/100)
}
