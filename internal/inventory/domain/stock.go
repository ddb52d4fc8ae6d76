package domain

import "time"

// StockItem is one line of a reservation or restoration. A nil VariantID
// means the movement applies to the product's base stock pool.
type StockItem struct {
	ProductID string  `json:"product_id"`
	VariantID *string `json:"variant_id,omitempty"`
	Quantity  int     `json:"quantity"`
}

// RestorationFailure records a stock restoration that could not be applied
// when its order was cancelled. A background job retries these so stock is
// never permanently under-restored.
type RestorationFailure struct {
	ID         int64       `json:"id"`
	OrderID    string      `json:"order_id"`
	Items      []StockItem `json:"items"`
	Attempts   int         `json:"attempts"`
	LastError  string      `json:"last_error"`
	ResolvedAt *time.Time  `json:"resolved_at,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
}
