package domain

import (
	"time"
)

// Supported payment methods. The gateway contract is the same for all of
// them; cash_on_delivery simply never gets a payment callback.
const (
	PaymentMethodCard           = "card"
	PaymentMethodBankTransfer   = "bank_transfer"
	PaymentMethodWallet         = "wallet"
	PaymentMethodCashOnDelivery = "cash_on_delivery"
)

func IsSupportedPaymentMethod(m string) bool {
	switch m {
	case PaymentMethodCard, PaymentMethodBankTransfer, PaymentMethodWallet, PaymentMethodCashOnDelivery:
		return true
	}
	return false
}

// Order is the aggregate root and the consistency boundary: line items,
// money breakdown, status and history live and commit together. Orders are
// never deleted, only status-transitioned.
type Order struct {
	ID              string               `json:"id"`
	OrderNumber     string               `json:"order_number"`
	UserID          string               `json:"user_id"`
	Items           []OrderItem          `json:"items,omitempty"`
	ShippingAddress ShippingAddress      `json:"shipping_address"`
	PaymentMethod   string               `json:"payment_method"`
	ItemsPrice      float64              `json:"items_price"`
	ShippingPrice   float64              `json:"shipping_price"`
	TaxPrice        float64              `json:"tax_price"`
	DiscountAmount  float64              `json:"discount_amount"`
	TotalPrice      float64              `json:"total_price"`
	CouponCode      *string              `json:"coupon_code,omitempty"`
	Status          OrderStatus          `json:"status"`
	StatusHistory   []StatusHistoryEntry `json:"status_history,omitempty"`
	PaymentResult   *PaymentResult       `json:"payment_result,omitempty"`
	IsPaid          bool                 `json:"is_paid"`
	PaidAt          *time.Time           `json:"paid_at,omitempty"`
	TrackingInfo    *TrackingInfo        `json:"tracking_info,omitempty"`
	Cancellation    *CancellationDetails `json:"cancellation,omitempty"`
	AdminNotes      []AdminNote          `json:"admin_notes,omitempty"`
	CreatedAt       time.Time            `json:"created_at"`
	UpdatedAt       time.Time            `json:"updated_at"`
}

// OrderItem snapshots product name, image and unit price at order time so
// later catalog edits never change what the customer bought.
type OrderItem struct {
	ID              string    `json:"id"`
	OrderID         string    `json:"-"`
	ProductID       string    `json:"product_id"`
	VariantID       *string   `json:"variant_id,omitempty"`
	VariantName     *string   `json:"variant_name,omitempty"`
	ProductName     string    `json:"product_name"`
	ProductImage    string    `json:"product_image"`
	Quantity        int       `json:"quantity"`
	UnitPrice       float64   `json:"unit_price"`
	DiscountPercent float64   `json:"discount_percent"`
	CreatedAt       time.Time `json:"created_at"`
}

type ShippingAddress struct {
	FullName   string `json:"full_name" binding:"required"`
	Address    string `json:"address" binding:"required"`
	City       string `json:"city" binding:"required"`
	PostalCode string `json:"postal_code" binding:"required"`
	Phone      string `json:"phone" binding:"required"`
	Country    string `json:"country"`
}

// PaymentResult is the opaque snapshot of what the gateway reported.
type PaymentResult struct {
	TransactionRef string    `json:"transaction_ref"`
	Status         string    `json:"status"`
	Provider       string    `json:"provider,omitempty"`
	PaidAmount     float64   `json:"paid_amount,omitempty"`
	ReceivedAt     time.Time `json:"received_at"`
}

type TrackingInfo struct {
	Carrier        string     `json:"carrier" binding:"required"`
	TrackingNumber string     `json:"tracking_number" binding:"required"`
	ShippedAt      *time.Time `json:"shipped_at,omitempty"`
}

type CancellationDetails struct {
	CancelledBy  string     `json:"cancelled_by"`
	Reason       string     `json:"reason"`
	CancelledAt  time.Time  `json:"cancelled_at"`
	RefundAmount *float64   `json:"refund_amount,omitempty"`
	RefundedAt   *time.Time `json:"refunded_at,omitempty"`
}

type AdminNote struct {
	ID        string    `json:"id"`
	OrderID   string    `json:"-"`
	Author    string    `json:"author"`
	Note      string    `json:"note"`
	CreatedAt time.Time `json:"created_at"`
}

// --- Request/response DTOs ---

type CreateOrderItemRequest struct {
	ProductID string  `json:"product_id" binding:"required"`
	VariantID *string `json:"variant_id,omitempty"`
	Quantity  int     `json:"quantity" binding:"required,gt=0"`
}

type CreateOrderRequest struct {
	UserID          string                   `json:"user_id" binding:"required"` // Taken from auth token upstream
	Items           []CreateOrderItemRequest `json:"items" binding:"required,min=1,dive"`
	ShippingAddress ShippingAddress          `json:"shipping_address" binding:"required"`
	PaymentMethod   string                   `json:"payment_method" binding:"required"`
	CouponCode      *string                  `json:"coupon_code,omitempty"`
}

type CreateOrderResponse struct {
	OrderID       string  `json:"order_id"`
	OrderNumber   string  `json:"order_number"`
	TotalPrice    float64 `json:"total_price"`
	PaymentMethod string  `json:"payment_method"`
}

type UpdateStatusRequest struct {
	Status       OrderStatus   `json:"status" binding:"required"`
	Note         string        `json:"note,omitempty"`
	TrackingInfo *TrackingInfo `json:"tracking_info,omitempty"`
}

type CancelOrderRequest struct {
	Reason string `json:"reason,omitempty"`
}

// PaymentCallbackRequest is what the gateway posts back. Either OrderID or
// OrderNumber identifies the order.
type PaymentCallbackRequest struct {
	TransactionRef string `json:"transaction_ref" binding:"required"`
	Status         string `json:"status" binding:"required"`
	OrderID        string `json:"order_id,omitempty"`
	OrderNumber    string `json:"order_number,omitempty"`
}

type PaymentCallbackResponse struct {
	OrderID     string `json:"order_id"`
	OrderNumber string `json:"order_number"`
	RefID       string `json:"ref_id"`
}

type AddAdminNoteRequest struct {
	Author string `json:"author" binding:"required"`
	Note   string `json:"note" binding:"required"`
}
