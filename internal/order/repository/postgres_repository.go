package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/ridloal/e-commerce-order-engine/internal/order/domain"
	"github.com/ridloal/e-commerce-order-engine/internal/platform/logger"
)

var (
	ErrOrderNotFound  = errors.New("order not found")
	ErrStatusConflict = errors.New("order status changed concurrently")
	ErrAlreadyPaid    = errors.New("order is already paid")
)

// DBTX is satisfied by both *sql.DB and *sql.Tx. The order service begins a
// transaction here and threads it through every repository taking part in
// the unit of work.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	PrepareContext(context.Context, string) (*sql.Stmt, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
	Commit() error
	Rollback() error
}

type OrderRepository interface {
	BeginTx(ctx context.Context) (DBTX, error)

	CreateOrderWithItems(ctx context.Context, dbops DBTX, order *domain.Order) error
	GetOrderByID(ctx context.Context, id string) (*domain.Order, error)
	GetOrderByNumber(ctx context.Context, orderNumber string) (*domain.Order, error)
	GetOrderItemsByOrderID(ctx context.Context, orderID string) ([]domain.OrderItem, error)
	ListOrdersByUserID(ctx context.Context, userID string) ([]domain.Order, error)
	GetStatusHistory(ctx context.Context, orderID string) ([]domain.StatusHistoryEntry, error)

	// UpdateOrderStatus moves status from -> to guarded by the current value,
	// and appends the matching history entry. ErrStatusConflict means another
	// transaction won the race; nothing was changed.
	UpdateOrderStatus(ctx context.Context, dbops DBTX, orderID string, from, to domain.OrderStatus, actor, note string, isSystem bool) error
	MarkOrderPaid(ctx context.Context, dbops DBTX, orderID string, result *domain.PaymentResult, paidAt time.Time) error
	RecordCancellation(ctx context.Context, dbops DBTX, orderID string, details *domain.CancellationDetails) error
	SetTrackingInfo(ctx context.Context, dbops DBTX, orderID string, info *domain.TrackingInfo) error

	AddAdminNote(ctx context.Context, orderID string, note *domain.AdminNote) error
	GetPendingUnpaidOlderThan(ctx context.Context, olderThan time.Duration) ([]domain.Order, error)
}

type postgresOrderRepository struct {
	db *sql.DB
}

func NewPostgresOrderRepository(db *sql.DB) OrderRepository {
	return &postgresOrderRepository{db: db}
}

func (r *postgresOrderRepository) BeginTx(ctx context.Context) (DBTX, error) {
	return r.db.BeginTx(ctx, nil)
}

// CreateOrderWithItems persists the order, its items and the initial history
// row on the caller's transaction.
func (r *postgresOrderRepository) CreateOrderWithItems(ctx context.Context, dbops DBTX, order *domain.Order) error {
	orderQuery := `INSERT INTO orders (
                     order_number, user_id, payment_method,
                     ship_full_name, ship_address, ship_city, ship_postal_code, ship_phone, ship_country,
                     items_price, shipping_price, tax_price, discount_amount, total_price,
                     coupon_code, status, is_paid, created_at, updated_at)
                   VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
                   RETURNING id, created_at, updated_at`

	order.CreatedAt = time.Now()
	order.UpdatedAt = order.CreatedAt
	if order.Status == "" {
		order.Status = domain.StatusPending
	}

	var couponCode sql.NullString
	if order.CouponCode != nil {
		couponCode = sql.NullString{String: *order.CouponCode, Valid: true}
	}

	err := dbops.QueryRowContext(ctx, orderQuery,
		order.OrderNumber, order.UserID, order.PaymentMethod,
		order.ShippingAddress.FullName, order.ShippingAddress.Address, order.ShippingAddress.City,
		order.ShippingAddress.PostalCode, order.ShippingAddress.Phone, order.ShippingAddress.Country,
		order.ItemsPrice, order.ShippingPrice, order.TaxPrice, order.DiscountAmount, order.TotalPrice,
		couponCode, order.Status, order.IsPaid, order.CreatedAt, order.UpdatedAt,
	).Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		logger.Error("CreateOrderWithItems: failed to insert order", err, nil)
		return err
	}

	itemStmt, err := dbops.PrepareContext(ctx, `INSERT INTO order_items
        (order_id, product_id, variant_id, variant_name, product_name, product_image, quantity, unit_price, discount_percent, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING id, created_at`)
	if err != nil {
		logger.Error("CreateOrderWithItems: failed to prepare item statement", err, nil)
		return err
	}
	defer itemStmt.Close()

	for i := range order.Items {
		order.Items[i].OrderID = order.ID
		order.Items[i].CreatedAt = order.CreatedAt
		err = itemStmt.QueryRowContext(ctx,
			order.Items[i].OrderID, order.Items[i].ProductID, order.Items[i].VariantID, order.Items[i].VariantName,
			order.Items[i].ProductName, order.Items[i].ProductImage, order.Items[i].Quantity,
			order.Items[i].UnitPrice, order.Items[i].DiscountPercent, order.Items[i].CreatedAt,
		).Scan(&order.Items[i].ID, &order.Items[i].CreatedAt)
		if err != nil {
			logger.Error("CreateOrderWithItems: failed to insert order item", err, map[string]interface{}{"item_product_id": order.Items[i].ProductID})
			return err
		}
	}

	return r.insertHistory(ctx, dbops, &domain.StatusHistoryEntry{
		OrderID:           order.ID,
		PreviousStatus:    "",
		NewStatus:         order.Status,
		Actor:             order.UserID,
		Note:              "order created",
		IsSystemGenerated: true,
	})
}

func (r *postgresOrderRepository) insertHistory(ctx context.Context, dbops DBTX, entry *domain.StatusHistoryEntry) error {
	var prev sql.NullString
	if entry.PreviousStatus != "" {
		prev = sql.NullString{String: string(entry.PreviousStatus), Valid: true}
	}
	entry.CreatedAt = time.Now()
	query := `INSERT INTO order_status_history (order_id, previous_status, new_status, actor, note, is_system_generated, created_at)
              VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`
	err := dbops.QueryRowContext(ctx, query,
		entry.OrderID, prev, entry.NewStatus, entry.Actor, entry.Note, entry.IsSystemGenerated, entry.CreatedAt,
	).Scan(&entry.ID)
	if err != nil {
		logger.Error("insertHistory: failed to insert history entry", err, map[string]interface{}{"order_id": entry.OrderID})
	}
	return err
}

const orderColumns = `id, order_number, user_id, payment_method,
       ship_full_name, ship_address, ship_city, ship_postal_code, ship_phone, ship_country,
       items_price, shipping_price, tax_price, discount_amount, total_price,
       coupon_code, status, is_paid, paid_at,
       payment_ref, payment_status, payment_provider, payment_amount, payment_received_at,
       tracking_carrier, tracking_number, shipped_at,
       cancelled_by, cancel_reason, cancelled_at, refund_amount, refunded_at,
       created_at, updated_at`

func scanOrder(row interface{ Scan(...interface{}) error }) (*domain.Order, error) {
	var o domain.Order
	var couponCode, paymentRef, paymentStatus, paymentProvider sql.NullString
	var trackingCarrier, trackingNumber, cancelledBy, cancelReason sql.NullString
	var paidAt, paymentReceivedAt, shippedAt, cancelledAt, refundedAt sql.NullTime
	var paymentAmount, refundAmount sql.NullFloat64

	err := row.Scan(
		&o.ID, &o.OrderNumber, &o.UserID, &o.PaymentMethod,
		&o.ShippingAddress.FullName, &o.ShippingAddress.Address, &o.ShippingAddress.City,
		&o.ShippingAddress.PostalCode, &o.ShippingAddress.Phone, &o.ShippingAddress.Country,
		&o.ItemsPrice, &o.ShippingPrice, &o.TaxPrice, &o.DiscountAmount, &o.TotalPrice,
		&couponCode, &o.Status, &o.IsPaid, &paidAt,
		&paymentRef, &paymentStatus, &paymentProvider, &paymentAmount, &paymentReceivedAt,
		&trackingCarrier, &trackingNumber, &shippedAt,
		&cancelledBy, &cancelReason, &cancelledAt, &refundAmount, &refundedAt,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if couponCode.Valid {
		o.CouponCode = &couponCode.String
	}
	if paidAt.Valid {
		o.PaidAt = &paidAt.Time
	}
	if paymentRef.Valid {
		o.PaymentResult = &domain.PaymentResult{
			TransactionRef: paymentRef.String,
			Status:         paymentStatus.String,
			Provider:       paymentProvider.String,
			PaidAmount:     paymentAmount.Float64,
		}
		if paymentReceivedAt.Valid {
			o.PaymentResult.ReceivedAt = paymentReceivedAt.Time
		}
	}
	if trackingNumber.Valid {
		o.TrackingInfo = &domain.TrackingInfo{
			Carrier:        trackingCarrier.String,
			TrackingNumber: trackingNumber.String,
		}
		if shippedAt.Valid {
			o.TrackingInfo.ShippedAt = &shippedAt.Time
		}
	}
	if cancelledBy.Valid {
		o.Cancellation = &domain.CancellationDetails{
			CancelledBy: cancelledBy.String,
			Reason:      cancelReason.String,
		}
		if cancelledAt.Valid {
			o.Cancellation.CancelledAt = cancelledAt.Time
		}
		if refundAmount.Valid {
			o.Cancellation.RefundAmount = &refundAmount.Float64
		}
		if refundedAt.Valid {
			o.Cancellation.RefundedAt = &refundedAt.Time
		}
	}
	return &o, nil
}

func (r *postgresOrderRepository) getOrderBy(ctx context.Context, field, value string) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE ` + field + ` = $1`
	o, err := scanOrder(r.db.QueryRowContext(ctx, query, value))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		logger.Error("getOrderBy: query failed", err, map[string]interface{}{"field": field})
		return nil, err
	}

	items, err := r.GetOrderItemsByOrderID(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	o.Items = items
	return o, nil
}

func (r *postgresOrderRepository) GetOrderByID(ctx context.Context, id string) (*domain.Order, error) {
	return r.getOrderBy(ctx, "id", id)
}

func (r *postgresOrderRepository) GetOrderByNumber(ctx context.Context, orderNumber string) (*domain.Order, error) {
	return r.getOrderBy(ctx, "order_number", orderNumber)
}

func (r *postgresOrderRepository) GetOrderItemsByOrderID(ctx context.Context, orderID string) ([]domain.OrderItem, error) {
	query := `SELECT id, order_id, product_id, variant_id, variant_name, product_name, product_image, quantity, unit_price, discount_percent, created_at
              FROM order_items WHERE order_id = $1`
	rows, err := r.db.QueryContext(ctx, query, orderID)
	if err != nil {
		logger.Error("GetOrderItemsByOrderID: query failed", err, nil)
		return nil, err
	}
	defer rows.Close()

	var items []domain.OrderItem
	for rows.Next() {
		var i domain.OrderItem
		var variantID, variantName sql.NullString
		if err := rows.Scan(&i.ID, &i.OrderID, &i.ProductID, &variantID, &variantName,
			&i.ProductName, &i.ProductImage, &i.Quantity, &i.UnitPrice, &i.DiscountPercent, &i.CreatedAt); err != nil {
			logger.Error("GetOrderItemsByOrderID: scan failed", err, nil)
			return nil, err
		}
		if variantID.Valid {
			i.VariantID = &variantID.String
		}
		if variantName.Valid {
			i.VariantName = &variantName.String
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

func (r *postgresOrderRepository) ListOrdersByUserID(ctx context.Context, userID string) ([]domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE user_id = $1 ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		logger.Error("ListOrdersByUserID: query failed", err, nil)
		return nil, err
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			logger.Error("ListOrdersByUserID: scan failed", err, nil)
			return nil, err
		}
		orders = append(orders, *o)
	}
	return orders, rows.Err()
}

func (r *postgresOrderRepository) GetStatusHistory(ctx context.Context, orderID string) ([]domain.StatusHistoryEntry, error) {
	query := `SELECT id, order_id, previous_status, new_status, actor, note, is_system_generated, created_at
              FROM order_status_history WHERE order_id = $1 ORDER BY created_at ASC, id ASC`
	rows, err := r.db.QueryContext(ctx, query, orderID)
	if err != nil {
		logger.Error("GetStatusHistory: query failed", err, nil)
		return nil, err
	}
	defer rows.Close()

	var entries []domain.StatusHistoryEntry
	for rows.Next() {
		var e domain.StatusHistoryEntry
		var prev sql.NullString
		if err := rows.Scan(&e.ID, &e.OrderID, &prev, &e.NewStatus, &e.Actor, &e.Note, &e.IsSystemGenerated, &e.CreatedAt); err != nil {
			logger.Error("GetStatusHistory: scan failed", err, nil)
			return nil, err
		}
		if prev.Valid {
			e.PreviousStatus = domain.OrderStatus(prev.String)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *postgresOrderRepository) UpdateOrderStatus(ctx context.Context, dbops DBTX, orderID string, from, to domain.OrderStatus, actor, note string, isSystem bool) error {
	query := `UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3`
	res, err := dbops.ExecContext(ctx, query, to, orderID, from)
	if err != nil {
		logger.Error("UpdateOrderStatus: exec failed", err, map[string]interface{}{"order_id": orderID, "new_status": to})
		return err
	}
	rowsAffected, _ := res.RowsAffected()
	if rowsAffected == 0 {
		return ErrStatusConflict
	}

	return r.insertHistory(ctx, dbops, &domain.StatusHistoryEntry{
		OrderID:           orderID,
		PreviousStatus:    from,
		NewStatus:         to,
		Actor:             actor,
		Note:              note,
		IsSystemGenerated: isSystem,
	})
}

// MarkOrderPaid sets the payment snapshot and the paid flag exactly once.
// ErrAlreadyPaid signals an idempotent replay, not a failure.
func (r *postgresOrderRepository) MarkOrderPaid(ctx context.Context, dbops DBTX, orderID string, result *domain.PaymentResult, paidAt time.Time) error {
	query := `UPDATE orders SET
                is_paid = TRUE, paid_at = $1,
                payment_ref = $2, payment_status = $3, payment_provider = $4, payment_amount = $5, payment_received_at = $6,
                updated_at = NOW()
              WHERE id = $7 AND is_paid = FALSE`
	res, err := dbops.ExecContext(ctx, query,
		paidAt, result.TransactionRef, result.Status, result.Provider, result.PaidAmount, result.ReceivedAt, orderID)
	if err != nil {
		logger.Error("MarkOrderPaid: exec failed", err, map[string]interface{}{"order_id": orderID})
		return err
	}
	rowsAffected, _ := res.RowsAffected()
	if rowsAffected == 0 {
		return ErrAlreadyPaid
	}
	return nil
}

func (r *postgresOrderRepository) RecordCancellation(ctx context.Context, dbops DBTX, orderID string, details *domain.CancellationDetails) error {
	query := `UPDATE orders SET cancelled_by = $1, cancel_reason = $2, cancelled_at = $3, refund_amount = $4, updated_at = NOW()
              WHERE id = $5`
	var refund sql.NullFloat64
	if details.RefundAmount != nil {
		refund = sql.NullFloat64{Float64: *details.RefundAmount, Valid: true}
	}
	res, err := dbops.ExecContext(ctx, query, details.CancelledBy, details.Reason, details.CancelledAt, refund, orderID)
	if err != nil {
		logger.Error("RecordCancellation: exec failed", err, map[string]interface{}{"order_id": orderID})
		return err
	}
	rowsAffected, _ := res.RowsAffected()
	if rowsAffected == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (r *postgresOrderRepository) SetTrackingInfo(ctx context.Context, dbops DBTX, orderID string, info *domain.TrackingInfo) error {
	shippedAt := time.Now()
	if info.ShippedAt != nil {
		shippedAt = *info.ShippedAt
	}
	query := `UPDATE orders SET tracking_carrier = $1, tracking_number = $2, shipped_at = $3, updated_at = NOW() WHERE id = $4`
	res, err := dbops.ExecContext(ctx, query, info.Carrier, info.TrackingNumber, shippedAt, orderID)
	if err != nil {
		logger.Error("SetTrackingInfo: exec failed", err, map[string]interface{}{"order_id": orderID})
		return err
	}
	rowsAffected, _ := res.RowsAffected()
	if rowsAffected == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (r *postgresOrderRepository) AddAdminNote(ctx context.Context, orderID string, note *domain.AdminNote) error {
	note.OrderID = orderID
	note.CreatedAt = time.Now()
	query := `INSERT INTO order_admin_notes (order_id, author, note, created_at) VALUES ($1, $2, $3, $4) RETURNING id`
	err := r.db.QueryRowContext(ctx, query, note.OrderID, note.Author, note.Note, note.CreatedAt).Scan(&note.ID)
	if err != nil {
		logger.Error("AddAdminNote: insert failed", err, map[string]interface{}{"order_id": orderID})
	}
	return err
}

func (r *postgresOrderRepository) GetPendingUnpaidOlderThan(ctx context.Context, olderThan time.Duration) ([]domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders
              WHERE status = $1 AND is_paid = FALSE AND created_at < $2
              ORDER BY created_at ASC`
	threshold := time.Now().Add(-olderThan)
	rows, err := r.db.QueryContext(ctx, query, domain.StatusPending, threshold)
	if err != nil {
		logger.Error("GetPendingUnpaidOlderThan: query failed", err, nil)
		return nil, err
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			logger.Error("GetPendingUnpaidOlderThan: scan failed", err, nil)
			continue
		}
		orders = append(orders, *o)
	}
	return orders, rows.Err()
}
