package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/robfig/cron/v3"

	catalogDomain "github.com/ridloal/e-commerce-order-engine/internal/catalog/domain"
	catalogRepo "github.com/ridloal/e-commerce-order-engine/internal/catalog/repository"
	invDomain "github.com/ridloal/e-commerce-order-engine/internal/inventory/domain"
	invService "github.com/ridloal/e-commerce-order-engine/internal/inventory/service"
	"github.com/ridloal/e-commerce-order-engine/internal/order/domain"
	"github.com/ridloal/e-commerce-order-engine/internal/order/repository"
	"github.com/ridloal/e-commerce-order-engine/internal/platform/cache"
	"github.com/ridloal/e-commerce-order-engine/internal/platform/config"
	"github.com/ridloal/e-commerce-order-engine/internal/platform/events"
	"github.com/ridloal/e-commerce-order-engine/internal/platform/logger"
	pricingService "github.com/ridloal/e-commerce-order-engine/internal/pricing/service"
)

var (
	ErrInvalidOrderRequest   = errors.New("invalid order request")
	ErrOrderNotCancellable   = errors.New("order cannot be cancelled in its current status")
	ErrStockConflict         = errors.New("stock contention, retry later")
	ErrPaymentDeclined       = errors.New("payment was declined by the gateway")
	ErrPaymentNotConfirmable = errors.New("order cannot accept a payment confirmation")
)

// ActorSystem marks lifecycle changes made by the engine itself rather than
// a user or admin.
const ActorSystem = "system"

// txMaxAttempts bounds the retry loop for transactions that lose a
// serialization or deadlock race. After that the caller gets ErrStockConflict.
const txMaxAttempts = 3

type OrderService interface {
	CreateOrder(ctx context.Context, req domain.CreateOrderRequest) (*domain.CreateOrderResponse, error)
	GetOrder(ctx context.Context, orderID string) (*domain.Order, error)
	ListOrders(ctx context.Context, userID string) ([]domain.Order, error)
	CancelOrder(ctx context.Context, orderID, actor, reason string) (*domain.Order, error)
	ConfirmPayment(ctx context.Context, req domain.PaymentCallbackRequest) (*domain.PaymentCallbackResponse, error)
	UpdateStatus(ctx context.Context, orderID, actor string, req domain.UpdateStatusRequest) (*domain.Order, error)
	AddAdminNote(ctx context.Context, orderID string, req domain.AddAdminNoteRequest) (*domain.AdminNote, error)

	ProcessPaymentTimeouts(ctx context.Context)
	StartJobs()
	StopJobs()
}

// OrderEvent is the payload published for every order lifecycle event.
type OrderEvent struct {
	EventID     string    `json:"event_id"`
	OrderID     string    `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	UserID      string    `json:"user_id"`
	Status      string    `json:"status"`
	TotalPrice  float64   `json:"total_price"`
	OccurredAt  time.Time `json:"occurred_at"`
}

type orderServiceImpl struct {
	orderRepo   repository.OrderRepository
	catalogRepo catalogRepo.CatalogRepository
	ledger      invService.InventoryLedger
	pricing     pricingService.PricingEngine
	gateway     PaymentGatewayClient
	publisher   events.Publisher
	invalidator cache.Invalidator
	jobsCfg     config.JobsConfig
	scheduler   *cron.Cron
}

func NewOrderService(
	or repository.OrderRepository,
	cr catalogRepo.CatalogRepository,
	ledger invService.InventoryLedger,
	pricing pricingService.PricingEngine,
	gateway PaymentGatewayClient,
	publisher events.Publisher,
	invalidator cache.Invalidator,
	jobsCfg config.JobsConfig,
) OrderService {
	return &orderServiceImpl{
		orderRepo:   or,
		catalogRepo: cr,
		ledger:      ledger,
		pricing:     pricing,
		gateway:     gateway,
		publisher:   publisher,
		invalidator: invalidator,
		jobsCfg:     jobsCfg,
		scheduler:   cron.New(cron.WithSeconds()),
	}
}

// --- Background jobs ---

func (s *orderServiceImpl) StartJobs() {
	s.scheduler.AddFunc(s.jobsCfg.PaymentSweepSpec, func() {
		s.ProcessPaymentTimeouts(context.Background())
	})
	s.scheduler.AddFunc(s.jobsCfg.RestorationSpec, func() {
		s.ledger.RetryFailedRestorations(context.Background())
	})
	s.scheduler.Start()
	logger.Info("Order jobs scheduled: payment sweep %q, restoration retry %q", s.jobsCfg.PaymentSweepSpec, s.jobsCfg.RestorationSpec)
}

func (s *orderServiceImpl) StopJobs() {
	s.scheduler.Stop()
}

// --- Helpers ---

func newOrderNumber() string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("ORD-%s-%s", time.Now().UTC().Format("20060102"), suffix)
}

// isRetryableTxError matches Postgres serialization failures and deadlocks,
// the two races worth retrying.
func isRetryableTxError(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "40001" || pqErr.Code == "40P01"
	}
	return false
}

func stockItemsFromQuote(quote *pricingService.Quote) []invDomain.StockItem {
	items := make([]invDomain.StockItem, len(quote.Lines))
	for i, line := range quote.Lines {
		items[i] = invDomain.StockItem{ProductID: line.ProductID, Quantity: line.Quantity}
		if line.VariantID != nil && line.VariantHasOwnStock {
			items[i].VariantID = line.VariantID
		}
	}
	return items
}

func stockItemsFromOrder(orderItems []domain.OrderItem) []invDomain.StockItem {
	items := make([]invDomain.StockItem, len(orderItems))
	for i, oi := range orderItems {
		items[i] = invDomain.StockItem{ProductID: oi.ProductID, VariantID: oi.VariantID, Quantity: oi.Quantity}
	}
	return items
}

func (s *orderServiceImpl) publishEvent(ctx context.Context, topic string, order *domain.Order) {
	evt := OrderEvent{
		EventID:     uuid.NewString(),
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		Status:      string(order.Status),
		TotalPrice:  order.TotalPrice,
		OccurredAt:  time.Now(),
	}
	if err := s.publisher.PublishEvent(ctx, topic, order.ID, evt); err != nil {
		logger.Error("publishEvent: delivery failed (ignored)", err, map[string]interface{}{"topic": topic, "order_id": order.ID})
	}
}

func (s *orderServiceImpl) invalidateCaches(ctx context.Context, userID string) {
	patterns := []string{"orders:user:" + userID + ":*", "orders:*", "products:*"}
	for _, p := range patterns {
		if err := s.invalidator.InvalidatePattern(ctx, p); err != nil {
			logger.Error("invalidateCaches: invalidation failed (ignored)", err, map[string]interface{}{"pattern": p})
		}
	}
}

// --- CreateOrder ---

func (s *orderServiceImpl) CreateOrder(ctx context.Context, req domain.CreateOrderRequest) (*domain.CreateOrderResponse, error) {
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("%w: order must contain at least one item", ErrInvalidOrderRequest)
	}
	if !domain.IsSupportedPaymentMethod(req.PaymentMethod) {
		return nil, fmt.Errorf("%w: unsupported payment method %q", ErrInvalidOrderRequest, req.PaymentMethod)
	}

	cartItems := make([]pricingService.CartItem, len(req.Items))
	for i, item := range req.Items {
		cartItems[i] = pricingService.CartItem{ProductID: item.ProductID, VariantID: item.VariantID, Quantity: item.Quantity}
	}

	quote, err := s.pricing.PriceCart(ctx, req.UserID, cartItems, req.CouponCode)
	if err != nil {
		return nil, err
	}

	order := s.buildOrder(req, quote)
	stockItems := stockItemsFromQuote(quote)

	var createErr error
	for attempt := 1; attempt <= txMaxAttempts; attempt++ {
		createErr = s.createOrderTx(ctx, order, stockItems, quote, req.UserID)
		if createErr == nil || !isRetryableTxError(createErr) {
			break
		}
		logger.Warn("CreateOrder: transaction lost a concurrency race, retrying (attempt %d/%d)", attempt, txMaxAttempts)
	}
	if createErr != nil {
		if isRetryableTxError(createErr) {
			return nil, fmt.Errorf("%w: %v", ErrStockConflict, createErr)
		}
		return nil, createErr
	}

	s.publishEvent(ctx, events.TopicOrderCreated, order)
	s.invalidateCaches(ctx, order.UserID)

	return &domain.CreateOrderResponse{
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		TotalPrice:    order.TotalPrice,
		PaymentMethod: order.PaymentMethod,
	}, nil
}

func (s *orderServiceImpl) buildOrder(req domain.CreateOrderRequest, quote *pricingService.Quote) *domain.Order {
	order := &domain.Order{
		OrderNumber:     newOrderNumber(),
		UserID:          req.UserID,
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   req.PaymentMethod,
		ItemsPrice:      quote.ItemsPrice,
		ShippingPrice:   quote.ShippingPrice,
		TaxPrice:        quote.TaxPrice,
		DiscountAmount:  quote.DiscountAmount,
		TotalPrice:      quote.TotalPrice,
		Status:          domain.StatusPending,
	}
	if quote.Coupon != nil {
		code := quote.Coupon.Code
		order.CouponCode = &code
	}
	order.Items = make([]domain.OrderItem, len(quote.Lines))
	for i, line := range quote.Lines {
		order.Items[i] = domain.OrderItem{
			ProductID:       line.ProductID,
			VariantID:       line.VariantID,
			VariantName:     line.VariantName,
			ProductName:     line.ProductName,
			ProductImage:    line.ProductImage,
			Quantity:        line.Quantity,
			UnitPrice:       line.UnitPrice,
			DiscountPercent: line.DiscountPercent,
		}
	}
	return order
}

// createOrderTx is the unit of work for creation: stock reservation, order
// insert and coupon usage commit together or not at all.
func (s *orderServiceImpl) createOrderTx(ctx context.Context, order *domain.Order, stockItems []invDomain.StockItem, quote *pricingService.Quote, userID string) error {
	tx, err := s.orderRepo.BeginTx(ctx)
	if err != nil {
		logger.Error("createOrderTx: begin tx failed", err, nil)
		return err
	}
	defer tx.Rollback()

	if err := s.ledger.Reserve(ctx, tx, stockItems); err != nil {
		return err
	}
	if err := s.orderRepo.CreateOrderWithItems(ctx, tx, order); err != nil {
		return err
	}
	if quote.Coupon != nil {
		usage := &catalogDomain.CouponUsage{
			CouponID: quote.Coupon.ID,
			UserID:   userID,
			OrderID:  order.ID,
			Amount:   quote.DiscountAmount,
		}
		if err := s.catalogRepo.RecordCouponUsage(ctx, tx, usage); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// --- Reads ---

func (s *orderServiceImpl) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	order, err := s.orderRepo.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	history, err := s.orderRepo.GetStatusHistory(ctx, orderID)
	if err != nil {
		return nil, err
	}
	order.StatusHistory = history
	return order, nil
}

func (s *orderServiceImpl) ListOrders(ctx context.Context, userID string) ([]domain.Order, error) {
	return s.orderRepo.ListOrdersByUserID(ctx, userID)
}

// --- CancelOrder ---

func (s *orderServiceImpl) CancelOrder(ctx context.Context, orderID, actor, reason string) (*domain.Order, error) {
	order, err := s.orderRepo.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !domain.IsCancellable(order.Status) {
		return nil, fmt.Errorf("%w: status is %s", ErrOrderNotCancellable, order.Status)
	}

	details := &domain.CancellationDetails{
		CancelledBy: actor,
		Reason:      reason,
		CancelledAt: time.Now(),
	}
	items := stockItemsFromOrder(order.Items)

	err = s.terminateOrderTx(ctx, order, domain.StatusCancelled, details, items, actor, reason)
	if err != nil {
		if errors.Is(err, repository.ErrStatusConflict) {
			// Another transaction moved the order first; terminal guard holds.
			return nil, fmt.Errorf("%w: status changed concurrently", ErrOrderNotCancellable)
		}
		return nil, err
	}

	updated, err := s.orderRepo.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	s.publishEvent(ctx, events.TopicOrderCancelled, updated)
	s.invalidateCaches(ctx, updated.UserID)
	return updated, nil
}

// terminateOrderTx moves an order into cancelled or failed and restores its
// stock in the same transaction. If restoration itself is what fails, the
// terminal transition is committed without it and the restoration is queued
// for the retry job, so a customer-facing cancellation never errors out over
// a stock counter.
func (s *orderServiceImpl) terminateOrderTx(ctx context.Context, order *domain.Order, to domain.OrderStatus, details *domain.CancellationDetails, items []invDomain.StockItem, actor, note string) error {
	err := s.terminateAttempt(ctx, order, to, details, items, actor, note, true)
	if err == nil || !errors.Is(err, invService.ErrRestoreFailed) {
		return err
	}

	logger.Error("CRITICAL: stock restoration failed while terminating order, queueing for retry", err,
		map[string]interface{}{"order_id": order.ID, "to": to})

	if err2 := s.terminateAttempt(ctx, order, to, details, items, actor, note, false); err2 != nil {
		return err2
	}
	s.ledger.QueueRestoration(ctx, order.ID, items, err.Error())
	return nil
}

func (s *orderServiceImpl) terminateAttempt(ctx context.Context, order *domain.Order, to domain.OrderStatus, details *domain.CancellationDetails, items []invDomain.StockItem, actor, note string, withRestore bool) error {
	tx, err := s.orderRepo.BeginTx(ctx)
	if err != nil {
		logger.Error("terminateAttempt: begin tx failed", err, nil)
		return err
	}
	defer tx.Rollback()

	if err := s.orderRepo.UpdateOrderStatus(ctx, tx, order.ID, order.Status, to, actor, note, actor == ActorSystem); err != nil {
		return err
	}
	if details != nil {
		if err := s.orderRepo.RecordCancellation(ctx, tx, order.ID, details); err != nil {
			return err
		}
	}
	if withRestore {
		if err := s.ledger.Restore(ctx, tx, items); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// --- ConfirmPayment ---

func (s *orderServiceImpl) ConfirmPayment(ctx context.Context, req domain.PaymentCallbackRequest) (*domain.PaymentCallbackResponse, error) {
	var order *domain.Order
	var err error
	switch {
	case req.OrderID != "":
		order, err = s.orderRepo.GetOrderByID(ctx, req.OrderID)
	case req.OrderNumber != "":
		order, err = s.orderRepo.GetOrderByNumber(ctx, req.OrderNumber)
	default:
		return nil, fmt.Errorf("%w: callback must carry order_id or order_number", ErrInvalidOrderRequest)
	}
	if err != nil {
		return nil, err
	}

	// Re-invoking the confirmation on an already-paid order is a no-op.
	if order.IsPaid {
		return &domain.PaymentCallbackResponse{OrderID: order.ID, OrderNumber: order.OrderNumber, RefID: req.TransactionRef}, nil
	}
	if order.Status != domain.StatusPending {
		return nil, fmt.Errorf("%w: status is %s", ErrPaymentNotConfirmable, order.Status)
	}

	if req.Status == GatewayStatusFailed {
		return nil, s.failPayment(ctx, order, req.TransactionRef)
	}

	// The gateway call runs outside any transaction, on its own timeout. An
	// ambiguous answer leaves the order pending and unpaid.
	result, err := s.gateway.VerifyTransaction(ctx, req.TransactionRef)
	if err != nil {
		return nil, err
	}
	if result.Status == GatewayStatusFailed {
		return nil, s.failPayment(ctx, order, req.TransactionRef)
	}

	tx, err := s.orderRepo.BeginTx(ctx)
	if err != nil {
		logger.Error("ConfirmPayment: begin tx failed", err, nil)
		return nil, err
	}
	defer tx.Rollback()

	paidAt := time.Now()
	if err := s.orderRepo.MarkOrderPaid(ctx, tx, order.ID, result, paidAt); err != nil {
		if errors.Is(err, repository.ErrAlreadyPaid) {
			// Concurrent replay of the same callback; first writer won.
			return &domain.PaymentCallbackResponse{OrderID: order.ID, OrderNumber: order.OrderNumber, RefID: req.TransactionRef}, nil
		}
		return nil, err
	}
	if err := s.orderRepo.UpdateOrderStatus(ctx, tx, order.ID, domain.StatusPending, domain.StatusProcessing, ActorSystem, "payment confirmed", true); err != nil {
		if errors.Is(err, repository.ErrStatusConflict) {
			return nil, fmt.Errorf("%w: status changed concurrently", ErrPaymentNotConfirmable)
		}
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		logger.Error("ConfirmPayment: commit failed", err, nil)
		return nil, err
	}

	order.Status = domain.StatusProcessing
	s.publishEvent(ctx, events.TopicPaymentConfirmed, order)
	s.invalidateCaches(ctx, order.UserID)

	return &domain.PaymentCallbackResponse{OrderID: order.ID, OrderNumber: order.OrderNumber, RefID: result.TransactionRef}, nil
}

// failPayment marks the order failed and restores its reserved stock. The
// paid flag is never set on this path.
func (s *orderServiceImpl) failPayment(ctx context.Context, order *domain.Order, transactionRef string) error {
	note := fmt.Sprintf("payment failed, ref %s", transactionRef)
	items := stockItemsFromOrder(order.Items)
	if err := s.terminateOrderTx(ctx, order, domain.StatusFailed, nil, items, ActorSystem, note); err != nil {
		logger.Error("failPayment: could not mark order failed", err, map[string]interface{}{"order_id": order.ID})
		return err
	}

	order.Status = domain.StatusFailed
	s.publishEvent(ctx, events.TopicOrderStatus, order)
	s.invalidateCaches(ctx, order.UserID)
	return fmt.Errorf("%w: ref %s", ErrPaymentDeclined, transactionRef)
}

// --- UpdateStatus ---

func (s *orderServiceImpl) UpdateStatus(ctx context.Context, orderID, actor string, req domain.UpdateStatusRequest) (*domain.Order, error) {
	if !domain.IsValidStatus(req.Status) {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidOrderRequest, req.Status)
	}
	// failed is recorded by payment processing, which also restores the
	// reserved stock. An admin taking an order out of the flow cancels it.
	if req.Status == domain.StatusFailed {
		return nil, fmt.Errorf("%w: failed is set by payment processing, use cancelled", ErrInvalidOrderRequest)
	}

	order, err := s.orderRepo.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := domain.CanTransition(order.Status, req.Status); err != nil {
		return nil, err
	}

	// Cancellation has its own path so stock is restored with it.
	if req.Status == domain.StatusCancelled {
		return s.CancelOrder(ctx, orderID, actor, req.Note)
	}

	tx, err := s.orderRepo.BeginTx(ctx)
	if err != nil {
		logger.Error("UpdateStatus: begin tx failed", err, nil)
		return nil, err
	}
	defer tx.Rollback()

	if err := s.orderRepo.UpdateOrderStatus(ctx, tx, order.ID, order.Status, req.Status, actor, req.Note, actor == ActorSystem); err != nil {
		return nil, err
	}
	if req.Status == domain.StatusShipped && req.TrackingInfo != nil {
		if err := s.orderRepo.SetTrackingInfo(ctx, tx, order.ID, req.TrackingInfo); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		logger.Error("UpdateStatus: commit failed", err, nil)
		return nil, err
	}

	updated, err := s.orderRepo.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	s.publishEvent(ctx, events.TopicOrderStatus, updated)
	s.invalidateCaches(ctx, updated.UserID)
	return updated, nil
}

// --- Admin notes ---

func (s *orderServiceImpl) AddAdminNote(ctx context.Context, orderID string, req domain.AddAdminNoteRequest) (*domain.AdminNote, error) {
	if _, err := s.orderRepo.GetOrderByID(ctx, orderID); err != nil {
		return nil, err
	}
	note := &domain.AdminNote{Author: req.Author, Note: req.Note}
	if err := s.orderRepo.AddAdminNote(ctx, orderID, note); err != nil {
		return nil, err
	}
	return note, nil
}

// --- Payment timeout sweep ---

// ProcessPaymentTimeouts cancels pending orders whose payment window has
// passed, returning their stock. Cash-on-delivery orders never pay upfront
// and are skipped.
func (s *orderServiceImpl) ProcessPaymentTimeouts(ctx context.Context) {
	orders, err := s.orderRepo.GetPendingUnpaidOlderThan(ctx, s.jobsCfg.PaymentTimeout)
	if err != nil {
		logger.Error("ProcessPaymentTimeouts: failed to list pending orders", err, nil)
		return
	}
	if len(orders) == 0 {
		return
	}

	logger.Info("ProcessPaymentTimeouts: found %d orders past the payment window", len(orders))
	for _, o := range orders {
		if o.PaymentMethod == domain.PaymentMethodCashOnDelivery {
			continue
		}
		if _, err := s.CancelOrder(ctx, o.ID, ActorSystem, "payment window expired"); err != nil {
			logger.Error("ProcessPaymentTimeouts: failed to cancel order", err, map[string]interface{}{"order_id": o.ID})
			continue
		}
		logger.Info("ProcessPaymentTimeouts: order %s cancelled and stock released", o.OrderNumber)
	}
}
