package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	catalogRepo "github.com/ridloal/e-commerce-order-engine/internal/catalog/repository"
	invService "github.com/ridloal/e-commerce-order-engine/internal/inventory/service"
	"github.com/ridloal/e-commerce-order-engine/internal/order/domain"
	"github.com/ridloal/e-commerce-order-engine/internal/order/repository"
	"github.com/ridloal/e-commerce-order-engine/internal/order/service"
	"github.com/ridloal/e-commerce-order-engine/internal/platform/logger"
	pricingService "github.com/ridloal/e-commerce-order-engine/internal/pricing/service"
)

type OrderHandler struct {
	orderService service.OrderService
}

func NewOrderHandler(os service.OrderService) *OrderHandler {
	return &OrderHandler{orderService: os}
}

func (h *OrderHandler) RegisterRoutes(router *gin.RouterGroup) {
	orderRoutes := router.Group("/orders")
	{
		orderRoutes.POST("", h.CreateOrder)
		orderRoutes.GET("/:id", h.GetOrder)
		orderRoutes.PUT("/:id/status", h.UpdateStatus)
		orderRoutes.POST("/:id/cancel", h.CancelOrder)
		orderRoutes.POST("/:id/notes", h.AddAdminNote)
	}
	router.GET("/users/:user_id/orders", h.ListUserOrders)
	router.POST("/payments/callback", h.PaymentCallback)
}

// writeDomainError maps service sentinels onto the HTTP taxonomy: bad input
// and refused domain rules are 4xx, contention is 409, ambiguity from the
// gateway is 502, anything unexpected is a generic 500 with details logged
// server-side only.
func writeDomainError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidOrderRequest),
		errors.Is(err, pricingService.ErrEmptyCart),
		errors.Is(err, pricingService.ErrProductNotFound),
		errors.Is(err, pricingService.ErrProductInactive),
		errors.Is(err, pricingService.ErrVariantNotFound),
		errors.Is(err, pricingService.ErrCouponNotFound),
		errors.Is(err, pricingService.ErrCouponInactive),
		errors.Is(err, pricingService.ErrCouponNotStarted),
		errors.Is(err, pricingService.ErrCouponExpired),
		errors.Is(err, pricingService.ErrCouponMinPurchase),
		errors.Is(err, pricingService.ErrCouponExhausted),
		errors.Is(err, pricingService.ErrCouponUserLimit),
		errors.Is(err, pricingService.ErrCouponNotApplicable):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, repository.ErrOrderNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, pricingService.ErrInsufficientStock),
		errors.Is(err, invService.ErrReserveFailed),
		errors.Is(err, catalogRepo.ErrCouponExhausted),
		errors.Is(err, catalogRepo.ErrCouponUserLimit):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrStockConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "stock contention, please retry"})
	case errors.Is(err, domain.ErrIllegalTransition),
		errors.Is(err, service.ErrOrderNotCancellable),
		errors.Is(err, service.ErrPaymentNotConfirmable):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrPaymentDeclined):
		c.JSON(http.StatusPaymentRequired, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrGatewayAmbiguous):
		c.JSON(http.StatusBadGateway, gin.H{"error": "payment could not be verified, order left unpaid"})
	case errors.Is(err, catalogRepo.ErrCouponNotFound):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		logger.Error("unhandled service error", err, nil)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func (h *OrderHandler) CreateOrder(c *gin.Context) {
	var req domain.CreateOrderRequest
	// UserID comes from the body for now; the auth gateway upstream is
	// expected to overwrite it from the session token.
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload: " + err.Error()})
		return
	}

	resp, err := h.orderService.CreateOrder(c.Request.Context(), req)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *OrderHandler) GetOrder(c *gin.Context) {
	order, err := h.orderService.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *OrderHandler) ListUserOrders(c *gin.Context) {
	orders, err := h.orderService.ListOrders(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, orders)
}

func (h *OrderHandler) UpdateStatus(c *gin.Context) {
	var req domain.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload: " + err.Error()})
		return
	}

	actor := c.GetHeader("X-Actor")
	if actor == "" {
		actor = "admin"
	}

	order, err := h.orderService.UpdateStatus(c.Request.Context(), c.Param("id"), actor, req)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *OrderHandler) CancelOrder(c *gin.Context) {
	var req domain.CancelOrderRequest
	// Reason is optional; an empty or missing body is fine.
	_ = c.ShouldBindJSON(&req)

	actor := c.GetHeader("X-Actor")
	if actor == "" {
		actor = "customer"
	}

	order, err := h.orderService.CancelOrder(c.Request.Context(), c.Param("id"), actor, req.Reason)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *OrderHandler) PaymentCallback(c *gin.Context) {
	var req domain.PaymentCallbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload: " + err.Error()})
		return
	}

	resp, err := h.orderService.ConfirmPayment(c.Request.Context(), req)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *OrderHandler) AddAdminNote(c *gin.Context) {
	var req domain.AddAdminNoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload: " + err.Error()})
		return
	}

	note, err := h.orderService.AddAdminNote(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusCreated, note)
}
