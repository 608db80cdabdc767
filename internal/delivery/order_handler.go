package delivery

import (
	"net/http"

	"shop_service/internal/domain"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type OrderHandler struct {
	useCase domain.OrderUseCase
	log     *logrus.Logger
}

func NewOrderHandler(uc domain.OrderUseCase, logger *logrus.Logger) *OrderHandler {
	return &OrderHandler{
		useCase: uc,
		log:     logger,
	}
}

type updateStatusRequest struct {
	Status domain.OrderStatus `json:"status" binding:"required"`
}

func (h *OrderHandler) RegisterRoutes(router gin.IRouter, authMW, adminMW gin.HandlerFunc) {
	orders := router.Group("/orders", authMW)
	{
		orders.POST("", h.PlaceOrder)
		orders.GET("", h.ListOrders)
		orders.GET("/:id", h.GetOrderByID)
		orders.POST("/:id/cancel", h.CancelOrder)
		orders.PATCH("/:id/status", adminMW, h.UpdateOrderStatus)
	}
}

// PlaceOrder turns the caller's cart into an order.
func (h *OrderHandler) PlaceOrder(c *gin.Context) {
	user := currentUser(c)
	h.log.Infof("Processing place order request for user %s", user.ID)

	summary, err := h.useCase.PlaceOrder(c.Request.Context(), user.ID)
	if err != nil {
		h.log.Warnf("Failed to place order for user %s: %v", user.ID, err)
		respondError(c, "Failed to place order", err)
		return
	}

	h.log.Infof("Order %s placed for user %s", summary.ID, user.ID)
	SuccessResponse(c, http.StatusCreated, "Order created successfully", summary)
}

func (h *OrderHandler) GetOrderByID(c *gin.Context) {
	user := currentUser(c)
	id := c.Param("id")

	order, err := h.useCase.GetOrder(c.Request.Context(), user.ID, id)
	if err != nil {
		h.log.Warnf("Failed to get order %s (requested by user %s): %v", id, user.ID, err)
		respondError(c, "Failed to retrieve order", err)
		return
	}
	SuccessResponse(c, http.StatusOK, "Order retrieved successfully", order)
}

func (h *OrderHandler) ListOrders(c *gin.Context) {
	user := currentUser(c)
	filter := domain.OrderFilter{Status: domain.OrderStatus(c.Query("status"))}
	filter.Limit, filter.Offset = parsePage(c)

	orders, err := h.useCase.ListOrdersByUserID(c.Request.Context(), user.ID, filter)
	if err != nil {
		h.log.Errorf("Failed to list orders for user %s: %v", user.ID, err)
		respondError(c, "Failed to retrieve orders", err)
		return
	}
	if len(orders) == 0 {
		SuccessResponse(c, http.StatusOK, "No orders found for this user", []domain.Order{})
		return
	}
	SuccessResponse(c, http.StatusOK, "Orders retrieved successfully", orders)
}

func (h *OrderHandler) CancelOrder(c *gin.Context) {
	user := currentUser(c)
	id := c.Param("id")

	order, err := h.useCase.CancelOrder(c.Request.Context(), user.ID, id)
	if err != nil {
		h.log.Warnf("Failed to cancel order %s for user %s: %v", id, user.ID, err)
		respondError(c, "Failed to cancel order", err)
		return
	}
	SuccessResponse(c, http.StatusOK, "Order cancelled successfully", order)
}

func (h *OrderHandler) UpdateOrderStatus(c *gin.Context) {
	id := c.Param("id")
	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	order, err := h.useCase.UpdateOrderStatus(c.Request.Context(), id, req.Status)
	if err != nil {
		h.log.Warnf("Failed to update status of order %s to '%s': %v", id, req.Status, err)
		respondError(c, "Failed to update order status", err)
		return
	}
	SuccessResponse(c, http.StatusOK, "Order status updated successfully", order)
}
