package delivery

import (
	"net/http"

	"shop_service/internal/domain"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// AdminHandler serves the back-office views over every user and order.
type AdminHandler struct {
	users  domain.UserUseCase
	orders domain.OrderUseCase
	log    *logrus.Logger
}

func NewAdminHandler(users domain.UserUseCase, orders domain.OrderUseCase, logger *logrus.Logger) *AdminHandler {
	return &AdminHandler{
		users:  users,
		orders: orders,
		log:    logger,
	}
}

func (h *AdminHandler) RegisterRoutes(router gin.IRouter, authMW, adminMW gin.HandlerFunc) {
	admin := router.Group("/admin", authMW, adminMW)
	{
		admin.GET("/orders", h.ListAllOrders)
		admin.GET("/users", h.ListUsers)
		admin.PATCH("/users/:id", h.UpdateUser)
		admin.DELETE("/users/:id", h.DeactivateUser)
	}
}

func (h *AdminHandler) ListAllOrders(c *gin.Context) {
	filter := domain.OrderFilter{
		Status: domain.OrderStatus(c.Query("status")),
		UserID: c.Query("user_id"),
	}
	filter.Limit, filter.Offset = parsePage(c)

	orders, err := h.orders.ListAllOrders(c.Request.Context(), filter)
	if err != nil {
		h.log.Errorf("Failed to list all orders: %v", err)
		respondError(c, "Failed to retrieve orders", err)
		return
	}
	if len(orders) == 0 {
		SuccessResponse(c, http.StatusOK, "No orders found", []domain.Order{})
		return
	}
	SuccessResponse(c, http.StatusOK, "Orders retrieved successfully", orders)
}

func (h *AdminHandler) ListUsers(c *gin.Context) {
	filter := domain.UserFilter{
		Role:       domain.Role(c.Query("role")),
		ActiveOnly: c.Query("active") == "true",
	}
	filter.Limit, filter.Offset = parsePage(c)

	users, err := h.users.ListUsers(c.Request.Context(), filter)
	if err != nil {
		h.log.Errorf("Failed to list users: %v", err)
		respondError(c, "Failed to retrieve users", err)
		return
	}
	if len(users) == 0 {
		SuccessResponse(c, http.StatusOK, "No users found", []domain.User{})
		return
	}
	SuccessResponse(c, http.StatusOK, "Users retrieved successfully", users)
}

func (h *AdminHandler) UpdateUser(c *gin.Context) {
	actor := currentUser(c)
	id := c.Param("id")
	var update domain.UserUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		h.log.Warnf("Failed to bind update for user %s: %v", id, err)
		ErrorResponse(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	user, err := h.users.UpdateUser(c.Request.Context(), actor.ID, id, update)
	if err != nil {
		h.log.Warnf("Admin %s failed to update user %s: %v", actor.ID, id, err)
		respondError(c, "Failed to update user", err)
		return
	}
	SuccessResponse(c, http.StatusOK, "User updated successfully", user)
}

func (h *AdminHandler) DeactivateUser(c *gin.Context) {
	actor := currentUser(c)
	id := c.Param("id")
	if err := h.users.DeactivateUser(c.Request.Context(), actor.ID, id); err != nil {
		h.log.Warnf("Admin %s failed to deactivate user %s: %v", actor.ID, id, err)
		respondError(c, "Failed to deactivate user", err)
		return
	}
	SuccessResponse(c, http.StatusOK, "User deactivated successfully", nil)
}
