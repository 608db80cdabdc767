package delivery

import (
	"net/http"

	"shop_service/internal/domain"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type CartHandler struct {
	useCase domain.CartUseCase
	log     *logrus.Logger
}

func NewCartHandler(uc domain.CartUseCase, logger *logrus.Logger) *CartHandler {
	return &CartHandler{
		useCase: uc,
		log:     logger,
	}
}

type addCartItemRequest struct {
	ProductID string `json:"product_id" binding:"required"`
	Quantity  int    `json:"quantity" binding:"required"`
}

type updateCartItemRequest struct {
	Quantity int `json:"quantity" binding:"required"`
}

func (h *CartHandler) RegisterRoutes(router gin.IRouter, authMW gin.HandlerFunc) {
	cart := router.Group("/cart", authMW)
	{
		cart.GET("", h.GetCart)
		cart.DELETE("", h.ClearCart)
		cart.POST("/items", h.AddItem)
		cart.PUT("/items/:product_id", h.UpdateItem)
		cart.DELETE("/items/:product_id", h.RemoveItem)
	}
}

func (h *CartHandler) GetCart(c *gin.Context) {
	user := currentUser(c)
	cart, err := h.useCase.GetCart(c.Request.Context(), user.ID)
	if err != nil {
		h.log.Errorf("Failed to get cart for user %s: %v", user.ID, err)
		respondError(c, "Failed to retrieve cart", err)
		return
	}
	SuccessResponse(c, http.StatusOK, "Cart retrieved successfully", cart)
}

func (h *CartHandler) AddItem(c *gin.Context) {
	user := currentUser(c)
	var req addCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	cart, err := h.useCase.AddItem(c.Request.Context(), user.ID, req.ProductID, req.Quantity)
	if err != nil {
		h.log.Warnf("Failed to add product %s to cart of user %s: %v", req.ProductID, user.ID, err)
		respondError(c, "Failed to add item", err)
		return
	}
	SuccessResponse(c, http.StatusOK, "Item added to cart", cart)
}

func (h *CartHandler) UpdateItem(c *gin.Context) {
	user := currentUser(c)
	productID := c.Param("product_id")
	var req updateCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	cart, err := h.useCase.UpdateItem(c.Request.Context(), user.ID, productID, req.Quantity)
	if err != nil {
		h.log.Warnf("Failed to update product %s in cart of user %s: %v", productID, user.ID, err)
		respondError(c, "Failed to update item", err)
		return
	}
	SuccessResponse(c, http.StatusOK, "Cart item updated", cart)
}

func (h *CartHandler) RemoveItem(c *gin.Context) {
	user := currentUser(c)
	productID := c.Param("product_id")

	cart, err := h.useCase.RemoveItem(c.Request.Context(), user.ID, productID)
	if err != nil {
		h.log.Warnf("Failed to remove product %s from cart of user %s: %v", productID, user.ID, err)
		respondError(c, "Failed to remove item", err)
		return
	}
	SuccessResponse(c, http.StatusOK, "Cart item removed", cart)
}

func (h *CartHandler) ClearCart(c *gin.Context) {
	user := currentUser(c)
	if err := h.useCase.ClearCart(c.Request.Context(), user.ID); err != nil {
		h.log.Errorf("Failed to clear cart of user %s: %v", user.ID, err)
		respondError(c, "Failed to clear cart", err)
		return
	}
	SuccessResponse(c, http.StatusOK, "Cart cleared", nil)
}
