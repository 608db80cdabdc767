package delivery

import (
	"net/http"
	"strconv"

	"shop_service/internal/domain"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type ProductHandler struct {
	useCase domain.ProductUseCase
	log     *logrus.Logger
}

func NewProductHandler(uc domain.ProductUseCase, logger *logrus.Logger) *ProductHandler {
	return &ProductHandler{
		useCase: uc,
		log:     logger,
	}
}

type createProductRequest struct {
	Name        string          `json:"name" binding:"required"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	Category    string          `json:"category"`
	ImageURL    string          `json:"image_url"`
}

type adjustStockRequest struct {
	Delta *int `json:"delta" binding:"required"`
}

func (h *ProductHandler) RegisterRoutes(router gin.IRouter, authMW, adminMW gin.HandlerFunc) {
	products := router.Group("/products")
	{
		products.GET("", h.ListProducts)
		products.GET("/:id", h.GetProductByID)

		admin := products.Group("", authMW, adminMW)
		admin.POST("", h.CreateProduct)
		admin.PATCH("/:id", h.UpdateProduct)
		admin.DELETE("/:id", h.DeleteProduct)
		admin.POST("/:id/stock", h.AdjustStock)
	}
}

func (h *ProductHandler) CreateProduct(c *gin.Context) {
	var req createProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Warnf("Failed to bind create product request: %v", err)
		ErrorResponse(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	product, err := h.useCase.CreateProduct(c.Request.Context(), &domain.Product{
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		Stock:       req.Stock,
		Category:    req.Category,
		ImageURL:    req.ImageURL,
	})
	if err != nil {
		h.log.Warnf("Failed to create product %q: %v", req.Name, err)
		respondError(c, "Failed to create product", err)
		return
	}

	SuccessResponse(c, http.StatusCreated, "Product created successfully", product)
}

func (h *ProductHandler) GetProductByID(c *gin.Context) {
	id := c.Param("id")
	product, err := h.useCase.GetProductByID(c.Request.Context(), id)
	if err != nil {
		h.log.Warnf("Failed to get product %s: %v", id, err)
		respondError(c, "Failed to retrieve product", err)
		return
	}
	SuccessResponse(c, http.StatusOK, "Product retrieved successfully", product)
}

func (h *ProductHandler) ListProducts(c *gin.Context) {
	filter := domain.ProductFilter{
		Category:   c.Query("category"),
		ActiveOnly: c.DefaultQuery("active", "true") != "false",
	}
	filter.Limit, filter.Offset = parsePage(c)

	products, err := h.useCase.ListProducts(c.Request.Context(), filter)
	if err != nil {
		h.log.Errorf("Failed to list products: %v", err)
		respondError(c, "Failed to retrieve products", err)
		return
	}
	if len(products) == 0 {
		SuccessResponse(c, http.StatusOK, "No products found", []domain.Product{})
		return
	}
	SuccessResponse(c, http.StatusOK, "Products retrieved successfully", products)
}

func (h *ProductHandler) UpdateProduct(c *gin.Context) {
	id := c.Param("id")
	var update domain.ProductUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		h.log.Warnf("Failed to bind update for product %s: %v", id, err)
		ErrorResponse(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	product, err := h.useCase.UpdateProduct(c.Request.Context(), id, update)
	if err != nil {
		h.log.Warnf("Failed to update product %s: %v", id, err)
		respondError(c, "Failed to update product", err)
		return
	}
	SuccessResponse(c, http.StatusOK, "Product updated successfully", product)
}

func (h *ProductHandler) DeleteProduct(c *gin.Context) {
	id := c.Param("id")
	if err := h.useCase.DeleteProduct(c.Request.Context(), id); err != nil {
		h.log.Warnf("Failed to delete product %s: %v", id, err)
		respondError(c, "Failed to delete product", err)
		return
	}
	SuccessResponse(c, http.StatusOK, "Product deleted successfully", nil)
}

func (h *ProductHandler) AdjustStock(c *gin.Context) {
	id := c.Param("id")
	var req adjustStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	product, err := h.useCase.AdjustStock(c.Request.Context(), id, *req.Delta)
	if err != nil {
		h.log.Warnf("Failed to adjust stock of product %s by %d: %v", id, *req.Delta, err)
		respondError(c, "Failed to adjust stock", err)
		return
	}
	SuccessResponse(c, http.StatusOK, "Stock adjusted successfully", product)
}

// parsePage falls back to the use case defaults on malformed values.
func parsePage(c *gin.Context) (int, int) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "0"))
	if err != nil || limit < 0 {
		limit = 0
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}
	return limit, offset
}
