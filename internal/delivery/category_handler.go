package delivery

import (
	"net/http"

	"shop_service/internal/domain"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type CategoryHandler struct {
	useCase domain.CategoryUseCase
	log     *logrus.Logger
}

func NewCategoryHandler(uc domain.CategoryUseCase, logger *logrus.Logger) *CategoryHandler {
	return &CategoryHandler{
		useCase: uc,
		log:     logger,
	}
}

type createCategoryRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

func (h *CategoryHandler) RegisterRoutes(router gin.IRouter, authMW, adminMW gin.HandlerFunc) {
	categories := router.Group("/categories")
	{
		categories.GET("", h.ListCategories)
		categories.GET("/:id", h.GetCategoryByID)

		admin := categories.Group("", authMW, adminMW)
		admin.POST("", h.CreateCategory)
		admin.PATCH("/:id", h.UpdateCategory)
		admin.DELETE("/:id", h.DeleteCategory)
	}
}

func (h *CategoryHandler) CreateCategory(c *gin.Context) {
	var req createCategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Warnf("Failed to bind create category request: %v", err)
		ErrorResponse(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	category, err := h.useCase.CreateCategory(c.Request.Context(), &domain.Category{
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		h.log.Warnf("Failed to create category %q: %v", req.Name, err)
		respondError(c, "Failed to create category", err)
		return
	}
	SuccessResponse(c, http.StatusCreated, "Category created successfully", category)
}

func (h *CategoryHandler) GetCategoryByID(c *gin.Context) {
	id := c.Param("id")
	category, err := h.useCase.GetCategoryByID(c.Request.Context(), id)
	if err != nil {
		h.log.Warnf("Failed to get category %s: %v", id, err)
		respondError(c, "Failed to retrieve category", err)
		return
	}
	SuccessResponse(c, http.StatusOK, "Category retrieved successfully", category)
}

func (h *CategoryHandler) ListCategories(c *gin.Context) {
	categories, err := h.useCase.ListCategories(c.Request.Context())
	if err != nil {
		h.log.Errorf("Failed to list categories: %v", err)
		respondError(c, "Failed to retrieve categories", err)
		return
	}
	if len(categories) == 0 {
		SuccessResponse(c, http.StatusOK, "No categories found", []domain.Category{})
		return
	}
	SuccessResponse(c, http.StatusOK, "Categories retrieved successfully", categories)
}

func (h *CategoryHandler) UpdateCategory(c *gin.Context) {
	id := c.Param("id")
	var update domain.CategoryUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		h.log.Warnf("Failed to bind update for category %s: %v", id, err)
		ErrorResponse(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	category, err := h.useCase.UpdateCategory(c.Request.Context(), id, update)
	if err != nil {
		h.log.Warnf("Failed to update category %s: %v", id, err)
		respondError(c, "Failed to update category", err)
		return
	}
	SuccessResponse(c, http.StatusOK, "Category updated successfully", category)
}

func (h *CategoryHandler) DeleteCategory(c *gin.Context) {
	id := c.Param("id")
	if err := h.useCase.DeleteCategory(c.Request.Context(), id); err != nil {
		h.log.Warnf("Failed to delete category %s: %v", id, err)
		respondError(c, "Failed to delete category", err)
		return
	}
	SuccessResponse(c, http.StatusOK, "Category deleted successfully", nil)
}
