package delivery

import (
	"net/http"

	"shop_service/internal/domain"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type UseCases struct {
	Users      domain.UserUseCase
	Products   domain.ProductUseCase
	Categories domain.CategoryUseCase
	Carts      domain.CartUseCase
	Orders     domain.OrderUseCase
}

func NewRouter(uc UseCases, logger *logrus.Logger) *gin.Engine {
	router := gin.New()
	router.Use(RequestLogger(logger))
	router.Use(gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "UP"})
	})

	authMW := AuthMiddleware(uc.Users, logger)
	adminMW := RequireAdmin(logger)

	api := router.Group("/api/v1")
	NewAuthHandler(uc.Users, logger).RegisterRoutes(api, authMW)
	NewProductHandler(uc.Products, logger).RegisterRoutes(api, authMW, adminMW)
	NewCategoryHandler(uc.Categories, logger).RegisterRoutes(api, authMW, adminMW)
	NewCartHandler(uc.Carts, logger).RegisterRoutes(api, authMW)
	NewOrderHandler(uc.Orders, logger).RegisterRoutes(api, authMW, adminMW)
	NewAdminHandler(uc.Users, uc.Orders, logger).RegisterRoutes(api, authMW, adminMW)

	router.NoRoute(func(c *gin.Context) {
		ErrorResponse(c, http.StatusNotFound, "Route not found")
	})
	return router
}
