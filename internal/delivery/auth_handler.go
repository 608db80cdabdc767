package delivery

import (
	"net/http"

	"shop_service/internal/domain"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type AuthHandler struct {
	useCase domain.UserUseCase
	log     *logrus.Logger
}

func NewAuthHandler(uc domain.UserUseCase, logger *logrus.Logger) *AuthHandler {
	return &AuthHandler{
		useCase: uc,
		log:     logger,
	}
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

func (h *AuthHandler) RegisterRoutes(router gin.IRouter, authMW gin.HandlerFunc) {
	auth := router.Group("/auth")
	{
		auth.POST("/register", h.Register)
		auth.POST("/login", h.Login)
		auth.POST("/logout", authMW, h.Logout)
	}
	router.GET("/users/me", authMW, h.Me)
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req domain.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Warnf("Failed to bind register request: %v", err)
		ErrorResponse(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	user, err := h.useCase.RegisterUser(c.Request.Context(), req)
	if err != nil {
		h.log.Warnf("Failed to register user %s: %v", req.Email, err)
		respondError(c, "Failed to register user", err)
		return
	}

	h.log.Infof("User %s registered with ID %s", user.Email, user.ID)
	SuccessResponse(c, http.StatusCreated, "User registered successfully", user)
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Warnf("Failed to bind login request: %v", err)
		ErrorResponse(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	resp, err := h.useCase.AuthenticateUser(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.log.Warnf("Login failed for %s: %v", req.Email, err)
		respondError(c, "Login failed", err)
		return
	}

	SuccessResponse(c, http.StatusOK, "Login successful", resp)
}

func (h *AuthHandler) Logout(c *gin.Context) {
	if err := h.useCase.Logout(c.Request.Context(), c.GetString(ctxTokenKey)); err != nil {
		h.log.Errorf("Logout failed: %v", err)
		respondError(c, "Logout failed", err)
		return
	}
	SuccessResponse(c, http.StatusOK, "Logged out", nil)
}

func (h *AuthHandler) Me(c *gin.Context) {
	user := currentUser(c)
	profile, err := h.useCase.GetUserProfile(c.Request.Context(), user.ID)
	if err != nil {
		h.log.Warnf("Failed to load profile for user %s: %v", user.ID, err)
		respondError(c, "Failed to retrieve profile", err)
		return
	}
	SuccessResponse(c, http.StatusOK, "Profile retrieved successfully", profile)
}
