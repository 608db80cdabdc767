package delivery

import (
	"net/http"
	"strings"
	"time"

	"shop_service/internal/domain"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	ctxUserKey  = "user"
	ctxTokenKey = "rawToken"
)

// AuthMiddleware resolves the bearer token to a user and stores it on the context.
func AuthMiddleware(users domain.UserUseCase, log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			log.Warn("Middleware: Authorization header is missing")
			abortWithError(c, http.StatusUnauthorized, "Authorization header required")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
			log.Warn("Middleware: Invalid Authorization header format")
			abortWithError(c, http.StatusUnauthorized, "Invalid Authorization header format")
			return
		}
		rawToken := strings.TrimSpace(parts[1])

		user, err := users.ResolveToken(c.Request.Context(), rawToken)
		if err != nil {
			status := mapErrorToStatus(err)
			if status == http.StatusNotFound {
				status = http.StatusUnauthorized
			}
			log.Warnf("Middleware: token rejected: %v", err)
			abortWithError(c, status, clientMessage("Authentication failed", err))
			return
		}

		c.Set(ctxTokenKey, rawToken)
		c.Set(ctxUserKey, user)
		c.Next()
	}
}

// RequireAdmin must run after AuthMiddleware.
func RequireAdmin(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := currentUser(c)
		if user == nil || user.Role != domain.RoleAdmin {
			log.Warnf("Middleware: admin route %s denied", c.FullPath())
			abortWithError(c, http.StatusForbidden, "Admin privileges required")
			return
		}
		c.Next()
	}
}

func currentUser(c *gin.Context) *domain.User {
	v, ok := c.Get(ctxUserKey)
	if !ok {
		return nil
	}
	user, _ := v.(*domain.User)
	return user
}

func RequestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()

		reqID := c.GetHeader("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Writer.Header().Set("X-Request-ID", reqID)

		logger.WithFields(logrus.Fields{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"remote_ip":  c.ClientIP(),
			"user_agent": c.Request.UserAgent(),
			"request_id": reqID,
		}).Debug("Incoming request")

		c.Next()

		statusCode := c.Writer.Status()
		entry := logger.WithFields(logrus.Fields{
			"status_code": statusCode,
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"remote_ip":   c.ClientIP(),
			"latency_ms":  time.Since(startTime).Milliseconds(),
			"request_id":  reqID,
		})

		switch {
		case len(c.Errors) > 0:
			entry.Error(c.Errors.ByType(gin.ErrorTypePrivate).String())
		case statusCode >= 500:
			entry.Error("Request completed with server error")
		case statusCode >= 400:
			entry.Warn("Request completed with client error")
		default:
			entry.Info("Request completed successfully")
		}
	}
}
