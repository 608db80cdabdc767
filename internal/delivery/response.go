package delivery

import (
	"context"
	"errors"
	"net/http"

	"shop_service/internal/domain"

	"github.com/gin-gonic/gin"
)

type Response struct {
	Status  string      `json:"Status"`
	Message string      `json:"Message"`
	Data    interface{} `json:"Data,omitempty"`
}

func SuccessResponse(c *gin.Context, statusCode int, message string, data interface{}) {
	c.JSON(statusCode, Response{
		Status:  "Success",
		Message: message,
		Data:    data,
	})
}

func ErrorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, Response{
		Status:  "Fail",
		Message: message,
	})
}

func abortWithError(c *gin.Context, statusCode int, message string) {
	c.AbortWithStatusJSON(statusCode, Response{
		Status:  "Fail",
		Message: message,
	})
}

func mapErrorToStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrEmptyCart),
		errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrProductNotFound),
		errors.Is(err, domain.ErrOrderNotFound),
		errors.Is(err, domain.ErrCartItemNotFound),
		errors.Is(err, domain.ErrUserNotFound),
		errors.Is(err, domain.ErrCategoryNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInsufficientStock),
		errors.Is(err, domain.ErrStockWouldGoNegative),
		errors.Is(err, domain.ErrInvalidStatusTransition),
		errors.Is(err, domain.ErrUserExists),
		errors.Is(err, domain.ErrCartChanged),
		errors.Is(err, domain.ErrCategoryExists),
		errors.Is(err, domain.ErrCategoryInUse):
		return http.StatusConflict
	case errors.Is(err, domain.ErrUnauthorized),
		errors.Is(err, domain.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrPersistence):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// clientMessage hides the cause of unexpected failures from the caller.
func clientMessage(prefix string, err error) string {
	switch mapErrorToStatus(err) {
	case http.StatusInternalServerError:
		return prefix + ": internal server error"
	case http.StatusServiceUnavailable:
		return prefix + ": service temporarily unavailable, please retry"
	}
	return prefix + ": " + err.Error()
}

func respondError(c *gin.Context, prefix string, err error) {
	ErrorResponse(c, mapErrorToStatus(err), clientMessage(prefix, err))
}
