package domain

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyCart               = errors.New("cart is empty")
	ErrProductNotFound         = errors.New("product not found")
	ErrInsufficientStock       = errors.New("insufficient stock")
	ErrStockWouldGoNegative    = errors.New("stock would go negative")
	ErrCartItemNotFound        = errors.New("cart item not found")
	ErrOrderNotFound           = errors.New("order not found")
	ErrInvalidStatusTransition = errors.New("invalid order status transition")
	ErrUserNotFound            = errors.New("user not found")
	ErrUserExists              = errors.New("user already exists")
	ErrInvalidCredentials      = errors.New("invalid email or password")
	ErrUnauthorized            = errors.New("unauthorized")
	ErrForbidden               = errors.New("forbidden")
	ErrInvalidInput            = errors.New("invalid input")
	ErrPersistence             = errors.New("persistence failure")
	ErrCartChanged             = errors.New("cart changed while the order was being placed")
	ErrCategoryNotFound        = errors.New("category not found")
	ErrCategoryExists          = errors.New("category already exists")
	ErrCategoryInUse           = errors.New("category has existing products")
)

// InsufficientStockError names the product whose stock could not cover a cart line.
type InsufficientStockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s (requested: %d, available: %d)", e.ProductID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// PersistenceError marks a storage failure. The operation that returned it
// left no partial effect behind, so callers may retry it.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistence
}

// NewPersistenceError wraps err unless it already is a domain error callers branch on.
func NewPersistenceError(op string, err error) error {
	if err == nil || IsDomainError(err) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}

func InvalidInput(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// IsDomainError reports whether err is one of the expected, non-infrastructure errors.
func IsDomainError(err error) bool {
	for _, target := range []error{
		ErrEmptyCart, ErrProductNotFound, ErrInsufficientStock, ErrStockWouldGoNegative,
		ErrCartItemNotFound, ErrOrderNotFound, ErrInvalidStatusTransition, ErrUserNotFound,
		ErrUserExists, ErrInvalidCredentials, ErrUnauthorized, ErrForbidden, ErrInvalidInput,
		ErrPersistence, ErrCartChanged, ErrCategoryNotFound, ErrCategoryExists, ErrCategoryInUse,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
