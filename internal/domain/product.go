package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	IsActive    bool            `json:"is_active"`
	Category    string          `json:"category,omitempty"`
	ImageURL    string          `json:"image_url,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// ProductUpdate is a partial update; nil fields are left untouched.
// Stock is not part of it, stock only moves through AdjustStock.
type ProductUpdate struct {
	Name        *string          `json:"name"`
	Description *string          `json:"description"`
	Price       *decimal.Decimal `json:"price"`
	Category    *string          `json:"category"`
	ImageURL    *string          `json:"image_url"`
	IsActive    *bool            `json:"is_active"`
}

func (u ProductUpdate) IsEmpty() bool {
	return u.Name == nil && u.Description == nil && u.Price == nil &&
		u.Category == nil && u.ImageURL == nil && u.IsActive == nil
}

// Apply copies the set fields of u onto p.
func (u ProductUpdate) Apply(p *Product) {
	if u.Name != nil {
		p.Name = *u.Name
	}
	if u.Description != nil {
		p.Description = *u.Description
	}
	if u.Price != nil {
		p.Price = *u.Price
	}
	if u.Category != nil {
		p.Category = *u.Category
	}
	if u.ImageURL != nil {
		p.ImageURL = *u.ImageURL
	}
	if u.IsActive != nil {
		p.IsActive = *u.IsActive
	}
}

type ProductFilter struct {
	Category   string
	ActiveOnly bool
	Limit      int
	Offset     int
}

type ProductRepository interface {
	CreateProduct(ctx context.Context, product *Product) (*Product, error)
	GetProduct(ctx context.Context, id string) (*Product, error)
	UpdateProduct(ctx context.Context, id string, update ProductUpdate) (*Product, error)
	DeleteProduct(ctx context.Context, id string) error
	ListProducts(ctx context.Context, filter ProductFilter) ([]Product, error)
	// AdjustStock adds delta to the stock in one conditional step and fails
	// with ErrStockWouldGoNegative instead of going below zero.
	AdjustStock(ctx context.Context, id string, delta int) (*Product, error)
}

type ProductUseCase interface {
	CreateProduct(ctx context.Context, product *Product) (*Product, error)
	GetProductByID(ctx context.Context, id string) (*Product, error)
	UpdateProduct(ctx context.Context, id string, update ProductUpdate) (*Product, error)
	DeleteProduct(ctx context.Context, id string) error
	ListProducts(ctx context.Context, filter ProductFilter) ([]Product, error)
	AdjustStock(ctx context.Context, id string, delta int) (*Product, error)
}
