package domain

import (
	"context"
	"time"
)

type CartItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type Cart struct {
	UserID    string     `json:"user_id"`
	Items     []CartItem `json:"items"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func (c *Cart) IsEmpty() bool {
	return c == nil || len(c.Items) == 0
}

// QuantityOf returns the quantity of productID in the cart, zero if absent.
func (c *Cart) QuantityOf(productID string) int {
	for _, item := range c.Items {
		if item.ProductID == productID {
			return item.Quantity
		}
	}
	return 0
}

// AddItem merges quantity into an existing line or appends a new one.
func (c *Cart) AddItem(productID string, quantity int) {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			c.Items[i].Quantity += quantity
			return
		}
	}
	c.Items = append(c.Items, CartItem{ProductID: productID, Quantity: quantity})
}

func (c *Cart) SetQuantity(productID string, quantity int) bool {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			c.Items[i].Quantity = quantity
			return true
		}
	}
	return false
}

func (c *Cart) RemoveItem(productID string) bool {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
			return true
		}
	}
	return false
}

// SameItems reports whether a and b hold the same quantity of every product,
// ignoring line order.
func SameItems(a, b []CartItem) bool {
	if len(a) != len(b) {
		return false
	}
	want := make(map[string]int, len(a))
	for _, item := range a {
		want[item.ProductID] += item.Quantity
	}
	for _, item := range b {
		if want[item.ProductID] != item.Quantity {
			return false
		}
		delete(want, item.ProductID)
	}
	return len(want) == 0
}

func (c *Cart) Clone() *Cart {
	cp := *c
	cp.Items = append([]CartItem(nil), c.Items...)
	return &cp
}

type CartRepository interface {
	// GetCart returns the user's cart, creating an empty one on first access.
	GetCart(ctx context.Context, userID string) (*Cart, error)
	SaveCart(ctx context.Context, cart *Cart) error
}

type CartUseCase interface {
	GetCart(ctx context.Context, userID string) (*Cart, error)
	AddItem(ctx context.Context, userID, productID string, quantity int) (*Cart, error)
	UpdateItem(ctx context.Context, userID, productID string, quantity int) (*Cart, error)
	RemoveItem(ctx context.Context, userID, productID string) (*Cart, error)
	ClearCart(ctx context.Context, userID string) error
}
