package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusShipped   OrderStatus = "shipped"
	StatusDelivered OrderStatus = "delivered"
	StatusCancelled OrderStatus = "cancelled"
)

var statusTransitions = map[OrderStatus][]OrderStatus{
	StatusPending: {StatusShipped, StatusCancelled},
	StatusShipped: {StatusDelivered, StatusCancelled},
}

func IsValidStatus(status OrderStatus) bool {
	switch status {
	case StatusPending, StatusShipped, StatusDelivered, StatusCancelled:
		return true
	default:
		return false
	}
}

// CanTransition reports whether an order may move from one status to another.
// Delivered and cancelled are terminal.
func CanTransition(from, to OrderStatus) bool {
	for _, next := range statusTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type OrderItem struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type Order struct {
	ID         string          `json:"id"`
	UserID     string          `json:"user_id"`
	Items      []OrderItem     `json:"items"`
	TotalPrice decimal.Decimal `json:"total_price"`
	Status     OrderStatus     `json:"status"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

func (o *Order) ProductIDs() []string {
	ids := make([]string, 0, len(o.Items))
	for _, item := range o.Items {
		ids = append(ids, item.ProductID)
	}
	return ids
}

type OrderSummaryItem struct {
	ProductID string  `json:"product_id"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
}

// OrderSummary is the external view of an order.
type OrderSummary struct {
	ID         string             `json:"id"`
	UserID     string             `json:"user_id"`
	ProductIDs []string           `json:"product_ids"`
	Items      []OrderSummaryItem `json:"items"`
	TotalPrice float64            `json:"total_price"`
	Status     OrderStatus        `json:"status"`
	CreatedAt  time.Time          `json:"created_at"`
}

func (o *Order) Summary() *OrderSummary {
	items := make([]OrderSummaryItem, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, OrderSummaryItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice.InexactFloat64(),
		})
	}
	return &OrderSummary{
		ID:         o.ID,
		UserID:     o.UserID,
		ProductIDs: o.ProductIDs(),
		Items:      items,
		TotalPrice: o.TotalPrice.InexactFloat64(),
		Status:     o.Status,
		CreatedAt:  o.CreatedAt,
	}
}

type OrderFilter struct {
	Status OrderStatus
	// UserID narrows ListOrders to one user. ListOrdersByUserID ignores it.
	UserID string
	Limit  int
	Offset int
}

type OrderRepository interface {
	InsertOrder(ctx context.Context, order *Order) (*Order, error)
	GetOrderByID(ctx context.Context, id string) (*Order, error)
	ListOrdersByUserID(ctx context.Context, userID string, filter OrderFilter) ([]Order, error)
	// ListOrders lists orders across users, newest first, narrowed by filter.UserID when set.
	ListOrders(ctx context.Context, filter OrderFilter) ([]Order, error)
	// UpdateOrderStatus moves the order to status only if it is currently in from.
	UpdateOrderStatus(ctx context.Context, id string, from, to OrderStatus) (*Order, error)
	DeleteOrder(ctx context.Context, id string) error
}

type OrderUseCase interface {
	PlaceOrder(ctx context.Context, userID string) (*OrderSummary, error)
	GetOrder(ctx context.Context, userID, orderID string) (*Order, error)
	ListOrdersByUserID(ctx context.Context, userID string, filter OrderFilter) ([]Order, error)
	ListAllOrders(ctx context.Context, filter OrderFilter) ([]Order, error)
	UpdateOrderStatus(ctx context.Context, orderID string, status OrderStatus) (*Order, error)
	CancelOrder(ctx context.Context, userID, orderID string) (*Order, error)
}
