package mongodb

import (
	"fmt"
	"time"

	"shop_service/internal/domain"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// NewID returns a fresh ObjectID in hex form. Documents use string _id values
// so ids round-trip unchanged through the domain layer.
func NewID() string {
	return primitive.NewObjectID().Hex()
}

func toDecimal128(d decimal.Decimal) (primitive.Decimal128, error) {
	v, err := primitive.ParseDecimal128(d.String())
	if err != nil {
		return primitive.Decimal128{}, fmt.Errorf("could not encode price %s: %w", d, err)
	}
	return v, nil
}

func fromDecimal128(v primitive.Decimal128) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(v.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("could not decode price %s: %w", v, err)
	}
	return d, nil
}

type productDocument struct {
	ID          string               `bson:"_id"`
	Name        string               `bson:"name"`
	Description string               `bson:"description"`
	Price       primitive.Decimal128 `bson:"price"`
	Stock       int                  `bson:"stock"`
	IsActive    bool                 `bson:"is_active"`
	Category    string               `bson:"category"`
	ImageURL    string               `bson:"image_url"`
	CreatedAt   time.Time            `bson:"created_at"`
	UpdatedAt   time.Time            `bson:"updated_at"`
	// StockTags lists journal steps whose stock adjustment is not final yet.
	StockTags []string `bson:"stock_tags,omitempty"`
}

func newProductDocument(p *domain.Product) (*productDocument, error) {
	price, err := toDecimal128(p.Price)
	if err != nil {
		return nil, err
	}
	return &productDocument{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       price,
		Stock:       p.Stock,
		IsActive:    p.IsActive,
		Category:    p.Category,
		ImageURL:    p.ImageURL,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}, nil
}

func (d *productDocument) toDomain() (*domain.Product, error) {
	price, err := fromDecimal128(d.Price)
	if err != nil {
		return nil, err
	}
	return &domain.Product{
		ID:          d.ID,
		Name:        d.Name,
		Description: d.Description,
		Price:       price,
		Stock:       d.Stock,
		IsActive:    d.IsActive,
		Category:    d.Category,
		ImageURL:    d.ImageURL,
		CreatedAt:   d.CreatedAt.UTC(),
		UpdatedAt:   d.UpdatedAt.UTC(),
	}, nil
}

type cartItemDocument struct {
	ProductID string `bson:"product_id"`
	Quantity  int    `bson:"quantity"`
}

type cartDocument struct {
	UserID    string             `bson:"_id"`
	Items     []cartItemDocument `bson:"items"`
	UpdatedAt time.Time          `bson:"updated_at"`
}

func cartItemDocuments(items []domain.CartItem) []cartItemDocument {
	docs := make([]cartItemDocument, 0, len(items))
	for _, item := range items {
		docs = append(docs, cartItemDocument{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	return docs
}

func (d *cartDocument) toDomain() *domain.Cart {
	cart := &domain.Cart{UserID: d.UserID, Items: make([]domain.CartItem, 0, len(d.Items)), UpdatedAt: d.UpdatedAt.UTC()}
	for _, item := range d.Items {
		cart.Items = append(cart.Items, domain.CartItem{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	return cart
}

type orderItemDocument struct {
	ProductID string               `bson:"product_id"`
	Quantity  int                  `bson:"quantity"`
	UnitPrice primitive.Decimal128 `bson:"unit_price"`
}

// orderDocument keeps the flat product id list next to the per-line snapshot
// so that readers of the older document shape still find it.
type orderDocument struct {
	ID         string               `bson:"_id"`
	UserID     string               `bson:"user_id"`
	ProductIDs []string             `bson:"products"`
	Items      []orderItemDocument  `bson:"items"`
	TotalPrice primitive.Decimal128 `bson:"total_price"`
	Status     string               `bson:"status"`
	CreatedAt  time.Time            `bson:"created_at"`
	UpdatedAt  time.Time            `bson:"updated_at"`
}

func newOrderDocument(o *domain.Order) (*orderDocument, error) {
	total, err := toDecimal128(o.TotalPrice)
	if err != nil {
		return nil, err
	}
	items := make([]orderItemDocument, 0, len(o.Items))
	for _, item := range o.Items {
		price, err := toDecimal128(item.UnitPrice)
		if err != nil {
			return nil, err
		}
		items = append(items, orderItemDocument{ProductID: item.ProductID, Quantity: item.Quantity, UnitPrice: price})
	}
	return &orderDocument{
		ID:         o.ID,
		UserID:     o.UserID,
		ProductIDs: o.ProductIDs(),
		Items:      items,
		TotalPrice: total,
		Status:     string(o.Status),
		CreatedAt:  o.CreatedAt,
		UpdatedAt:  o.UpdatedAt,
	}, nil
}

func (d *orderDocument) toDomain() (*domain.Order, error) {
	total, err := fromDecimal128(d.TotalPrice)
	if err != nil {
		return nil, err
	}
	items := make([]domain.OrderItem, 0, len(d.Items))
	for _, item := range d.Items {
		price, err := fromDecimal128(item.UnitPrice)
		if err != nil {
			return nil, err
		}
		items = append(items, domain.OrderItem{ProductID: item.ProductID, Quantity: item.Quantity, UnitPrice: price})
	}
	return &domain.Order{
		ID:         d.ID,
		UserID:     d.UserID,
		Items:      items,
		TotalPrice: total,
		Status:     domain.OrderStatus(d.Status),
		CreatedAt:  d.CreatedAt.UTC(),
		UpdatedAt:  d.UpdatedAt.UTC(),
	}, nil
}

type userDocument struct {
	ID             string    `bson:"_id"`
	Username       string    `bson:"username"`
	FullName       string    `bson:"fullName"`
	Email          string    `bson:"email"`
	HashedPassword string    `bson:"hashed_password"`
	Role           string    `bson:"role"`
	IsActive       bool      `bson:"is_active"`
	CreatedAt      time.Time `bson:"created_at"`
}

func (d *userDocument) toDomain() *domain.User {
	return &domain.User{
		ID:           d.ID,
		Username:     d.Username,
		FullName:     d.FullName,
		Email:        d.Email,
		PasswordHash: d.HashedPassword,
		Role:         domain.Role(d.Role),
		IsActive:     d.IsActive,
		CreatedAt:    d.CreatedAt.UTC(),
	}
}

type categoryDocument struct {
	ID          string    `bson:"_id"`
	Name        string    `bson:"name"`
	Description string    `bson:"description"`
	CreatedAt   time.Time `bson:"created_at"`
	UpdatedAt   time.Time `bson:"updated_at"`
}

func (d *categoryDocument) toDomain() *domain.Category {
	return &domain.Category{
		ID:          d.ID,
		Name:        d.Name,
		Description: d.Description,
		CreatedAt:   d.CreatedAt.UTC(),
		UpdatedAt:   d.UpdatedAt.UTC(),
	}
}
