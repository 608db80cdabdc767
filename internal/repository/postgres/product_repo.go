package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"shop_service/internal/domain"

	"github.com/google/uuid"
)

const productColumns = `id, name, description, price, stock, is_active, category, image_url, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanProduct(row rowScanner) (*domain.Product, error) {
	p := &domain.Product{}
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.Stock, &p.IsActive,
		&p.Category, &p.ImageURL, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Store) CreateProduct(ctx context.Context, product *domain.Product) (*domain.Product, error) {
	id := product.ID
	if id == "" {
		id = uuid.NewString()
	}
	query := `
        INSERT INTO products (id, name, description, price, stock, is_active, category, image_url)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        RETURNING ` + productColumns

	created, err := scanProduct(s.q.QueryRowContext(ctx, query, id, product.Name, product.Description,
		product.Price, product.Stock, product.IsActive, product.Category, product.ImageURL))
	if err != nil {
		s.log.Errorf("Repository: Failed to create product '%s': %v", product.Name, err)
		return nil, fmt.Errorf("could not create product: %w", constraintError(err))
	}
	s.log.Infof("Repository: Product created with ID %s", created.ID)
	return created, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`
	p, err := scanProduct(s.q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrProductNotFound
		}
		s.log.Errorf("Repository: Failed to get product %s: %v", id, err)
		return nil, fmt.Errorf("could not retrieve product: %w", err)
	}
	return p, nil
}

func (s *Store) UpdateProduct(ctx context.Context, id string, update domain.ProductUpdate) (*domain.Product, error) {
	setClauses := make([]string, 0, 7)
	args := []interface{}{id}
	set := func(column string, value interface{}) {
		args = append(args, value)
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if update.Name != nil {
		set("name", *update.Name)
	}
	if update.Description != nil {
		set("description", *update.Description)
	}
	if update.Price != nil {
		set("price", *update.Price)
	}
	if update.Category != nil {
		set("category", *update.Category)
	}
	if update.ImageURL != nil {
		set("image_url", *update.ImageURL)
	}
	if update.IsActive != nil {
		set("is_active", *update.IsActive)
	}
	if len(setClauses) == 0 {
		return s.GetProduct(ctx, id)
	}
	setClauses = append(setClauses, "updated_at = now()")

	query := `UPDATE products SET ` + strings.Join(setClauses, ", ") + ` WHERE id = $1 RETURNING ` + productColumns
	p, err := scanProduct(s.q.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrProductNotFound
		}
		s.log.Errorf("Repository: Failed to update product %s: %v", id, err)
		return nil, fmt.Errorf("could not update product: %w", constraintError(err))
	}
	return p, nil
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	res, err := s.q.ExecContext(ctx, `UPDATE products SET is_active = FALSE, updated_at = now() WHERE id = $1`, id)
	if err != nil {
		s.log.Errorf("Repository: Failed to deactivate product %s: %v", id, err)
		return fmt.Errorf("could not delete product: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrProductNotFound
	}
	return nil
}

func (s *Store) ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	conditions := []string{"TRUE"}
	args := []interface{}{}
	if filter.ActiveOnly {
		conditions = append(conditions, "is_active")
	}
	if filter.Category != "" {
		args = append(args, filter.Category)
		conditions = append(conditions, fmt.Sprintf("category = $%d", len(args)))
	}
	query := `SELECT ` + productColumns + ` FROM products WHERE ` + strings.Join(conditions, " AND ") +
		` ORDER BY created_at, id`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	args = append(args, filter.Offset)
	query += fmt.Sprintf(" OFFSET $%d", len(args))

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		s.log.Errorf("Repository: Failed to list products: %v", err)
		return nil, fmt.Errorf("could not list products: %w", err)
	}
	defer rows.Close()

	products := make([]domain.Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("could not scan product: %w", err)
		}
		products = append(products, *p)
	}
	return products, rows.Err()
}

// AdjustStock is a single conditional UPDATE, so concurrent callers can never
// push the stock below zero. When no row matches, a second lookup tells a
// missing product apart from a refused decrement.
func (s *Store) AdjustStock(ctx context.Context, id string, delta int) (*domain.Product, error) {
	query := `
        UPDATE products
        SET stock = stock + $2, updated_at = now()
        WHERE id = $1 AND stock + $2 >= 0
        RETURNING ` + productColumns
	p, err := scanProduct(s.q.QueryRowContext(ctx, query, id, delta))
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		s.log.Errorf("Repository: Failed to adjust stock of product %s by %d: %v", id, delta, err)
		return nil, fmt.Errorf("could not adjust stock: %w", err)
	}

	var exists bool
	if err := s.q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, id).Scan(&exists); err != nil {
		return nil, fmt.Errorf("could not check product existence: %w", err)
	}
	if !exists {
		return nil, domain.ErrProductNotFound
	}
	return nil, domain.ErrStockWouldGoNegative
}
