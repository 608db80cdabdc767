package postgres

import (
	"context"
	"fmt"

	"shop_service/internal/domain"
)

// GetCart creates the cart row on first access. ON CONFLICT keeps concurrent
// first accesses from failing on the primary key. Inside a transaction the
// cart row is locked so that checkouts of the same user run one at a time.
func (s *Store) GetCart(ctx context.Context, userID string) (*domain.Cart, error) {
	if _, err := s.q.ExecContext(ctx, `INSERT INTO carts (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`, userID); err != nil {
		s.log.Errorf("Repository: Failed to create cart for user %s: %v", userID, err)
		return nil, fmt.Errorf("could not create cart: %w", err)
	}

	query := `SELECT user_id, updated_at FROM carts WHERE user_id = $1`
	if s.tx != nil {
		query += ` FOR UPDATE`
	}
	cart := &domain.Cart{Items: []domain.CartItem{}}
	if err := s.q.QueryRowContext(ctx, query, userID).Scan(&cart.UserID, &cart.UpdatedAt); err != nil {
		return nil, fmt.Errorf("could not read cart: %w", err)
	}

	rows, err := s.q.QueryContext(ctx, `SELECT product_id, quantity FROM cart_items WHERE user_id = $1 ORDER BY product_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("could not read cart items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var item domain.CartItem
		if err := rows.Scan(&item.ProductID, &item.Quantity); err != nil {
			return nil, fmt.Errorf("could not scan cart item: %w", err)
		}
		cart.Items = append(cart.Items, item)
	}
	return cart, rows.Err()
}

// SaveCart replaces the stored items with cart.Items.
func (s *Store) SaveCart(ctx context.Context, cart *domain.Cart) error {
	if s.tx == nil {
		return s.WithinTx(ctx, func(ctx context.Context, st domain.Store) error {
			return st.SaveCart(ctx, cart)
		})
	}

	upsert := `
        INSERT INTO carts (user_id, updated_at) VALUES ($1, now())
        ON CONFLICT (user_id) DO UPDATE SET updated_at = now()`
	if _, err := s.q.ExecContext(ctx, upsert, cart.UserID); err != nil {
		return fmt.Errorf("could not save cart: %w", err)
	}
	if _, err := s.q.ExecContext(ctx, `DELETE FROM cart_items WHERE user_id = $1`, cart.UserID); err != nil {
		return fmt.Errorf("could not clear cart items: %w", err)
	}
	if len(cart.Items) == 0 {
		return nil
	}

	stmt, err := s.q.PrepareContext(ctx, `INSERT INTO cart_items (user_id, product_id, quantity) VALUES ($1, $2, $3)`)
	if err != nil {
		return fmt.Errorf("could not prepare cart item statement: %w", err)
	}
	defer stmt.Close()
	for _, item := range cart.Items {
		if _, err := stmt.ExecContext(ctx, cart.UserID, item.ProductID, item.Quantity); err != nil {
			s.log.Errorf("Repository: Failed to insert cart item (product_id: %s) for user %s: %v", item.ProductID, cart.UserID, err)
			return fmt.Errorf("could not save cart item (product_id: %s): %w", item.ProductID, constraintError(err))
		}
	}
	return nil
}
