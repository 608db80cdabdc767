package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"shop_service/internal/domain"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const orderColumns = `id, user_id, total_price, status, created_at, updated_at`

func scanOrder(row rowScanner) (*domain.Order, error) {
	o := &domain.Order{}
	if err := row.Scan(&o.ID, &o.UserID, &o.TotalPrice, &o.Status, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *Store) InsertOrder(ctx context.Context, order *domain.Order) (*domain.Order, error) {
	if s.tx == nil {
		var created *domain.Order
		err := s.WithinTx(ctx, func(ctx context.Context, st domain.Store) error {
			var err error
			created, err = st.InsertOrder(ctx, order)
			return err
		})
		return created, err
	}

	id := order.ID
	if id == "" {
		id = uuid.NewString()
	}
	createdAt := order.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	query := `
        INSERT INTO orders (id, user_id, total_price, status, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $5)
        RETURNING ` + orderColumns
	created, err := scanOrder(s.q.QueryRowContext(ctx, query, id, order.UserID, order.TotalPrice, order.Status, createdAt))
	if err != nil {
		s.log.Errorf("Repository: Failed to insert order for user %s: %v", order.UserID, err)
		return nil, fmt.Errorf("could not create order entry: %w", constraintError(err))
	}

	stmt, err := s.q.PrepareContext(ctx, `INSERT INTO order_items (order_id, product_id, quantity, unit_price) VALUES ($1, $2, $3, $4)`)
	if err != nil {
		return nil, fmt.Errorf("could not prepare item statement: %w", err)
	}
	defer stmt.Close()

	for _, item := range order.Items {
		if _, err := stmt.ExecContext(ctx, created.ID, item.ProductID, item.Quantity, item.UnitPrice); err != nil {
			s.log.Errorf("Repository: Failed to insert order item (product_id: %s, quantity: %d) for order %s: %v", item.ProductID, item.Quantity, created.ID, err)
			return nil, fmt.Errorf("could not create order item (product_id: %s): %w", item.ProductID, constraintError(err))
		}
	}
	created.Items = append([]domain.OrderItem(nil), order.Items...)

	s.log.Infof("Repository: Order %s created with %d items", created.ID, len(created.Items))
	return created, nil
}

func (s *Store) GetOrderByID(ctx context.Context, id string) (*domain.Order, error) {
	order, err := scanOrder(s.q.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrOrderNotFound
		}
		s.log.Errorf("Repository: Failed to get order %s: %v", id, err)
		return nil, fmt.Errorf("could not retrieve order: %w", err)
	}

	items, err := s.orderItems(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	order.Items = items[id]
	return order, nil
}

func (s *Store) orderItems(ctx context.Context, orderIDs []string) (map[string][]domain.OrderItem, error) {
	rows, err := s.q.QueryContext(ctx, `
        SELECT order_id, product_id, quantity, unit_price
        FROM order_items
        WHERE order_id = ANY($1)
        ORDER BY order_id, product_id`, pq.Array(orderIDs))
	if err != nil {
		return nil, fmt.Errorf("could not retrieve order items: %w", err)
	}
	defer rows.Close()

	items := make(map[string][]domain.OrderItem, len(orderIDs))
	for rows.Next() {
		var orderID string
		var item domain.OrderItem
		if err := rows.Scan(&orderID, &item.ProductID, &item.Quantity, &item.UnitPrice); err != nil {
			return nil, fmt.Errorf("could not scan order item: %w", err)
		}
		items[orderID] = append(items[orderID], item)
	}
	return items, rows.Err()
}

func (s *Store) ListOrdersByUserID(ctx context.Context, userID string, filter domain.OrderFilter) ([]domain.Order, error) {
	filter.UserID = userID
	return s.ListOrders(ctx, filter)
}

func (s *Store) ListOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE TRUE`
	args := []interface{}{}
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		query += fmt.Sprintf(" AND user_id = $%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	args = append(args, filter.Offset)
	query += fmt.Sprintf(" OFFSET $%d", len(args))

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		s.log.Errorf("Repository: Failed to list orders (user %q): %v", filter.UserID, err)
		return nil, fmt.Errorf("could not list orders: %w", err)
	}
	orders := make([]domain.Order, 0)
	ids := make([]string, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("could not scan order: %w", err)
		}
		orders = append(orders, *o)
		ids = append(ids, o.ID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return orders, nil
	}

	items, err := s.orderItems(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].Items = items[orders[i].ID]
	}
	return orders, nil
}

func (s *Store) UpdateOrderStatus(ctx context.Context, id string, from, to domain.OrderStatus) (*domain.Order, error) {
	query := `
        UPDATE orders SET status = $3, updated_at = now()
        WHERE id = $1 AND status = $2
        RETURNING ` + orderColumns
	order, err := scanOrder(s.q.QueryRowContext(ctx, query, id, from, to))
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.log.Errorf("Repository: Failed to update status for order %s: %v", id, err)
			return nil, fmt.Errorf("could not update order status: %w", err)
		}
		var exists bool
		if err := s.q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, id).Scan(&exists); err != nil {
			return nil, fmt.Errorf("could not check order existence: %w", err)
		}
		if !exists {
			return nil, domain.ErrOrderNotFound
		}
		return nil, domain.ErrInvalidStatusTransition
	}

	items, err := s.orderItems(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	order.Items = items[id]
	return order, nil
}

func (s *Store) DeleteOrder(ctx context.Context, id string) error {
	res, err := s.q.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("could not delete order: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}
