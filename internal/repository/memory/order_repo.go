package memory

import (
	"context"
	"sort"

	"shop_service/internal/domain"

	"github.com/google/uuid"
)

func cloneOrder(o domain.Order) domain.Order {
	o.Items = append([]domain.OrderItem(nil), o.Items...)
	return o
}

func (s *Store) InsertOrder(ctx context.Context, order *domain.Order) (*domain.Order, error) {
	if err := checkCtx(ctx, "insert order"); err != nil {
		return nil, err
	}
	defer s.wlock(ctx)()

	o := cloneOrder(*order)
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	now := s.now()
	o.CreatedAt, o.UpdatedAt = now, now
	s.orders[o.ID] = o
	s.onRollback(ctx, func() { delete(s.orders, o.ID) })

	s.log.Infof("Repository: Order %s stored with %d items", o.ID, len(o.Items))
	out := cloneOrder(o)
	return &out, nil
}

func (s *Store) GetOrderByID(ctx context.Context, id string) (*domain.Order, error) {
	if err := checkCtx(ctx, "get order"); err != nil {
		return nil, err
	}
	defer s.rlock(ctx)()

	o, ok := s.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	out := cloneOrder(o)
	return &out, nil
}

func (s *Store) ListOrdersByUserID(ctx context.Context, userID string, filter domain.OrderFilter) ([]domain.Order, error) {
	filter.UserID = userID
	return s.ListOrders(ctx, filter)
}

func (s *Store) ListOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	if err := checkCtx(ctx, "list orders"); err != nil {
		return nil, err
	}
	defer s.rlock(ctx)()

	out := make([]domain.Order, 0)
	for _, o := range s.orders {
		if filter.UserID != "" && o.UserID != filter.UserID {
			continue
		}
		if filter.Status != "" && o.Status != filter.Status {
			continue
		}
		out = append(out, cloneOrder(o))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return paginate(out, filter.Limit, filter.Offset), nil
}

func (s *Store) UpdateOrderStatus(ctx context.Context, id string, from, to domain.OrderStatus) (*domain.Order, error) {
	if err := checkCtx(ctx, "update order status"); err != nil {
		return nil, err
	}
	defer s.wlock(ctx)()

	prev, ok := s.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	if prev.Status != from {
		return nil, domain.ErrInvalidStatusTransition
	}
	o := cloneOrder(prev)
	o.Status = to
	o.UpdatedAt = s.now()
	s.orders[id] = o
	s.onRollback(ctx, func() { s.orders[id] = prev })

	out := cloneOrder(o)
	return &out, nil
}

func (s *Store) DeleteOrder(ctx context.Context, id string) error {
	defer s.wlock(ctx)()

	prev, ok := s.orders[id]
	if !ok {
		return domain.ErrOrderNotFound
	}
	delete(s.orders, id)
	s.onRollback(ctx, func() { s.orders[id] = prev })
	return nil
}
