package memory

import (
	"context"

	"shop_service/internal/domain"
)

func (s *Store) GetCart(ctx context.Context, userID string) (*domain.Cart, error) {
	if err := checkCtx(ctx, "get cart"); err != nil {
		return nil, err
	}
	defer s.wlock(ctx)()

	cart, ok := s.carts[userID]
	if !ok {
		cart = domain.Cart{UserID: userID, Items: []domain.CartItem{}, UpdatedAt: s.now()}
		s.carts[userID] = cart
		s.onRollback(ctx, func() { delete(s.carts, userID) })
	}
	return cart.Clone(), nil
}

func (s *Store) SaveCart(ctx context.Context, cart *domain.Cart) error {
	if err := checkCtx(ctx, "save cart"); err != nil {
		return err
	}
	defer s.wlock(ctx)()

	prev, existed := s.carts[cart.UserID]
	next := *cart.Clone()
	if next.Items == nil {
		next.Items = []domain.CartItem{}
	}
	next.UpdatedAt = s.now()
	s.carts[cart.UserID] = next
	s.onRollback(ctx, func() {
		if existed {
			s.carts[cart.UserID] = prev
		} else {
			delete(s.carts, cart.UserID)
		}
	})
	return nil
}
