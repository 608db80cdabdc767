package usecase

import (
	"context"
	"errors"
	"fmt"

	"shop_service/internal/domain"

	"github.com/sirupsen/logrus"
)

var _ domain.CartUseCase = (*cartUseCase)(nil)

type cartUseCase struct {
	store domain.Store
	tx    domain.Transactor
	log   *logrus.Logger
}

func NewCartUseCase(store domain.Store, tx domain.Transactor, logger *logrus.Logger) domain.CartUseCase {
	return &cartUseCase{
		store: store,
		tx:    tx,
		log:   logger,
	}
}

func (uc *cartUseCase) GetCart(ctx context.Context, userID string) (*domain.Cart, error) {
	if userID == "" {
		return nil, domain.InvalidInput("user id is required")
	}
	cart, err := uc.store.GetCart(ctx, userID)
	if err != nil {
		uc.log.Errorf("Use Case: Failed to read cart for user %s: %v", userID, err)
		return nil, domain.NewPersistenceError("get cart", err)
	}
	return cart, nil
}

func (uc *cartUseCase) AddItem(ctx context.Context, userID, productID string, quantity int) (*domain.Cart, error) {
	if quantity <= 0 {
		return nil, domain.InvalidInput("quantity must be positive")
	}
	uc.log.Infof("Use Case: Adding %d x product %s to cart of user %s", quantity, productID, userID)
	return uc.mutate(ctx, userID, func(ctx context.Context, s domain.Store, cart *domain.Cart) error {
		if err := uc.checkStock(ctx, s, productID, cart.QuantityOf(productID)+quantity); err != nil {
			return err
		}
		cart.AddItem(productID, quantity)
		return nil
	})
}

func (uc *cartUseCase) UpdateItem(ctx context.Context, userID, productID string, quantity int) (*domain.Cart, error) {
	if quantity <= 0 {
		return nil, domain.InvalidInput("quantity must be positive")
	}
	uc.log.Infof("Use Case: Setting quantity of product %s to %d in cart of user %s", productID, quantity, userID)
	return uc.mutate(ctx, userID, func(ctx context.Context, s domain.Store, cart *domain.Cart) error {
		if cart.QuantityOf(productID) == 0 {
			return fmt.Errorf("%w: %s", domain.ErrCartItemNotFound, productID)
		}
		if err := uc.checkStock(ctx, s, productID, quantity); err != nil {
			return err
		}
		cart.SetQuantity(productID, quantity)
		return nil
	})
}

func (uc *cartUseCase) RemoveItem(ctx context.Context, userID, productID string) (*domain.Cart, error) {
	uc.log.Infof("Use Case: Removing product %s from cart of user %s", productID, userID)
	return uc.mutate(ctx, userID, func(_ context.Context, _ domain.Store, cart *domain.Cart) error {
		if !cart.RemoveItem(productID) {
			return fmt.Errorf("%w: %s", domain.ErrCartItemNotFound, productID)
		}
		return nil
	})
}

func (uc *cartUseCase) ClearCart(ctx context.Context, userID string) error {
	if userID == "" {
		return domain.InvalidInput("user id is required")
	}
	cart, err := uc.store.GetCart(ctx, userID)
	if err != nil {
		return domain.NewPersistenceError("get cart", err)
	}
	if cart.IsEmpty() {
		return nil
	}
	cart.Items = []domain.CartItem{}
	if err := uc.store.SaveCart(ctx, cart); err != nil {
		uc.log.Errorf("Use Case: Failed to clear cart for user %s: %v", userID, err)
		return domain.NewPersistenceError("clear cart", err)
	}
	uc.log.Infof("Use Case: Cart of user %s cleared", userID)
	return nil
}

// mutate runs a read-modify-write of the user's cart as one unit of work.
func (uc *cartUseCase) mutate(ctx context.Context, userID string, fn func(ctx context.Context, s domain.Store, cart *domain.Cart) error) (*domain.Cart, error) {
	if userID == "" {
		return nil, domain.InvalidInput("user id is required")
	}
	var saved *domain.Cart
	err := uc.tx.WithinTx(ctx, func(ctx context.Context, s domain.Store) error {
		cart, err := s.GetCart(ctx, userID)
		if err != nil {
			return err
		}
		if err := fn(ctx, s, cart); err != nil {
			return err
		}
		if err := s.SaveCart(ctx, cart); err != nil {
			return err
		}
		saved = cart
		return nil
	})
	if err != nil {
		uc.log.Warnf("Use Case: Cart update for user %s failed: %v", userID, err)
		return nil, domain.NewPersistenceError("update cart", err)
	}
	return saved, nil
}

func (uc *cartUseCase) checkStock(ctx context.Context, s domain.Store, productID string, wanted int) error {
	product, err := s.GetProduct(ctx, productID)
	if err != nil {
		if errors.Is(err, domain.ErrProductNotFound) {
			return fmt.Errorf("%w: %s", domain.ErrProductNotFound, productID)
		}
		return err
	}
	if !product.IsActive {
		return fmt.Errorf("%w: %s is not available", domain.ErrProductNotFound, productID)
	}
	if product.Stock < wanted {
		return &domain.InsufficientStockError{ProductID: productID, Requested: wanted, Available: product.Stock}
	}
	return nil
}
