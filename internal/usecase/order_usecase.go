package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"shop_service/internal/domain"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
	defaultFanout    = 8
)

var _ domain.OrderUseCase = (*orderUseCase)(nil)

type orderUseCase struct {
	store  domain.Store
	tx     domain.Transactor
	fanout int
	log    *logrus.Logger
}

// NewOrderUseCase wires order placement to a store and the transactor that
// makes its writes all-or-nothing. fanout bounds concurrent product reads.
func NewOrderUseCase(store domain.Store, tx domain.Transactor, fanout int, logger *logrus.Logger) domain.OrderUseCase {
	if fanout <= 0 {
		fanout = defaultFanout
	}
	return &orderUseCase{
		store:  store,
		tx:     tx,
		fanout: fanout,
		log:    logger,
	}
}

func (uc *orderUseCase) PlaceOrder(ctx context.Context, userID string) (*domain.OrderSummary, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, domain.InvalidInput("user id is required")
	}
	uc.log.Infof("Use Case: Placing order for user %s", userID)

	cart, err := uc.store.GetCart(ctx, userID)
	if err != nil {
		uc.log.Errorf("Use Case: Failed to read cart for user %s: %v", userID, err)
		return nil, domain.NewPersistenceError("read cart", err)
	}
	if cart.IsEmpty() {
		uc.log.Warnf("Use Case: User %s tried to place an order with an empty cart", userID)
		return nil, domain.ErrEmptyCart
	}

	products, err := uc.loadProducts(ctx, cart.Items)
	if err != nil {
		uc.log.Warnf("Use Case: Cart validation failed for user %s: %v", userID, err)
		return nil, err
	}

	lines := make([]domain.OrderItem, 0, len(cart.Items))
	total := decimal.Zero
	for _, item := range cart.Items {
		product := products[item.ProductID]
		if product.Stock < item.Quantity {
			uc.log.Warnf("Use Case: Insufficient stock for product %s (requested: %d, available: %d)", item.ProductID, item.Quantity, product.Stock)
			return nil, &domain.InsufficientStockError{
				ProductID: item.ProductID,
				Requested: item.Quantity,
				Available: product.Stock,
			}
		}
		lines = append(lines, domain.OrderItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: product.Price,
		})
		total = total.Add(product.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	uc.log.Infof("Use Case: Cart of user %s validated: %d lines, total %s", userID, len(lines), total.StringFixed(2))

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var placed *domain.Order
	err = uc.tx.WithinTx(ctx, func(ctx context.Context, s domain.Store) error {
		current, err := s.GetCart(ctx, userID)
		if err != nil {
			return err
		}
		if current.IsEmpty() {
			return domain.ErrEmptyCart
		}
		if !domain.SameItems(current.Items, cart.Items) {
			uc.log.Warnf("Use Case: Cart of user %s changed during checkout, aborting", userID)
			return domain.ErrCartChanged
		}

		for _, line := range lines {
			if _, err := s.AdjustStock(ctx, line.ProductID, -line.Quantity); err != nil {
				if errors.Is(err, domain.ErrStockWouldGoNegative) {
					return uc.insufficientStock(ctx, s, line)
				}
				if errors.Is(err, domain.ErrProductNotFound) {
					return fmt.Errorf("%w: %s", domain.ErrProductNotFound, line.ProductID)
				}
				return err
			}
		}

		order, err := s.InsertOrder(ctx, &domain.Order{
			UserID:     userID,
			Items:      lines,
			TotalPrice: total,
			Status:     domain.StatusPending,
		})
		if err != nil {
			return err
		}

		if err := s.SaveCart(ctx, &domain.Cart{UserID: userID, Items: []domain.CartItem{}}); err != nil {
			return err
		}
		placed = order
		return nil
	})
	if err != nil {
		uc.log.Errorf("Use Case: Placing order for user %s failed, all changes rolled back: %v", userID, err)
		return nil, domain.NewPersistenceError("place order", err)
	}

	uc.log.Infof("Use Case: Order %s placed for user %s, total %s", placed.ID, userID, placed.TotalPrice.StringFixed(2))
	return placed.Summary(), nil
}

// loadProducts reads every product referenced by the cart. Missing and
// inactive products are both reported as not found.
func (uc *orderUseCase) loadProducts(ctx context.Context, items []domain.CartItem) (map[string]*domain.Product, error) {
	found := make([]*domain.Product, len(items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(uc.fanout)
	for i, item := range items {
		g.Go(func() error {
			product, err := uc.store.GetProduct(gctx, item.ProductID)
			if err != nil {
				if errors.Is(err, domain.ErrProductNotFound) {
					return fmt.Errorf("%w: %s", domain.ErrProductNotFound, item.ProductID)
				}
				return domain.NewPersistenceError("read product", err)
			}
			if !product.IsActive {
				return fmt.Errorf("%w: %s is not available", domain.ErrProductNotFound, item.ProductID)
			}
			found[i] = product
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	products := make(map[string]*domain.Product, len(found))
	for _, p := range found {
		products[p.ID] = p
	}
	return products, nil
}

func (uc *orderUseCase) insufficientStock(ctx context.Context, s domain.Store, line domain.OrderItem) error {
	available := 0
	if p, err := s.GetProduct(ctx, line.ProductID); err == nil {
		available = p.Stock
	}
	uc.log.Warnf("Use Case: Stock for product %s was taken concurrently (requested: %d, available: %d)", line.ProductID, line.Quantity, available)
	return &domain.InsufficientStockError{
		ProductID: line.ProductID,
		Requested: line.Quantity,
		Available: available,
	}
}

func (uc *orderUseCase) GetOrder(ctx context.Context, userID, orderID string) (*domain.Order, error) {
	if orderID == "" {
		return nil, domain.InvalidInput("order id is required")
	}
	uc.log.Infof("Use Case: Attempting to get order %s for user %s", orderID, userID)

	order, err := uc.store.GetOrderByID(ctx, orderID)
	if err != nil {
		uc.log.Warnf("Use Case: Repository failed to get order %s: %v", orderID, err)
		return nil, domain.NewPersistenceError("get order", err)
	}
	if order.UserID != userID {
		uc.log.Warnf("Use Case: User %s requested order %s owned by another user", userID, orderID)
		return nil, domain.ErrOrderNotFound
	}
	return order, nil
}

func (uc *orderUseCase) ListOrdersByUserID(ctx context.Context, userID string, filter domain.OrderFilter) ([]domain.Order, error) {
	if userID == "" {
		return nil, domain.InvalidInput("user id is required")
	}
	if filter.Status != "" && !domain.IsValidStatus(filter.Status) {
		return nil, domain.InvalidInput("unknown order status %q", filter.Status)
	}
	filter.Limit, filter.Offset = normalizePage(filter.Limit, filter.Offset)

	uc.log.Infof("Use Case: Attempting to list orders for user %s (status: %q, limit: %d, offset: %d)", userID, filter.Status, filter.Limit, filter.Offset)
	orders, err := uc.store.ListOrdersByUserID(ctx, userID, filter)
	if err != nil {
		uc.log.Errorf("Use Case: Repository failed to list orders for user %s: %v", userID, err)
		return nil, domain.NewPersistenceError("list orders", err)
	}
	uc.log.Infof("Use Case: Retrieved %d orders for user %s", len(orders), userID)
	return orders, nil
}

// ListAllOrders is the admin view over every user's orders.
func (uc *orderUseCase) ListAllOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	if filter.Status != "" && !domain.IsValidStatus(filter.Status) {
		return nil, domain.InvalidInput("unknown order status %q", filter.Status)
	}
	filter.UserID = strings.TrimSpace(filter.UserID)
	filter.Limit, filter.Offset = normalizePage(filter.Limit, filter.Offset)

	uc.log.Infof("Use Case: Listing all orders (user: %q, status: %q, limit: %d, offset: %d)", filter.UserID, filter.Status, filter.Limit, filter.Offset)
	orders, err := uc.store.ListOrders(ctx, filter)
	if err != nil {
		uc.log.Errorf("Use Case: Repository failed to list all orders: %v", err)
		return nil, domain.NewPersistenceError("list all orders", err)
	}
	return orders, nil
}

func (uc *orderUseCase) UpdateOrderStatus(ctx context.Context, orderID string, status domain.OrderStatus) (*domain.Order, error) {
	if orderID == "" {
		return nil, domain.InvalidInput("order id is required")
	}
	if !domain.IsValidStatus(status) {
		return nil, domain.InvalidInput("unknown order status %q", status)
	}
	uc.log.Infof("Use Case: Attempting to update status for order %s to '%s'", orderID, status)

	order, err := uc.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, domain.NewPersistenceError("get order", err)
	}
	if !domain.CanTransition(order.Status, status) {
		uc.log.Warnf("Use Case: Rejected transition of order %s from '%s' to '%s'", orderID, order.Status, status)
		return nil, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidStatusTransition, order.Status, status)
	}

	if status == domain.StatusCancelled {
		return uc.cancel(ctx, order)
	}

	updated, err := uc.store.UpdateOrderStatus(ctx, orderID, order.Status, status)
	if err != nil {
		uc.log.Errorf("Use Case: Repository failed to update status for order %s: %v", orderID, err)
		return nil, domain.NewPersistenceError("update order status", err)
	}
	uc.log.Infof("Use Case: Order %s status updated to '%s'", orderID, updated.Status)
	return updated, nil
}

func (uc *orderUseCase) CancelOrder(ctx context.Context, userID, orderID string) (*domain.Order, error) {
	order, err := uc.GetOrder(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != domain.StatusPending {
		uc.log.Warnf("Use Case: User %s tried to cancel order %s in status '%s'", userID, orderID, order.Status)
		return nil, fmt.Errorf("%w: only pending orders can be cancelled", domain.ErrInvalidStatusTransition)
	}
	return uc.cancel(ctx, order)
}

// cancel flips the status first so that a concurrent second cancel fails
// before it can restore stock twice.
func (uc *orderUseCase) cancel(ctx context.Context, order *domain.Order) (*domain.Order, error) {
	uc.log.Infof("Use Case: Order %s is being cancelled. Returning items to inventory.", order.ID)

	var cancelled *domain.Order
	err := uc.tx.WithinTx(ctx, func(ctx context.Context, s domain.Store) error {
		updated, err := s.UpdateOrderStatus(ctx, order.ID, order.Status, domain.StatusCancelled)
		if err != nil {
			return err
		}
		for _, item := range order.Items {
			if _, err := s.AdjustStock(ctx, item.ProductID, item.Quantity); err != nil {
				if errors.Is(err, domain.ErrProductNotFound) {
					uc.log.Warnf("Use Case: Product %s of order %s no longer exists, stock not returned", item.ProductID, order.ID)
					continue
				}
				return err
			}
		}
		cancelled = updated
		return nil
	})
	if err != nil {
		uc.log.Errorf("Use Case: Cancelling order %s failed, nothing changed: %v", order.ID, err)
		return nil, domain.NewPersistenceError("cancel order", err)
	}
	uc.log.Infof("Use Case: Order %s cancelled and stock returned", order.ID)
	return cancelled, nil
}

func normalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
