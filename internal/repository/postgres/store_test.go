package postgres

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"shop_service/internal/domain"
	"shop_service/pkg/db"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setup connects to TEST_DATABASE_URL; the tests are skipped without it.
func setup(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	conn, err := db.ConnectPostgres(ctx, url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, db.Migrate(ctx, conn))

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewStore(conn, logger)
}

func seedProduct(t *testing.T, s *Store, stock int) *domain.Product {
	t.Helper()
	p, err := s.CreateProduct(context.Background(), &domain.Product{
		Name: "Widget", Price: decimal.RequireFromString("10.00"), Stock: stock, IsActive: true,
	})
	require.NoError(t, err)
	return p
}

func TestAdjustStockIsConditional(t *testing.T) {
	s := setup(t)
	ctx := context.Background()
	p := seedProduct(t, s, 5)

	var wg sync.WaitGroup
	var succeeded atomic.Int32
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.AdjustStock(ctx, p.ID, -1); err == nil {
				succeeded.Add(1)
			} else {
				assert.ErrorIs(t, err, domain.ErrStockWouldGoNegative)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 5, succeeded.Load())

	got, err := s.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Stock)

	_, err = s.AdjustStock(ctx, uuid.NewString(), -1)
	assert.ErrorIs(t, err, domain.ErrProductNotFound)
}

func TestWithinTxRollsBack(t *testing.T) {
	s := setup(t)
	ctx := context.Background()
	p := seedProduct(t, s, 5)
	userID := uuid.NewString()

	cart, err := s.GetCart(ctx, userID)
	require.NoError(t, err)
	cart.AddItem(p.ID, 2)
	require.NoError(t, s.SaveCart(ctx, cart))

	boom := errors.New("boom")
	err = s.WithinTx(ctx, func(ctx context.Context, st domain.Store) error {
		if _, err := st.AdjustStock(ctx, p.ID, -2); err != nil {
			return err
		}
		if _, err := st.InsertOrder(ctx, &domain.Order{
			UserID: userID, Status: domain.StatusPending, TotalPrice: decimal.NewFromInt(20),
			Items: []domain.OrderItem{{ProductID: p.ID, Quantity: 2, UnitPrice: p.Price}},
		}); err != nil {
			return err
		}
		if err := st.SaveCart(ctx, &domain.Cart{UserID: userID}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := s.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.Stock)

	orders, err := s.ListOrdersByUserID(ctx, userID, domain.OrderFilter{})
	require.NoError(t, err)
	assert.Empty(t, orders)

	cart, err = s.GetCart(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 2, cart.QuantityOf(p.ID))
}

func TestOrderRoundTripKeepsSnapshot(t *testing.T) {
	s := setup(t)
	ctx := context.Background()
	p := seedProduct(t, s, 5)
	userID := uuid.NewString()

	created, err := s.InsertOrder(ctx, &domain.Order{
		UserID: userID, Status: domain.StatusPending, TotalPrice: decimal.RequireFromString("30.00"),
		Items: []domain.OrderItem{{ProductID: p.ID, Quantity: 3, UnitPrice: p.Price}},
	})
	require.NoError(t, err)

	got, err := s.GetOrderByID(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, got.Items, 1)
	assert.Equal(t, 3, got.Items[0].Quantity)
	assert.True(t, got.TotalPrice.Equal(decimal.NewFromInt(30)))

	_, err = s.UpdateOrderStatus(ctx, created.ID, domain.StatusShipped, domain.StatusDelivered)
	assert.ErrorIs(t, err, domain.ErrInvalidStatusTransition)

	shipped, err := s.UpdateOrderStatus(ctx, created.ID, domain.StatusPending, domain.StatusShipped)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusShipped, shipped.Status)

	require.NoError(t, s.DeleteOrder(ctx, created.ID))
	assert.ErrorIs(t, s.DeleteOrder(ctx, created.ID), domain.ErrOrderNotFound)
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	s := setup(t)
	ctx := context.Background()
	email := uuid.NewString() + "@example.com"

	_, err := s.CreateUser(ctx, &domain.User{Username: "a", Email: email, PasswordHash: "x", Role: domain.RoleCustomer, IsActive: true})
	require.NoError(t, err)
	_, err = s.CreateUser(ctx, &domain.User{Username: "b", Email: email, PasswordHash: "x", Role: domain.RoleCustomer, IsActive: true})
	assert.ErrorIs(t, err, domain.ErrUserExists)
}

func TestCategoryNamesAreUniqueIgnoringCase(t *testing.T) {
	s := setup(t)
	ctx := context.Background()
	name := "Lamps-" + uuid.NewString()

	created, err := s.CreateCategory(ctx, &domain.Category{Name: name})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.DeleteCategory(context.Background(), created.ID) })

	_, err = s.CreateCategory(ctx, &domain.Category{Name: strings.ToUpper(name)})
	assert.ErrorIs(t, err, domain.ErrCategoryExists)

	got, err := s.GetCategoryByName(ctx, strings.ToLower(name))
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)

	description := "Desk and floor lamps"
	updated, err := s.UpdateCategory(ctx, created.ID, domain.CategoryUpdate{Description: &description})
	require.NoError(t, err)
	assert.Equal(t, name, updated.Name)
	assert.Equal(t, description, updated.Description)

	require.NoError(t, s.DeleteCategory(ctx, created.ID))
	assert.ErrorIs(t, s.DeleteCategory(ctx, created.ID), domain.ErrCategoryNotFound)
}

func TestUpdateUserAndListOrdersAcrossUsers(t *testing.T) {
	s := setup(t)
	ctx := context.Background()

	u, err := s.CreateUser(ctx, &domain.User{Username: "a", Email: uuid.NewString() + "@example.com", PasswordHash: "x", Role: domain.RoleCustomer, IsActive: true})
	require.NoError(t, err)
	admin := domain.RoleAdmin
	inactive := false
	updated, err := s.UpdateUser(ctx, u.ID, domain.UserUpdate{Role: &admin, IsActive: &inactive})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, updated.Role)
	assert.False(t, updated.IsActive)
	assert.Equal(t, "a", updated.Username)

	_, err = s.UpdateUser(ctx, uuid.NewString(), domain.UserUpdate{IsActive: &inactive})
	assert.ErrorIs(t, err, domain.ErrUserNotFound)

	_, err = s.InsertOrder(ctx, &domain.Order{UserID: u.ID, Status: domain.StatusPending, TotalPrice: decimal.Zero})
	require.NoError(t, err)
	orders, err := s.ListOrders(ctx, domain.OrderFilter{UserID: u.ID})
	require.NoError(t, err)
	assert.Len(t, orders, 1)
}
