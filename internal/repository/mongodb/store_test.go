package mongodb

import (
	"context"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"testing"

	"shop_service/internal/domain"
	"shop_service/internal/repository/compensating"
	"shop_service/pkg/db"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecimal128KeepsCents(t *testing.T) {
	for _, price := range []string{"0", "10.00", "19.99", "1234567.89", "0.10"} {
		d := decimal.RequireFromString(price)
		encoded, err := toDecimal128(d)
		require.NoError(t, err)
		decoded, err := fromDecimal128(encoded)
		require.NoError(t, err)
		assert.True(t, d.Equal(decoded), "price %s decoded as %s", price, decoded)
	}
}

func TestOrderDocumentKeepsFlatProductList(t *testing.T) {
	doc, err := newOrderDocument(&domain.Order{
		ID:         "o1",
		UserID:     "u1",
		TotalPrice: decimal.RequireFromString("25.00"),
		Status:     domain.StatusPending,
		Items: []domain.OrderItem{
			{ProductID: "p1", Quantity: 2, UnitPrice: decimal.RequireFromString("10.00")},
			{ProductID: "p2", Quantity: 1, UnitPrice: decimal.RequireFromString("5.00")},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p2"}, doc.ProductIDs)

	back, err := doc.toDomain()
	require.NoError(t, err)
	require.Len(t, back.Items, 2)
	assert.Equal(t, 2, back.Items[0].Quantity)
	assert.True(t, back.TotalPrice.Equal(decimal.NewFromInt(25)))
}

// setup connects to TEST_MONGO_URL; the tests are skipped without it.
func setup(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("TEST_MONGO_URL")
	if url == "" {
		t.Skip("TEST_MONGO_URL not set")
	}
	ctx := context.Background()
	client, err := db.ConnectMongo(ctx, url)
	require.NoError(t, err)

	database := client.Database("shop_test_" + NewID())
	t.Cleanup(func() {
		_ = database.Drop(context.Background())
		_ = client.Disconnect(context.Background())
	})

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	s := NewStore(database, logger)
	require.NoError(t, s.EnsureIndexes(ctx))
	return s
}

func TestAdjustStockNeverOversells(t *testing.T) {
	s := setup(t)
	ctx := context.Background()
	p, err := s.CreateProduct(ctx, &domain.Product{Name: "Widget", Price: decimal.NewFromInt(10), Stock: 5, IsActive: true})
	require.NoError(t, err)

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

	_, err = s.AdjustStock(ctx, NewID(), 1)
	assert.ErrorIs(t, err, domain.ErrProductNotFound)
}

func TestGetCartConcurrentFirstAccess(t *testing.T) {
	s := setup(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cart, err := s.GetCart(ctx, "u1")
			assert.NoError(t, err)
			assert.True(t, cart.IsEmpty())
		}()
	}
	wg.Wait()
}

func TestCompensatingTransactorOverMongo(t *testing.T) {
	s := setup(t)
	ctx := context.Background()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	tx := compensating.NewTransactor(s, compensating.NewMemoryJournal(compensating.DefaultLeaseTTL), logger, compensating.WithIDGenerator(NewID))

	p, err := s.CreateProduct(ctx, &domain.Product{Name: "Widget", Price: decimal.NewFromInt(10), Stock: 5, IsActive: true})
	require.NoError(t, err)

	var orderID string
	err = tx.WithinTx(ctx, func(ctx context.Context, st domain.Store) error {
		if _, err := st.AdjustStock(ctx, p.ID, -2); err != nil {
			return err
		}
		o, err := st.InsertOrder(ctx, &domain.Order{UserID: "u1", Status: domain.StatusPending})
		if err != nil {
			return err
		}
		orderID = o.ID
		return domain.ErrEmptyCart
	})
	require.ErrorIs(t, err, domain.ErrEmptyCart)

	got, err := s.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.Stock)
	_, err = s.GetOrderByID(ctx, orderID)
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestStockTagsMakeRevertIdempotent(t *testing.T) {
	s := setup(t)
	ctx := context.Background()
	p, err := s.CreateProduct(ctx, &domain.Product{Name: "Widget", Price: decimal.NewFromInt(10), Stock: 3, IsActive: true})
	require.NoError(t, err)

	_, err = s.AdjustStockTagged(ctx, p.ID, -5, "tx-1:1")
	require.ErrorIs(t, err, domain.ErrStockWouldGoNegative)
	reverted, err := s.RevertStockTag(ctx, p.ID, "tx-1:1", -5)
	require.NoError(t, err)
	assert.False(t, reverted)

	got, err := s.AdjustStockTagged(ctx, p.ID, -2, "tx-2:1")
	require.NoError(t, err)
	assert.Equal(t, 1, got.Stock)

	for _, want := range []bool{true, false} {
		reverted, err = s.RevertStockTag(ctx, p.ID, "tx-2:1", -2)
		require.NoError(t, err)
		assert.Equal(t, want, reverted)
	}
	got, err = s.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Stock)

	_, err = s.AdjustStockTagged(ctx, p.ID, -1, "tx-3:1")
	require.NoError(t, err)
	require.NoError(t, s.ReleaseStockTag(ctx, p.ID, "tx-3:1"))
	reverted, err = s.RevertStockTag(ctx, p.ID, "tx-3:1", -1)
	require.NoError(t, err)
	assert.False(t, reverted)
}

func TestCategoryNamesAreUniqueIgnoringCase(t *testing.T) {
	s := setup(t)
	ctx := context.Background()

	lamps, err := s.CreateCategory(ctx, &domain.Category{Name: "Lamps"})
	require.NoError(t, err)
	_, err = s.CreateCategory(ctx, &domain.Category{Name: "LAMPS"})
	assert.ErrorIs(t, err, domain.ErrCategoryExists)

	got, err := s.GetCategoryByName(ctx, "lamps")
	require.NoError(t, err)
	assert.Equal(t, lamps.ID, got.ID)

	desks, err := s.CreateCategory(ctx, &domain.Category{Name: "Desks"})
	require.NoError(t, err)
	name := "lamps"
	_, err = s.UpdateCategory(ctx, desks.ID, domain.CategoryUpdate{Name: &name})
	assert.ErrorIs(t, err, domain.ErrCategoryExists)

	require.NoError(t, s.DeleteCategory(ctx, lamps.ID))
	_, err = s.GetCategoryByID(ctx, lamps.ID)
	assert.ErrorIs(t, err, domain.ErrCategoryNotFound)
}

func TestListOrdersAndUsersForAdmins(t *testing.T) {
	s := setup(t)
	ctx := context.Background()
	for _, user := range []string{"u1", "u2"} {
		_, err := s.InsertOrder(ctx, &domain.Order{UserID: user, Status: domain.StatusPending})
		require.NoError(t, err)
	}
	all, err := s.ListOrders(ctx, domain.OrderFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
	one, err := s.ListOrders(ctx, domain.OrderFilter{UserID: "u2"})
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, "u2", one[0].UserID)

	u, err := s.CreateUser(ctx, &domain.User{Email: "c@shop.io", Role: domain.RoleCustomer, IsActive: true})
	require.NoError(t, err)
	inactive := false
	updated, err := s.UpdateUser(ctx, u.ID, domain.UserUpdate{IsActive: &inactive})
	require.NoError(t, err)
	assert.False(t, updated.IsActive)

	active, err := s.ListUsers(ctx, domain.UserFilter{ActiveOnly: true})
	require.NoError(t, err)
	assert.Empty(t, active)
}
