package usecase

import (
	"context"
	"testing"

	"shop_service/internal/domain"
	"shop_service/internal/repository/memory"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProductLifecycle(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore(testLogger())
	products := NewProductUseCase(store, store, testLogger())
	_, err := store.CreateCategory(ctx, &domain.Category{Name: "Office"})
	require.NoError(t, err)

	_, err = products.CreateProduct(ctx, &domain.Product{Name: "  ", Price: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = products.CreateProduct(ctx, &domain.Product{Name: "Pen", Price: decimal.NewFromInt(-1)})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = products.CreateProduct(ctx, &domain.Product{Name: "Pen", Price: decimal.NewFromInt(1), Stock: -1})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	created, err := products.CreateProduct(ctx, &domain.Product{
		Name: "Pen", Price: decimal.RequireFromString("1.25"), Stock: 2, Category: "office",
	})
	require.NoError(t, err)
	assert.True(t, created.IsActive)
	assert.Equal(t, "Office", created.Category)

	newPrice := decimal.RequireFromString("1.50")
	updated, err := products.UpdateProduct(ctx, created.ID, domain.ProductUpdate{Price: &newPrice})
	require.NoError(t, err)
	assert.True(t, updated.Price.Equal(newPrice))
	assert.Equal(t, 2, updated.Stock)

	_, err = products.UpdateProduct(ctx, created.ID, domain.ProductUpdate{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = products.AdjustStock(ctx, created.ID, -3)
	assert.ErrorIs(t, err, domain.ErrStockWouldGoNegative)
	restocked, err := products.AdjustStock(ctx, created.ID, 10)
	require.NoError(t, err)
	assert.Equal(t, 12, restocked.Stock)

	list, err := products.ListProducts(ctx, domain.ProductFilter{Category: "Office", ActiveOnly: true})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, products.DeleteProduct(ctx, created.ID))
	list, err = products.ListProducts(ctx, domain.ProductFilter{ActiveOnly: true})
	require.NoError(t, err)
	assert.Empty(t, list)

	err = products.DeleteProduct(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrProductNotFound)
}

func TestProductPriceMustFitTwoDecimals(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore(testLogger())
	products := NewProductUseCase(store, store, testLogger())

	for _, price := range []string{"1.005", "0.001", "10000000000"} {
		_, err := products.CreateProduct(ctx, &domain.Product{Name: "Pen", Price: decimal.RequireFromString(price)})
		assert.ErrorIs(t, err, domain.ErrInvalidInput, "price %s", price)
	}

	created, err := products.CreateProduct(ctx, &domain.Product{Name: "Pen", Price: decimal.RequireFromString("1.500")})
	require.NoError(t, err)

	tooPrecise := decimal.RequireFromString("2.999")
	_, err = products.UpdateProduct(ctx, created.ID, domain.ProductUpdate{Price: &tooPrecise})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	got, err := products.GetProductByID(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, got.Price.Equal(decimal.RequireFromString("1.5")))
}

func TestProductCategoryMustExist(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore(testLogger())
	products := NewProductUseCase(store, store, testLogger())

	_, err := products.CreateProduct(ctx, &domain.Product{Name: "Pen", Price: decimal.NewFromInt(1), Category: "Nowhere"})
	assert.ErrorIs(t, err, domain.ErrCategoryNotFound)

	_, err = store.CreateCategory(ctx, &domain.Category{Name: "Office"})
	require.NoError(t, err)
	created, err := products.CreateProduct(ctx, &domain.Product{Name: "Pen", Price: decimal.NewFromInt(1), Category: "office"})
	require.NoError(t, err)
	assert.Equal(t, "Office", created.Category)

	missing := "Nowhere"
	_, err = products.UpdateProduct(ctx, created.ID, domain.ProductUpdate{Category: &missing})
	assert.ErrorIs(t, err, domain.ErrCategoryNotFound)

	none := ""
	updated, err := products.UpdateProduct(ctx, created.ID, domain.ProductUpdate{Category: &none})
	require.NoError(t, err)
	assert.Empty(t, updated.Category)
}
