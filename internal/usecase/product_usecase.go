package usecase

import (
	"context"
	"strings"

	"shop_service/internal/domain"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// maxPrice is the first value NUMERIC(12, 2) cannot hold.
var maxPrice = decimal.New(1, 10)

var _ domain.ProductUseCase = (*productUseCase)(nil)

type productUseCase struct {
	productRepo  domain.ProductRepository
	categoryRepo domain.CategoryRepository
	log          *logrus.Logger
}

func NewProductUseCase(repo domain.ProductRepository, categories domain.CategoryRepository, logger *logrus.Logger) domain.ProductUseCase {
	return &productUseCase{
		productRepo:  repo,
		categoryRepo: categories,
		log:          logger,
	}
}

// validatePrice accepts only prices every engine stores exactly.
func validatePrice(price decimal.Decimal) error {
	if price.IsNegative() {
		return domain.InvalidInput("product price cannot be negative")
	}
	if !price.Equal(price.Round(2)) {
		return domain.InvalidInput("product price %s has more than two decimal places", price)
	}
	if price.GreaterThanOrEqual(maxPrice) {
		return domain.InvalidInput("product price %s is too large", price)
	}
	return nil
}

// resolveCategory returns the stored spelling of a category name. An empty
// name means the product is uncategorised.
func (uc *productUseCase) resolveCategory(ctx context.Context, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", nil
	}
	category, err := uc.categoryRepo.GetCategoryByName(ctx, name)
	if err != nil {
		uc.log.Warnf("Use Case: Product references unknown category '%s': %v", name, err)
		return "", domain.NewPersistenceError("get category", err)
	}
	return category.Name, nil
}

func (uc *productUseCase) CreateProduct(ctx context.Context, product *domain.Product) (*domain.Product, error) {
	product.Name = strings.TrimSpace(product.Name)
	if product.Name == "" {
		uc.log.Warn("Use Case: Attempted to create product with empty name")
		return nil, domain.InvalidInput("product name cannot be empty")
	}
	if err := validatePrice(product.Price); err != nil {
		uc.log.Warnf("Use Case: Attempted to create product '%s' with invalid price: %s", product.Name, product.Price)
		return nil, err
	}
	if product.Stock < 0 {
		uc.log.Warnf("Use Case: Attempted to create product '%s' with negative stock: %d", product.Name, product.Stock)
		return nil, domain.InvalidInput("product stock cannot be negative")
	}
	category, err := uc.resolveCategory(ctx, product.Category)
	if err != nil {
		return nil, err
	}
	product.Category = category
	product.IsActive = true

	uc.log.Infof("Use Case: Attempting to create product '%s'", product.Name)
	created, err := uc.productRepo.CreateProduct(ctx, product)
	if err != nil {
		uc.log.Errorf("Use Case: Repository failed to create product '%s': %v", product.Name, err)
		return nil, domain.NewPersistenceError("create product", err)
	}

	uc.log.Infof("Use Case: Product '%s' created successfully with ID %s", created.Name, created.ID)
	return created, nil
}

func (uc *productUseCase) GetProductByID(ctx context.Context, id string) (*domain.Product, error) {
	if id == "" {
		return nil, domain.InvalidInput("product id is required")
	}
	product, err := uc.productRepo.GetProduct(ctx, id)
	if err != nil {
		uc.log.Warnf("Use Case: Repository failed to get product %s: %v", id, err)
		return nil, domain.NewPersistenceError("get product", err)
	}
	return product, nil
}

func (uc *productUseCase) UpdateProduct(ctx context.Context, id string, update domain.ProductUpdate) (*domain.Product, error) {
	if id == "" {
		return nil, domain.InvalidInput("product id is required")
	}
	if update.IsEmpty() {
		return nil, domain.InvalidInput("no fields provided for update")
	}
	if update.Name != nil {
		trimmed := strings.TrimSpace(*update.Name)
		if trimmed == "" {
			return nil, domain.InvalidInput("product name cannot be empty")
		}
		update.Name = &trimmed
	}
	if update.Price != nil {
		if err := validatePrice(*update.Price); err != nil {
			return nil, err
		}
	}
	if update.Category != nil {
		category, err := uc.resolveCategory(ctx, *update.Category)
		if err != nil {
			return nil, err
		}
		update.Category = &category
	}

	uc.log.Infof("Use Case: Attempting to update product %s", id)
	updated, err := uc.productRepo.UpdateProduct(ctx, id, update)
	if err != nil {
		uc.log.Errorf("Use Case: Repository failed to update product %s: %v", id, err)
		return nil, domain.NewPersistenceError("update product", err)
	}
	return updated, nil
}

// DeleteProduct deactivates the product. Existing orders keep referencing it.
func (uc *productUseCase) DeleteProduct(ctx context.Context, id string) error {
	if id == "" {
		return domain.InvalidInput("product id is required")
	}
	uc.log.Infof("Use Case: Attempting to deactivate product %s", id)
	if err := uc.productRepo.DeleteProduct(ctx, id); err != nil {
		uc.log.Errorf("Use Case: Repository failed to deactivate product %s: %v", id, err)
		return domain.NewPersistenceError("delete product", err)
	}
	return nil
}

func (uc *productUseCase) ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	filter.Limit, filter.Offset = normalizePage(filter.Limit, filter.Offset)
	products, err := uc.productRepo.ListProducts(ctx, filter)
	if err != nil {
		uc.log.Errorf("Use Case: Repository failed to list products: %v", err)
		return nil, domain.NewPersistenceError("list products", err)
	}
	uc.log.Infof("Use Case: Listed %d products (category: %q, limit: %d, offset: %d)", len(products), filter.Category, filter.Limit, filter.Offset)
	return products, nil
}

func (uc *productUseCase) AdjustStock(ctx context.Context, id string, delta int) (*domain.Product, error) {
	if id == "" {
		return nil, domain.InvalidInput("product id is required")
	}
	if delta == 0 {
		return nil, domain.InvalidInput("stock delta must not be zero")
	}
	uc.log.Infof("Use Case: Adjusting stock of product %s by %d", id, delta)
	product, err := uc.productRepo.AdjustStock(ctx, id, delta)
	if err != nil {
		uc.log.Warnf("Use Case: Stock adjustment for product %s failed: %v", id, err)
		return nil, domain.NewPersistenceError("adjust stock", err)
	}
	return product, nil
}
