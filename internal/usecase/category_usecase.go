package usecase

import (
	"context"
	"strings"

	"shop_service/internal/domain"

	"github.com/sirupsen/logrus"
)

var _ domain.CategoryUseCase = (*categoryUseCase)(nil)

type categoryUseCase struct {
	categoryRepo domain.CategoryRepository
	productRepo  domain.ProductRepository
	log          *logrus.Logger
}

// NewCategoryUseCase needs the product repository to refuse deleting or
// renaming a category that products still reference.
func NewCategoryUseCase(repo domain.CategoryRepository, products domain.ProductRepository, logger *logrus.Logger) domain.CategoryUseCase {
	return &categoryUseCase{
		categoryRepo: repo,
		productRepo:  products,
		log:          logger,
	}
}

func (uc *categoryUseCase) CreateCategory(ctx context.Context, category *domain.Category) (*domain.Category, error) {
	category.Name = strings.TrimSpace(category.Name)
	if category.Name == "" {
		uc.log.Warn("Use Case: Attempted to create category with empty name")
		return nil, domain.InvalidInput("category name cannot be empty")
	}
	category.Description = strings.TrimSpace(category.Description)

	uc.log.Infof("Use Case: Attempting to create category with name '%s'", category.Name)
	created, err := uc.categoryRepo.CreateCategory(ctx, category)
	if err != nil {
		uc.log.Errorf("Use Case: Repository failed to create category '%s': %v", category.Name, err)
		return nil, domain.NewPersistenceError("create category", err)
	}

	uc.log.Infof("Use Case: Category '%s' created successfully with ID %s", created.Name, created.ID)
	return created, nil
}

func (uc *categoryUseCase) GetCategoryByID(ctx context.Context, id string) (*domain.Category, error) {
	if id == "" {
		return nil, domain.InvalidInput("category id is required")
	}
	category, err := uc.categoryRepo.GetCategoryByID(ctx, id)
	if err != nil {
		uc.log.Warnf("Use Case: Repository failed to get category ID %s: %v", id, err)
		return nil, domain.NewPersistenceError("get category", err)
	}
	return category, nil
}

func (uc *categoryUseCase) UpdateCategory(ctx context.Context, id string, update domain.CategoryUpdate) (*domain.Category, error) {
	if id == "" {
		return nil, domain.InvalidInput("category id is required")
	}
	if update.IsEmpty() {
		return nil, domain.InvalidInput("no fields provided for update")
	}
	current, err := uc.GetCategoryByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if update.Name != nil {
		trimmed := strings.TrimSpace(*update.Name)
		if trimmed == "" {
			return nil, domain.InvalidInput("category name cannot be empty")
		}
		update.Name = &trimmed
		if trimmed != current.Name {
			if err := uc.ensureUnused(ctx, current); err != nil {
				return nil, err
			}
		}
	}

	uc.log.Infof("Use Case: Attempting to update category ID %s", id)
	updated, err := uc.categoryRepo.UpdateCategory(ctx, id, update)
	if err != nil {
		uc.log.Errorf("Use Case: Repository failed to update category ID %s: %v", id, err)
		return nil, domain.NewPersistenceError("update category", err)
	}
	return updated, nil
}

func (uc *categoryUseCase) DeleteCategory(ctx context.Context, id string) error {
	category, err := uc.GetCategoryByID(ctx, id)
	if err != nil {
		return err
	}
	if err := uc.ensureUnused(ctx, category); err != nil {
		return err
	}

	uc.log.Infof("Use Case: Attempting to delete category ID %s", id)
	if err := uc.categoryRepo.DeleteCategory(ctx, id); err != nil {
		uc.log.Warnf("Use Case: Repository failed to delete category ID %s: %v", id, err)
		return domain.NewPersistenceError("delete category", err)
	}
	uc.log.Infof("Use Case: Category deleted successfully for ID %s", id)
	return nil
}

// ensureUnused counts deactivated products too, they still carry the name.
func (uc *categoryUseCase) ensureUnused(ctx context.Context, category *domain.Category) error {
	products, err := uc.productRepo.ListProducts(ctx, domain.ProductFilter{Category: category.Name, Limit: 1})
	if err != nil {
		return domain.NewPersistenceError("list products", err)
	}
	if len(products) > 0 {
		uc.log.Warnf("Use Case: Category '%s' still has products", category.Name)
		return domain.ErrCategoryInUse
	}
	return nil
}

func (uc *categoryUseCase) ListCategories(ctx context.Context) ([]domain.Category, error) {
	categories, err := uc.categoryRepo.ListCategories(ctx)
	if err != nil {
		uc.log.Errorf("Use Case: Repository failed to list categories: %v", err)
		return nil, domain.NewPersistenceError("list categories", err)
	}
	uc.log.Infof("Use Case: Retrieved %d categories", len(categories))
	return categories, nil
}
