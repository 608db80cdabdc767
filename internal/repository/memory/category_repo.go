package memory

import (
	"context"
	"sort"
	"strings"

	"shop_service/internal/domain"

	"github.com/google/uuid"
)

func (s *Store) categoryNameTaken(name, exceptID string) bool {
	for _, c := range s.categories {
		if c.ID != exceptID && strings.EqualFold(c.Name, name) {
			return true
		}
	}
	return false
}

func (s *Store) CreateCategory(ctx context.Context, category *domain.Category) (*domain.Category, error) {
	if err := checkCtx(ctx, "create category"); err != nil {
		return nil, err
	}
	defer s.wlock(ctx)()

	if s.categoryNameTaken(category.Name, "") {
		s.log.Warnf("Repository: Attempted to create duplicate category: %s", category.Name)
		return nil, domain.ErrCategoryExists
	}
	c := *category
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := s.now()
	c.CreatedAt, c.UpdatedAt = now, now
	s.categories[c.ID] = c
	s.onRollback(ctx, func() { delete(s.categories, c.ID) })
	return &c, nil
}

func (s *Store) GetCategoryByID(ctx context.Context, id string) (*domain.Category, error) {
	defer s.rlock(ctx)()

	c, ok := s.categories[id]
	if !ok {
		return nil, domain.ErrCategoryNotFound
	}
	return &c, nil
}

func (s *Store) GetCategoryByName(ctx context.Context, name string) (*domain.Category, error) {
	defer s.rlock(ctx)()

	for _, c := range s.categories {
		if strings.EqualFold(c.Name, name) {
			return &c, nil
		}
	}
	return nil, domain.ErrCategoryNotFound
}

func (s *Store) UpdateCategory(ctx context.Context, id string, update domain.CategoryUpdate) (*domain.Category, error) {
	if err := checkCtx(ctx, "update category"); err != nil {
		return nil, err
	}
	defer s.wlock(ctx)()

	prev, ok := s.categories[id]
	if !ok {
		return nil, domain.ErrCategoryNotFound
	}
	c := prev
	if update.Name != nil {
		if s.categoryNameTaken(*update.Name, id) {
			return nil, domain.ErrCategoryExists
		}
		c.Name = *update.Name
	}
	if update.Description != nil {
		c.Description = *update.Description
	}
	c.UpdatedAt = s.now()
	s.categories[id] = c
	s.onRollback(ctx, func() { s.categories[id] = prev })
	return &c, nil
}

func (s *Store) DeleteCategory(ctx context.Context, id string) error {
	defer s.wlock(ctx)()

	prev, ok := s.categories[id]
	if !ok {
		return domain.ErrCategoryNotFound
	}
	delete(s.categories, id)
	s.onRollback(ctx, func() { s.categories[id] = prev })
	return nil
}

func (s *Store) ListCategories(ctx context.Context) ([]domain.Category, error) {
	defer s.rlock(ctx)()

	out := make([]domain.Category, 0, len(s.categories))
	for _, c := range s.categories {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
