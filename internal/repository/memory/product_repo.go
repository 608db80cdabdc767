package memory

import (
	"context"
	"sort"

	"shop_service/internal/domain"

	"github.com/google/uuid"
)

func (s *Store) CreateProduct(ctx context.Context, product *domain.Product) (*domain.Product, error) {
	if err := checkCtx(ctx, "create product"); err != nil {
		return nil, err
	}
	defer s.wlock(ctx)()

	p := *product
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if _, exists := s.products[p.ID]; exists {
		return nil, domain.InvalidInput("product with id %s already exists", p.ID)
	}
	now := s.now()
	p.CreatedAt, p.UpdatedAt = now, now
	s.products[p.ID] = p
	s.onRollback(ctx, func() { delete(s.products, p.ID) })

	s.log.Infof("Repository: Product created with ID %s", p.ID)
	return &p, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	if err := checkCtx(ctx, "get product"); err != nil {
		return nil, err
	}
	defer s.rlock(ctx)()

	p, ok := s.products[id]
	if !ok {
		return nil, domain.ErrProductNotFound
	}
	return &p, nil
}

func (s *Store) UpdateProduct(ctx context.Context, id string, update domain.ProductUpdate) (*domain.Product, error) {
	if err := checkCtx(ctx, "update product"); err != nil {
		return nil, err
	}
	defer s.wlock(ctx)()

	prev, ok := s.products[id]
	if !ok {
		return nil, domain.ErrProductNotFound
	}
	p := prev
	update.Apply(&p)
	p.UpdatedAt = s.now()
	s.products[id] = p
	s.onRollback(ctx, func() { s.products[id] = prev })
	return &p, nil
}

// DeleteProduct only deactivates the product; orders may still reference it.
func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	inactive := false
	_, err := s.UpdateProduct(ctx, id, domain.ProductUpdate{IsActive: &inactive})
	return err
}

func (s *Store) ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	if err := checkCtx(ctx, "list products"); err != nil {
		return nil, err
	}
	defer s.rlock(ctx)()

	out := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if filter.ActiveOnly && !p.IsActive {
			continue
		}
		if filter.Category != "" && p.Category != filter.Category {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return paginate(out, filter.Limit, filter.Offset), nil
}

// AdjustStock checks and applies delta under the write lock.
func (s *Store) AdjustStock(ctx context.Context, id string, delta int) (*domain.Product, error) {
	if err := checkCtx(ctx, "adjust stock"); err != nil {
		return nil, err
	}
	defer s.wlock(ctx)()
	return s.adjustStock(ctx, id, delta)
}

// adjustStock expects the caller to hold the write lock.
func (s *Store) adjustStock(ctx context.Context, id string, delta int) (*domain.Product, error) {
	prev, ok := s.products[id]
	if !ok {
		return nil, domain.ErrProductNotFound
	}
	if prev.Stock+delta < 0 {
		return nil, domain.ErrStockWouldGoNegative
	}
	p := prev
	p.Stock += delta
	p.UpdatedAt = s.now()
	s.products[id] = p
	s.onRollback(ctx, func() { s.products[id] = prev })
	return &p, nil
}

// AdjustStockTagged applies delta like AdjustStock and remembers tag on the
// product in the same critical section.
func (s *Store) AdjustStockTagged(ctx context.Context, id string, delta int, tag string) (*domain.Product, error) {
	if err := checkCtx(ctx, "adjust stock"); err != nil {
		return nil, err
	}
	defer s.wlock(ctx)()

	p, err := s.adjustStock(ctx, id, delta)
	if err != nil {
		return nil, err
	}
	s.addTag(id, tag)
	s.onRollback(ctx, func() { s.dropTag(id, tag) })
	return p, nil
}

// RevertStockTag undoes the adjustment that carried tag. It reports false when
// the tag is absent, meaning the adjustment never happened or was already undone.
func (s *Store) RevertStockTag(ctx context.Context, id, tag string, delta int) (bool, error) {
	if err := checkCtx(ctx, "revert stock"); err != nil {
		return false, err
	}
	defer s.wlock(ctx)()

	if _, ok := s.stockTags[id][tag]; !ok {
		return false, nil
	}
	if _, err := s.adjustStock(ctx, id, -delta); err != nil {
		return false, err
	}
	s.dropTag(id, tag)
	s.onRollback(ctx, func() { s.addTag(id, tag) })
	return true, nil
}

// ReleaseStockTag forgets tag once the adjustment it marks is final.
func (s *Store) ReleaseStockTag(ctx context.Context, id, tag string) error {
	defer s.wlock(ctx)()
	s.dropTag(id, tag)
	return nil
}

func (s *Store) addTag(id, tag string) {
	tags, ok := s.stockTags[id]
	if !ok {
		tags = make(map[string]struct{})
		s.stockTags[id] = tags
	}
	tags[tag] = struct{}{}
}

func (s *Store) dropTag(id, tag string) {
	delete(s.stockTags[id], tag)
	if len(s.stockTags[id]) == 0 {
		delete(s.stockTags, id)
	}
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
